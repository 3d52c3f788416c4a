package agentrunner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// Factory resolves the effective Runner for a Task: requested override,
// rule route, or global default, falling back to the first enabled and
// available provider in FallbackOrder when the chosen one cannot run.
type Factory struct {
	registry *config.AgentRegistry
	log      *slog.Logger
}

func NewFactory(registry *config.AgentRegistry, log *slog.Logger) *Factory {
	if log == nil {
		log = slog.Default()
	}
	return &Factory{registry: registry, log: log.With("component", "agent_runner")}
}

// Select returns the Runner to use plus its effective name, which the
// caller records on the AnalysisResult even when it differs from what was
// requested.
func (f *Factory) Select(ctx context.Context, requestedAgent, matchedRuleID string) (Runner, error) {
	cfg := f.registry.Snapshot()
	requested := cfg.RouteFor(requestedAgent, matchedRuleID)

	if runner, err := f.tryRunner(ctx, cfg, requested); err == nil {
		return runner, nil
	} else {
		f.log.Warn("requested agent provider unavailable, falling back", "provider", requested, "error", err)
	}

	for _, candidate := range cfg.FallbackOrder {
		if candidate == requested {
			continue
		}
		if runner, err := f.tryRunner(ctx, cfg, candidate); err == nil {
			return runner, nil
		}
	}

	return nil, &RunError{Kind: models.ErrAgentUnavailable, Message: "no enabled and available agent provider found"}
}

// ProviderHealth reports one configured provider's availability, for the
// GET /health/agents endpoint.
type ProviderHealth struct {
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// HealthAll probes every configured provider and reports its availability,
// regardless of whether it is currently reachable via Select's fallback
// order — operators need to see a disabled or broken provider, not just
// the one that would be chosen.
func (f *Factory) HealthAll(ctx context.Context) []ProviderHealth {
	cfg := f.registry.Snapshot()
	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderHealth, 0, len(names))
	for _, name := range names {
		p := cfg.Providers[name]
		ph := ProviderHealth{Name: name, Enabled: p.Enabled}
		if !p.Enabled {
			ph.Detail = "disabled"
			out = append(out, ph)
			continue
		}
		runner := NewCLIRunner(p, cfg, argBuilderFor(name))
		ok, detail, err := runner.Available(ctx)
		if err != nil {
			ph.Detail = err.Error()
		} else {
			ph.Available = ok
			ph.Detail = detail
		}
		out = append(out, ph)
	}
	return out
}

func (f *Factory) tryRunner(ctx context.Context, cfg *config.AgentRoutingConfig, name string) (Runner, error) {
	p, err := cfg.Provider(name)
	if err != nil {
		return nil, err
	}
	if !p.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}
	runner := NewCLIRunner(p, cfg, argBuilderFor(name))
	ok, _, err := runner.Available(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("provider %s reported unavailable", name)
	}
	return runner, nil
}
