package config

import (
	"fmt"
	"sync"
	"time"
)

// AgentProviderConfig describes one subprocess LLM CLI provider.
type AgentProviderConfig struct {
	// Name is the provider identifier referenced by rule routes, task
	// overrides, and the global default.
	Name string `yaml:"name" validate:"required"`

	// Command is the CLI binary to invoke (e.g. "claude", "codex").
	Command string `yaml:"command" validate:"required"`

	// Args are extra fixed arguments prepended to every invocation.
	Args []string `yaml:"args,omitempty"`

	// Enabled controls whether this provider participates in routing and
	// fallback at all.
	Enabled bool `yaml:"enabled"`

	// Timeout bounds a single agent run.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MaxTurns caps the number of agentic tool-use turns.
	MaxTurns int `yaml:"max_turns,omitempty"`

	// ModelOverride, when set, is passed through as the provider's model flag.
	ModelOverride string `yaml:"model_override,omitempty"`
}

// AgentRoutingConfig is the full routing table for the Agent Runner.
type AgentRoutingConfig struct {
	// Providers lists every configured provider, keyed by Name.
	Providers map[string]*AgentProviderConfig `yaml:"providers"`

	// RuleRoutes maps a matched_rule_id to the provider name that should
	// handle it.
	RuleRoutes map[string]string `yaml:"rule_routes,omitempty"`

	// DefaultProvider is the global fallback.
	DefaultProvider string `yaml:"default_provider" validate:"required"`

	// FallbackOrder is the deterministic order tried when the selected
	// provider is unavailable.
	FallbackOrder []string `yaml:"fallback_order,omitempty"`

	// StdoutLimitBytes bounds the captured stdout buffer.
	StdoutLimitBytes int64 `yaml:"stdout_limit_bytes,omitempty"`

	// StderrLimitBytes bounds the captured stderr buffer.
	StderrLimitBytes int64 `yaml:"stderr_limit_bytes,omitempty"`

	// KillGrace is how long to wait after SIGTERM before SIGKILL.
	KillGrace time.Duration `yaml:"kill_grace,omitempty"`
}

// DefaultAgentRoutingConfig returns the built-in agent routing defaults:
// two providers, claude_code enabled and codex disabled.
func DefaultAgentRoutingConfig() *AgentRoutingConfig {
	return &AgentRoutingConfig{
		Providers: map[string]*AgentProviderConfig{
			"claude_code": {
				Name:     "claude_code",
				Command:  "claude",
				Args:     []string{"--print", "--output-format", "json"},
				Enabled:  true,
				Timeout:  5 * time.Minute,
				MaxTurns: 25,
			},
			"codex": {
				Name:     "codex",
				Command:  "codex",
				Args:     []string{"exec", "--json"},
				Enabled:  false,
				Timeout:  5 * time.Minute,
				MaxTurns: 25,
			},
		},
		DefaultProvider:  "claude_code",
		FallbackOrder:    []string{"claude_code", "codex"},
		StdoutLimitBytes: 16 << 20,
		StderrLimitBytes: 1 << 20,
		KillGrace:        5 * time.Second,
	}
}

// AgentRegistry is a thread-safe, swappable view over AgentRoutingConfig,
// following the same atomic-swap-on-reload shape as the rule catalog
// (rules.Catalog).
type AgentRegistry struct {
	mu  sync.RWMutex
	cfg *AgentRoutingConfig
}

// NewAgentRegistry creates a registry wrapping the given routing config.
func NewAgentRegistry(cfg *AgentRoutingConfig) *AgentRegistry {
	return &AgentRegistry{cfg: cfg}
}

// Snapshot returns the currently active routing config. Callers must treat
// the returned value as read-only.
func (r *AgentRegistry) Snapshot() *AgentRoutingConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Replace atomically swaps in a new routing config.
func (r *AgentRegistry) Replace(cfg *AgentRoutingConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// Provider looks up a provider by name.
func (c *AgentRoutingConfig) Provider(name string) (*AgentProviderConfig, error) {
	p, ok := c.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentProviderNotFound, name)
	}
	return p, nil
}

// RouteFor resolves the provider name for a Task: requestedAgent override,
// else the rule route for matchedRuleID, else DefaultProvider.
func (c *AgentRoutingConfig) RouteFor(requestedAgent, matchedRuleID string) string {
	if requestedAgent != "" {
		return requestedAgent
	}
	if route, ok := c.RuleRoutes[matchedRuleID]; ok && route != "" {
		return route
	}
	return c.DefaultProvider
}
