package agentrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
)

func TestFactorySelectFallsBackWhenDefaultUnavailable(t *testing.T) {
	routing := &config.AgentRoutingConfig{
		Providers: map[string]*config.AgentProviderConfig{
			"claude_code": {Name: "claude_code", Command: "/nonexistent/claude-binary", Enabled: true},
			"codex":       {Name: "codex", Command: "true", Enabled: true},
		},
		DefaultProvider: "claude_code",
		FallbackOrder:   []string{"claude_code", "codex"},
	}
	registry := config.NewAgentRegistry(routing)
	f := NewFactory(registry, nil)

	runner, err := f.Select(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "codex", runner.Name())
}

func TestFactorySelectHonorsRequestedAgentOverride(t *testing.T) {
	routing := &config.AgentRoutingConfig{
		Providers: map[string]*config.AgentProviderConfig{
			"claude_code": {Name: "claude_code", Command: "true", Enabled: true},
			"codex":       {Name: "codex", Command: "true", Enabled: true},
		},
		DefaultProvider: "claude_code",
		FallbackOrder:   []string{"claude_code", "codex"},
	}
	registry := config.NewAgentRegistry(routing)
	f := NewFactory(registry, nil)

	runner, err := f.Select(context.Background(), "codex", "")
	require.NoError(t, err)
	assert.Equal(t, "codex", runner.Name())
}

func TestFactorySelectErrorsWhenNothingAvailable(t *testing.T) {
	routing := &config.AgentRoutingConfig{
		Providers: map[string]*config.AgentProviderConfig{
			"claude_code": {Name: "claude_code", Command: "/nonexistent/a", Enabled: true},
			"codex":       {Name: "codex", Command: "/nonexistent/b", Enabled: true},
		},
		DefaultProvider: "claude_code",
		FallbackOrder:   []string{"claude_code", "codex"},
	}
	registry := config.NewAgentRegistry(routing)
	f := NewFactory(registry, nil)

	_, err := f.Select(context.Background(), "", "")
	require.Error(t, err)
}
