package agentrunner

import (
	"strconv"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
)

// claudeCodeArgs renders claude_code-specific flags on top of the
// provider's fixed Args (--print --output-format json by default).
func claudeCodeArgs(cfg *config.AgentProviderConfig, opts Options) []string {
	var args []string
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	} else if cfg.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(cfg.MaxTurns))
	}
	model := opts.ModelOverride
	if model == "" {
		model = cfg.ModelOverride
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	return args
}

// codexArgs renders codex-specific flags on top of the provider's fixed
// Args (exec --json by default).
func codexArgs(cfg *config.AgentProviderConfig, opts Options) []string {
	var args []string
	model := opts.ModelOverride
	if model == "" {
		model = cfg.ModelOverride
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	// codex exec has no turn-budget flag in its CLI surface; MaxTurns is
	// not applied for this provider.
	return args
}

// argBuilders maps a provider name to its ArgBuilder; a provider with no
// entry here falls back to passing through only its fixed config.Args.
var argBuilders = map[string]ArgBuilder{
	"claude_code": claudeCodeArgs,
	"codex":       codexArgs,
}

func argBuilderFor(name string) ArgBuilder {
	if b, ok := argBuilders[name]; ok {
		return b
	}
	return func(*config.AgentProviderConfig, Options) []string { return nil }
}
