// Package config loads, validates, and serves the triage orchestrator's
// configuration: queue tuning, agent provider routing, rule catalog
// location, workspace/pre-extraction limits, and ambient system settings.
package config

// Config is the fully loaded, validated, ready-to-use configuration.
type Config struct {
	Queue      *QueueConfig
	Agents     *AgentRegistry
	Rules      *RulesConfig
	Workspace  *WorkspaceConfig
	PreExtract *PreExtractConfig
	Defaults   *Defaults
	System     *SystemConfig
}

// Stats summarizes the loaded configuration for the health endpoint.
type Stats struct {
	AgentProviders int
	RuleRoutes     int
}

// Stats returns a summary of the loaded configuration.
func (c *Config) Stats() Stats {
	snap := c.Agents.Snapshot()
	return Stats{
		AgentProviders: len(snap.Providers),
		RuleRoutes:     len(snap.RuleRoutes),
	}
}

// Default builds a Config from built-in defaults only (no YAML file, no
// environment). Used by tests and as the base that loader.go merges
// user-provided YAML on top of.
func Default() *Config {
	return &Config{
		Queue:      DefaultQueueConfig(),
		Agents:     NewAgentRegistry(DefaultAgentRoutingConfig()),
		Rules:      DefaultRulesConfig(),
		Workspace:  DefaultWorkspaceConfig(),
		PreExtract: DefaultPreExtractConfig(),
		Defaults:   &Defaults{Agent: "claude_code", Priority: "L"},
		System:     DefaultSystemConfig(),
	}
}
