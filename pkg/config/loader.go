package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the complete triage.yaml file structure.
type YAMLConfig struct {
	Queue      *QueueConfig         `yaml:"queue"`
	Agents     *AgentRoutingConfig  `yaml:"agents"`
	Rules      *RulesConfig         `yaml:"rules"`
	Workspace  *WorkspaceConfig     `yaml:"workspace"`
	PreExtract *PreExtractConfig    `yaml:"pre_extract"`
	Defaults   *Defaults            `yaml:"defaults"`
	System     *SystemConfig        `yaml:"system"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Start from built-in defaults.
//  2. Load triage.yaml from configDir, if present.
//  3. Expand environment variables in its raw bytes.
//  4. Parse YAML and merge onto the defaults (user values win).
//  5. Validate everything, accumulating every problem found.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg := Default()

	path := filepath.Join(configDir, "triage.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn("no triage.yaml found, using built-in defaults", "path", path)
		} else {
			return nil, NewLoadError(path, err)
		}
	} else {
		raw = ExpandEnv(raw)

		var y YAMLConfig
		if err := yaml.Unmarshal(raw, &y); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}

		if err := applyYAML(cfg, &y); err != nil {
			return nil, NewLoadError(path, err)
		}
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"agent_providers", stats.AgentProviders,
		"rule_routes", stats.RuleRoutes)

	return cfg, nil
}

// applyYAML merges each loaded section onto the corresponding default,
// user-specified fields taking precedence.
func applyYAML(cfg *Config, y *YAMLConfig) error {
	if y.Queue != nil {
		if err := mergeOnto(cfg.Queue, y.Queue); err != nil {
			return fmt.Errorf("merging queue config: %w", err)
		}
	}
	if y.Agents != nil {
		base := cfg.Agents.Snapshot()
		if err := mergeOnto(base, y.Agents); err != nil {
			return fmt.Errorf("merging agents config: %w", err)
		}
		cfg.Agents.Replace(base)
	}
	if y.Rules != nil {
		if err := mergeOnto(cfg.Rules, y.Rules); err != nil {
			return fmt.Errorf("merging rules config: %w", err)
		}
	}
	if y.Workspace != nil {
		if err := mergeOnto(cfg.Workspace, y.Workspace); err != nil {
			return fmt.Errorf("merging workspace config: %w", err)
		}
	}
	if y.PreExtract != nil {
		if err := mergeOnto(cfg.PreExtract, y.PreExtract); err != nil {
			return fmt.Errorf("merging pre_extract config: %w", err)
		}
	}
	if y.Defaults != nil {
		if err := mergeOnto(cfg.Defaults, y.Defaults); err != nil {
			return fmt.Errorf("merging defaults config: %w", err)
		}
	}
	if y.System != nil {
		if err := mergeOnto(cfg.System, y.System); err != nil {
			return fmt.Errorf("merging system config: %w", err)
		}
	}
	return nil
}
