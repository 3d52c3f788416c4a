package config

import "time"

// RulesConfig controls the Rule Catalog.
type RulesConfig struct {
	// Dir is the directory tree scanned for rule files.
	Dir string `yaml:"dir" validate:"required"`

	// WatchEnabled turns on the fsnotify-driven automatic hot-reload in
	// addition to the explicit POST /rules/reload endpoint.
	WatchEnabled bool `yaml:"watch_enabled"`

	// WatchDebounce coalesces bursts of filesystem events (e.g. an editor
	// writing a file via rename+write) into a single reload.
	WatchDebounce time.Duration `yaml:"watch_debounce,omitempty"`
}

// DefaultRulesConfig returns the built-in rules defaults.
func DefaultRulesConfig() *RulesConfig {
	return &RulesConfig{
		Dir:           "./rules",
		WatchEnabled:  true,
		WatchDebounce: 250 * time.Millisecond,
	}
}

// PreExtractConfig controls the Log Pre-extractor.
type PreExtractConfig struct {
	// MaxLinesPerPattern caps matched lines retained per pattern (default 200).
	MaxLinesPerPattern int `yaml:"max_lines_per_pattern"`

	// PerPatternDeadline bounds how long a single pattern may scan one file.
	PerPatternDeadline time.Duration `yaml:"per_pattern_deadline"`
}

// DefaultPreExtractConfig returns the built-in pre-extraction defaults.
func DefaultPreExtractConfig() *PreExtractConfig {
	return &PreExtractConfig{
		MaxLinesPerPattern: 200,
		PerPatternDeadline: 30 * time.Second,
	}
}

// WorkspaceConfig controls the Log Materializer and workspace retention.
type WorkspaceConfig struct {
	// Root is the filesystem root under which per-task workspace
	// directories ({task_id}/logs, /code, prompt.txt, transcript.txt) live.
	Root string `yaml:"root" validate:"required"`

	// MaxEntrySizeBytes rejects any single archive entry larger than this.
	MaxEntrySizeBytes int64 `yaml:"max_entry_size_bytes"`

	// MaxTotalSizeBytes caps total uncompressed size per task.
	MaxTotalSizeBytes int64 `yaml:"max_total_size_bytes"`

	// ArtifactFetchTimeout bounds a single artifact fetch.
	ArtifactFetchTimeout time.Duration `yaml:"artifact_fetch_timeout"`

	// DecryptExtractTimeout bounds decrypt+extract of a single artifact.
	DecryptExtractTimeout time.Duration `yaml:"decrypt_extract_timeout"`

	// RetentionDays is how long a workspace (or its post-mortem snapshot)
	// is kept before deletion.
	RetentionDays int `yaml:"retention_days"`

	// RetentionSweepInterval is how often the retention GC job runs.
	RetentionSweepInterval time.Duration `yaml:"retention_sweep_interval"`
}

// DefaultWorkspaceConfig returns the built-in workspace defaults.
func DefaultWorkspaceConfig() *WorkspaceConfig {
	return &WorkspaceConfig{
		Root:                    "./data/workspaces",
		MaxEntrySizeBytes:       512 << 20,
		MaxTotalSizeBytes:       2 << 30,
		ArtifactFetchTimeout:    5 * time.Minute,
		DecryptExtractTimeout:   5 * time.Minute,
		RetentionDays:           7,
		RetentionSweepInterval:  1 * time.Hour,
	}
}
