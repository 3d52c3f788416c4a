package config

import "time"

// QueueConfig contains queue and worker pool configuration.
// These values control how tasks are polled, claimed, and processed.
type QueueConfig struct {
	// Backend selects the claim-atomicity source: "postgres" (default),
	// the sole source of truth either way, or "redis" to additionally
	// layer a pub/sub wake notification on top of it so workers learn of
	// newly admitted tasks without waiting out a full poll interval.
	Backend string `yaml:"backend"`

	// RedisAddr is the Redis address used when Backend is "redis".
	RedisAddr string `yaml:"redis_addr,omitempty"`

	// WorkerCount is the number of worker goroutines per replica/pod.
	// Each worker independently polls and processes tasks.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentTasks is the global limit of concurrent tasks being
	// processed across all replicas, enforced by a database COUNT(*)
	// check regardless of Backend.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// PollInterval is the base interval for checking pending tasks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	// Actual interval: PollInterval ± PollIntervalJitter.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// HeartbeatInterval is how often an in-flight task's updated_at is
	// refreshed so stale-recovery can distinguish "slow" from "dead".
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// GracefulShutdownTimeout is the max time to wait for active tasks
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for stale non-terminal
	// tasks.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// StaleThreshold is how long a non-terminal task can go without a
	// heartbeat before it is recovered as failed/ServerRestart.
	StaleThreshold time.Duration `yaml:"stale_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		Backend:                 "postgres",
		WorkerCount:             3,
		MaxConcurrentTasks:      3,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		HeartbeatInterval:       15 * time.Second,
		GracefulShutdownTimeout: 6 * time.Minute,
		OrphanDetectionInterval: 1 * time.Minute,
		StaleThreshold:          10 * time.Minute,
	}
}
