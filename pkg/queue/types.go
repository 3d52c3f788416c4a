// Package queue implements the in-process Task Queue & Scheduler: a fixed
// worker pool that claims queued Tasks from a durable store, runs them
// through an Executor, and enforces the at-most-one-in-flight-per-issue,
// priority-then-FIFO, and stale-task-recovery invariants.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

var (
	// ErrNoTasksAvailable indicates no queued tasks are claimable right now.
	ErrNoTasksAvailable = errors.New("no tasks available")

	// ErrAtCapacity indicates the pool's configured concurrency ceiling has
	// been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// Executor owns a Task's entire pipeline execution once claimed: resolving
// artifacts, decrypting, extracting, selecting rules, pre-extracting,
// invoking the agent, parsing the result, and persisting progressively.
// The worker only handles claiming, heartbeat, terminal status, and
// notification.
type Executor interface {
	Execute(ctx context.Context, task *models.Task) *ExecutionResult
}

// ExecutionResult is the terminal outcome of one Task execution.
type ExecutionResult struct {
	State   models.TaskState
	Error   *models.TaskError
	Message string
}

// TaskStore is the durable persistence surface the queue depends on.
// Implementations (Postgres, SQLite) live in pkg/store.
type TaskStore interface {
	// ClaimNext atomically claims the next queued task for podID, ordered
	// high-priority-first then FIFO on created_at, using a
	// SELECT ... FOR UPDATE SKIP LOCKED-style claim so concurrent workers
	// never double-claim. Returns ErrNoTasksAvailable when the queue is
	// empty.
	ClaimNext(ctx context.Context, podID string) (*models.Task, error)

	// Heartbeat updates a claimed task's last-activity timestamp so the
	// orphan sweep does not mistake live work for a stale task.
	Heartbeat(ctx context.Context, taskID string) error

	// CountActive returns the number of tasks currently in a non-terminal,
	// claimed (not queued) state, for capacity enforcement.
	CountActive(ctx context.Context) (int, error)

	// UpdateProgress records a non-terminal state transition.
	UpdateProgress(ctx context.Context, taskID string, state models.TaskState, percent int, message string) error

	// FinishTerminal records a Task's terminal outcome.
	FinishTerminal(ctx context.Context, taskID string, state models.TaskState, message string, taskErr *models.TaskError) error

	// NonTerminalTasks returns every task not yet in a terminal state,
	// used by the startup recovery sweep.
	NonTerminalTasks(ctx context.Context) ([]*models.Task, error)

	// StaleActive returns claimed, non-terminal tasks whose last activity
	// is older than cutoff, used by the periodic orphan sweep.
	StaleActive(ctx context.Context, cutoff time.Time) ([]*models.Task, error)

	// Requeue resets a task back to queued with no pod ownership, so any
	// worker may claim it again.
	Requeue(ctx context.Context, taskID string) error
}

// ProgressPublisher is the optional push side of the Progress Bus
// (pkg/progress); nil disables push delivery without affecting polling.
type ProgressPublisher interface {
	Publish(event models.ProgressEvent)
}

// PoolHealth reports the worker pool's current health for /healthz.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	PodID         string         `json:"pod_id"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	ActiveTasks   int            `json:"active_tasks"`
	MaxConcurrent int            `json:"max_concurrent"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
	LastSweep     time.Time      `json:"last_sweep"`
	StaleRecovered int           `json:"stale_recovered"`
}

// WorkerHealth reports a single worker's current health.
type WorkerHealth struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	CurrentTaskID     string    `json:"current_task_id,omitempty"`
	TasksProcessed    int       `json:"tasks_processed"`
	LastActivity      time.Time `json:"last_activity"`
}
