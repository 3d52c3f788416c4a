package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// WorkerStatus is a worker's health-reporting state.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// TaskRegistry is the subset of WorkerPool a Worker needs for cancel
// registration.
type TaskRegistry interface {
	RegisterTask(taskID string, cancel context.CancelFunc)
	UnregisterTask(taskID string)
}

// Worker polls TaskStore for claimable tasks and runs each one through
// Executor until stopped.
type Worker struct {
	id       string
	podID    string
	store    TaskStore
	cfg      *config.QueueConfig
	executor Executor
	pub      ProgressPublisher
	registry TaskRegistry
	wake     <-chan struct{} // optional: external low-latency dequeue signal (e.g. Redis pub/sub)
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu             sync.RWMutex
	status         WorkerStatus
	currentTaskID  string
	tasksProcessed int
	lastActivity   time.Time
}

func NewWorker(id, podID string, store TaskStore, cfg *config.QueueConfig, executor Executor, registry TaskRegistry, pub ProgressPublisher) *Worker {
	return &Worker{
		id:           id,
		podID:        podID,
		store:        store,
		cfg:          cfg,
		executor:     executor,
		pub:          pub,
		registry:     registry,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// SetWake wires an optional signal channel the worker also selects on while
// sleeping between polls, so an external notifier (e.g. the Redis backend's
// pub/sub wake) can cut the next claim attempt's latency down from a full
// poll interval. Nil keeps the poll+jitter loop as the only wakeup source.
func (w *Worker) SetWake(wake <-chan struct{}) {
	w.wake = wake
}

func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         string(w.status),
		CurrentTaskID:  w.currentTaskID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id, "pod_id", w.podID)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoTasksAvailable) || errors.Is(err, ErrAtCapacity) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing task", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	case <-w.wake:
	}
}

// pollAndProcess checks capacity, claims a task, and runs it end to end.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	active, err := w.store.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("checking active task count: %w", err)
	}
	if active >= w.cfg.MaxConcurrentTasks {
		return ErrAtCapacity
	}

	task, err := w.store.ClaimNext(ctx, w.podID)
	if err != nil {
		return err
	}

	log := slog.With("task_id", task.TaskID, "issue_id", task.IssueID, "worker_id", w.id)
	log.Info("task claimed")

	w.setStatus(WorkerStatusWorking, task.TaskID)
	defer w.setStatus(WorkerStatusIdle, "")

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.registry.RegisterTask(task.TaskID, cancel)
	defer w.registry.UnregisterTask(task.TaskID)

	heartbeatCtx, cancelHeartbeat := context.WithCancel(taskCtx)
	go w.runHeartbeat(heartbeatCtx, task.TaskID)

	result := w.executor.Execute(taskCtx, task)
	cancelHeartbeat()

	if result == nil {
		result = &ExecutionResult{State: models.StateFailed, Error: &models.TaskError{Kind: models.ErrAgentCrash, Message: "executor returned no result"}}
	}
	if result.State == "" && errors.Is(taskCtx.Err(), context.Canceled) {
		result = &ExecutionResult{State: models.StateCancelled, Error: &models.TaskError{Kind: models.ErrCancelled, Message: "task cancelled"}}
	}

	finishCtx := context.Background()
	if err := w.store.FinishTerminal(finishCtx, task.TaskID, result.State, result.Message, result.Error); err != nil {
		log.Error("failed to record terminal state", "error", err)
		return err
	}

	if w.pub != nil {
		w.pub.Publish(models.ProgressEvent{
			TaskID:    task.TaskID,
			State:     result.State,
			UpdatedAt: time.Now(),
		})
	}

	w.mu.Lock()
	w.tasksProcessed++
	w.mu.Unlock()

	log.Info("task processing complete", "state", result.State)
	return nil
}

func (w *Worker) runHeartbeat(ctx context.Context, taskID string) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, taskID); err != nil {
				slog.Warn("heartbeat update failed", "task_id", taskID, "error", err)
			}
		}
	}
}

func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
}
