package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
)

// WorkerPool owns a fixed set of Workers plus the periodic orphan sweep.
type WorkerPool struct {
	podID    string
	store    TaskStore
	cfg      *config.QueueConfig
	executor Executor
	pub      ProgressPublisher
	log      *slog.Logger

	workers  []*Worker
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu      sync.RWMutex
	cancels map[string]context.CancelFunc
	started bool

	wake  <-chan struct{}
	sweep sweepState
}

func NewWorkerPool(podID string, store TaskStore, cfg *config.QueueConfig, executor Executor, pub ProgressPublisher, log *slog.Logger) *WorkerPool {
	if log == nil {
		log = slog.Default()
	}
	return &WorkerPool{
		podID:    podID,
		store:    store,
		cfg:      cfg,
		executor: executor,
		pub:      pub,
		log:      log.With("component", "worker_pool", "pod_id", podID),
		workers:  make([]*Worker, 0, cfg.WorkerCount),
		stopCh:   make(chan struct{}),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// SetWake wires an optional low-latency dequeue signal (e.g. the Redis
// backend's pub/sub wake channel) that every worker additionally selects
// on between polls. Must be called before Start.
func (p *WorkerPool) SetWake(wake <-chan struct{}) {
	p.wake = wake
}

// Start runs the startup recovery sweep, then spawns worker goroutines and
// the periodic orphan sweep. Safe to call only once.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		p.log.Warn("worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	if err := RecoverOnStartup(ctx, p.store, p.cfg.StaleThreshold, p.log); err != nil {
		return fmt.Errorf("startup recovery sweep: %w", err)
	}

	p.log.Info("starting worker pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		id := fmt.Sprintf("%s-worker-%d", p.podID, i)
		w := NewWorker(id, p.podID, p.store, p.cfg, p.executor, p, p.pub)
		w.SetWake(p.wake)
		p.workers = append(p.workers, w)
		w.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runOrphanSweep(ctx)
	}()

	p.log.Info("worker pool started")
	return nil
}

// Stop signals every worker and the sweep loop to stop, and waits for
// in-flight tasks to reach a terminal state before returning.
func (p *WorkerPool) Stop() {
	p.log.Info("stopping worker pool gracefully")
	for _, w := range p.workers {
		w.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
	p.log.Info("worker pool stopped gracefully")
}

// RegisterTask stores a cancel function so CancelTask can reach a running
// task's context.
func (p *WorkerPool) RegisterTask(taskID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancels[taskID] = cancel
}

func (p *WorkerPool) UnregisterTask(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cancels, taskID)
}

// CancelTask signals a running task's context if it is owned by this pod.
// Returns true if found.
func (p *WorkerPool) CancelTask(taskID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.cancels[taskID]; ok {
		cancel()
		return true
	}
	return false
}

// Health reports the pool's current health.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	active, err := p.store.CountActive(ctx)
	if err != nil {
		p.log.Error("failed to query active task count for health check", "error", err)
	}

	stats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, w := range p.workers {
		stats[i] = w.Health()
		if stats[i].Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	p.sweep.mu.Lock()
	lastSweep := p.sweep.last
	recovered := p.sweep.recovered
	p.sweep.mu.Unlock()

	return &PoolHealth{
		IsHealthy:      err == nil && len(p.workers) > 0,
		PodID:          p.podID,
		ActiveWorkers:  activeWorkers,
		TotalWorkers:   len(p.workers),
		ActiveTasks:    active,
		MaxConcurrent:  p.cfg.MaxConcurrentTasks,
		WorkerStats:    stats,
		LastSweep:      lastSweep,
		StaleRecovered: recovered,
	}
}
