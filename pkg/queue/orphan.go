package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// sweepState tracks orphan-sweep metrics, read by Health().
type sweepState struct {
	mu        sync.Mutex
	last      time.Time
	recovered int
}

// runOrphanSweep periodically scans for tasks whose last activity has gone
// stale while this process is still alive (a worker goroutine died without
// crashing the whole process). Every pod runs this independently;
// transitions are idempotent.
func (p *WorkerPool) runOrphanSweep(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			recovered, err := sweepStale(ctx, p.store, p.cfg.StaleThreshold, p.log)
			if err != nil {
				p.log.Error("orphan sweep failed", "error", err)
				continue
			}
			p.sweep.mu.Lock()
			p.sweep.last = time.Now()
			p.sweep.recovered += recovered
			p.sweep.mu.Unlock()
		}
	}
}

// sweepStale marks every claimed, non-terminal task whose last activity is
// older than staleThreshold as failed with ServerRestart — a stale task is
// never automatically re-enqueued, since by the time it is detected stale
// the process is still running and something about its execution, not the
// process itself, is wrong.
func sweepStale(ctx context.Context, store TaskStore, staleThreshold time.Duration, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	cutoff := time.Now().Add(-staleThreshold)
	stale, err := store.StaleActive(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("querying stale tasks: %w", err)
	}

	recovered := 0
	for _, task := range stale {
		msg := fmt.Sprintf("no heartbeat since %s", task.UpdatedAt.Format(time.RFC3339))
		if err := store.FinishTerminal(ctx, task.TaskID, models.StateFailed, msg, &models.TaskError{Kind: models.ErrServerRestart, Message: msg}); err != nil {
			log.Error("failed to recover stale task", "task_id", task.TaskID, "error", err)
			continue
		}
		log.Warn("stale task marked failed", "task_id", task.TaskID, "last_update", task.UpdatedAt)
		recovered++
	}
	return recovered, nil
}

// RecoverOnStartup runs once before the worker pool begins processing.
// Every claimed non-terminal task is reclassified: one whose last update is
// older than staleThreshold is marked failed/ServerRestart; a task still fresh
// (the process was restarted quickly, e.g. a rolling deploy) is reset to
// queued so a worker picks it back up (spec: "tasks still fresh are
// re-enqueued"). Tasks still in queued are left as they are, however old
// their last update.
func RecoverOnStartup(ctx context.Context, store TaskStore, staleThreshold time.Duration, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	tasks, err := store.NonTerminalTasks(ctx)
	if err != nil {
		return fmt.Errorf("listing non-terminal tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	cutoff := time.Now().Add(-staleThreshold)
	var staleCount, requeued int
	for _, task := range tasks {
		if task.State == models.StateQueued {
			// Already queued tasks need no action; a worker will claim them.
			continue
		}
		if task.UpdatedAt.Before(cutoff) {
			msg := fmt.Sprintf("process restarted while task was in state %s", task.State)
			if err := store.FinishTerminal(ctx, task.TaskID, models.StateFailed, msg, &models.TaskError{Kind: models.ErrServerRestart, Message: msg}); err != nil {
				log.Error("failed to fail stale startup task", "task_id", task.TaskID, "error", err)
				continue
			}
			staleCount++
			continue
		}
		if err := store.Requeue(ctx, task.TaskID); err != nil {
			log.Error("failed to requeue fresh startup task", "task_id", task.TaskID, "error", err)
			continue
		}
		requeued++
	}

	log.Info("startup recovery sweep complete", "stale_failed", staleCount, "requeued", requeued)
	return nil
}
