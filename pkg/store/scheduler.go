package store

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// WorkspaceGC is the workspace-retention sweep the Scheduler drives on a
// cron schedule; satisfied by *workspace.RetentionSweeper. The stale-task
// recovery sweep is pkg/queue's own responsibility (its worker pool owns
// the TaskStore handle and staleness threshold); this Scheduler only
// covers the store-adjacent housekeeping job, workspace GC, so it can run
// on an operator-configured cron spec instead of a fixed ticker.
type WorkspaceGC interface {
	SweepOnce()
}

// Scheduler runs workspace-retention GC on a cron schedule.
type Scheduler struct {
	gc   WorkspaceGC
	log  *slog.Logger
	cron *cron.Cron
}

// NewScheduler builds a Scheduler wrapping gc.
func NewScheduler(gc WorkspaceGC, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		gc:   gc,
		log:  log.With("component", "store_scheduler"),
		cron: cron.New(),
	}
}

// Start registers the GC job on gcSpec (a standard five-field cron
// expression, e.g. "0 */6 * * *" for every six hours) and begins running
// it in the background.
func (s *Scheduler) Start(gcSpec string) error {
	_, err := s.cron.AddFunc(gcSpec, func() {
		s.log.Info("running scheduled workspace retention sweep")
		s.gc.SweepOnce()
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
