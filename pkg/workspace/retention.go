package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hwvendor/triage-orchestrator/pkg/config"
)

// Cleanup deletes a task's workspace directory outright — the normal,
// successful-path cleanup.
func Cleanup(root string) error {
	return os.RemoveAll(root)
}

// Snapshot reduces a task's workspace down to its logs tree and agent
// transcript (if present) under a retained post-mortem snapshot, deleting
// everything else, so a failed task's workspace directory survives for
// debugging without keeping the full extracted log volume on disk forever.
func Snapshot(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		name := e.Name()
		if name == "logs" || name == "transcript.txt" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			return err
		}
	}
	return nil
}

// RetentionSweeper periodically deletes workspace directories older than
// the configured retention window, as a backstop for any task whose
// terminal-state cleanup did not run (process crash, forced kill).
type RetentionSweeper struct {
	cfg *config.WorkspaceConfig
	log *slog.Logger
}

func NewRetentionSweeper(cfg *config.WorkspaceConfig, log *slog.Logger) *RetentionSweeper {
	if log == nil {
		log = slog.Default()
	}
	return &RetentionSweeper{cfg: cfg, log: log.With("component", "workspace_retention")}
}

// Run blocks, sweeping on cfg.RetentionSweepInterval until ctx is
// cancelled.
func (s *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RetentionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs a single retention pass immediately; exported so an
// external scheduler (pkg/store's cron jobs) can drive it instead of, or
// in addition to, Run's internal ticker.
func (s *RetentionSweeper) SweepOnce() {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	entries, err := os.ReadDir(s.cfg.Root)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("retention sweep could not list workspace root", "error", err)
		}
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.cfg.Root, e.Name())
			if err := os.RemoveAll(path); err != nil {
				s.log.Warn("retention sweep failed to remove workspace", "path", path, "error", err)
				continue
			}
			s.log.Info("retention sweep removed expired workspace", "path", path)
		}
	}
}
