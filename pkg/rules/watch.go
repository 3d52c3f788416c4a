package rules

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts a debounced filesystem watch over the catalog's directory
// and triggers Reload on any change, until ctx is cancelled. Multiple
// rapid-fire edits (an editor's save-then-rename dance, a git checkout of
// many files at once) collapse into a single reload after debounce elapses
// with no further events.
func (c *Catalog) Watch(ctx context.Context, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := watcher.Add(c.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var timer *time.Timer
		var timerC <-chan time.Time
		reset := func() {
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounce)
			}
			timerC = timer.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					reset()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				c.log.Warn("rule catalog watch error", "error", err)
			case <-timerC:
				timerC = nil
				if err := c.Reload(); err != nil {
					c.log.Error("rule catalog reload failed", "error", err)
				}
			}
		}
	}()

	return nil
}
