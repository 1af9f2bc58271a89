package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads dir whenever a file in it changes, until ctx is done.
// Bursts of events collapse into one reload.
func (r *Registry) Watch(ctx context.Context, dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer fsw.Close()

		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				r.logger.Debug("registry file changed", "path", ev.Name, "op", ev.Op.String())
				pending = time.After(reloadDebounce)
			case <-pending:
				pending = nil
				if err := r.LoadDir(dir); err != nil {
					r.logger.Error("registry reload failed", "error", err)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				r.logger.Error("registry watcher error", "error", err)
			}
		}
	}()
	return nil
}
