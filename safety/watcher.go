package safety

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchLimitsFile reloads the limits file whenever it changes on disk,
// feeding the result through the manager's administrative update (so an
// inverted pair in the file is rejected and the old limits stay in force).
// The returned watcher must be closed on shutdown.
func WatchLimitsFile(path string, mgr *Manager, logger *slog.Logger) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files rather than writing in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}
	log := logger.With("component", "limits_watcher")

	go func() {
		target := filepath.Clean(path)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				limits, err := LoadLimitsFile(path)
				if err != nil {
					log.Error("limits file reload failed", "error", err)
					continue
				}
				if err := mgr.UpdateLimits(limits); err != nil {
					log.Error("limits update rejected", "error", err)
					continue
				}
				log.Info("limits file reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("limits watcher error", "error", err)
			}
		}
	}()

	return watcher, nil
}
