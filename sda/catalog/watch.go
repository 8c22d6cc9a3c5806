package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalog whenever CSV files in the loaded folder change.
// Bursts of events within debounce trigger a single reload. A failed reload
// keeps the previous catalog. Watch blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context, debounce time.Duration) error {
	folder := r.Folder()
	if folder == "" {
		return fmt.Errorf("watch before any successful load")
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(folder); err != nil {
		return fmt.Errorf("watch %s: %w", folder, err)
	}
	r.logger.Info().Str("folder", folder).Msg("watching for CSV changes")

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			r.logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("change detected")
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			if _, err := r.Reload(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reload failed; keeping previous catalog")
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !isCSV(ev.Name) && !isIgnoreFile(ev.Name) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

func isIgnoreFile(path string) bool {
	return filepath.Base(path) == IgnoreFile
}
