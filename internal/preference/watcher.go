package preference

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the preference file for changes made by other processes
// and reloads the store when they happen
type Watcher struct {
	path  string
	store Store
}

// NewWatcher creates a watcher for the preference file at path
func NewWatcher(path string, store Store) *Watcher {
	return &Watcher{
		path:  filepath.Clean(path),
		store: store,
	}
}

// Run blocks until ctx is cancelled. The parent directory is watched rather
// than the file itself because writes replace the file through a rename.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch preference directory %s: %w", dir, err)
	}

	slog.Info("Watching auto-refresh preference for external changes", "path", w.path)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Stopping preference watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher event channel closed")
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.store.Reload(ctx)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			// Log error but continue watching
			slog.Error("Preference watcher error", "error", err)
		}
	}
}
