package auth

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the keys file whenever it changes until ctx is done.
// The parent directory is watched so that editors replacing the file are
// picked up too.
func (ks *KeyStore) Watch(ctx context.Context, logger *slog.Logger) error {
	if ks.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(ks.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch dir %s: %w", dir, err)
	}
	target := filepath.Clean(ks.path)
	logger.Info("watching api keys file", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := ks.Reload(); err != nil {
					logger.Error("failed to reload api keys", "err", err)
					continue
				}
				logger.Info("api keys reloaded", "count", ks.Count())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("api keys watcher error", "err", err)
		}
	}
}
