package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"signcoach/internal/domain"
)

// WatchEndpoints reloads the endpoint table whenever the file at path changes
// and passes the new table to onChange. It blocks until ctx is cancelled.
// The parent directory is watched so editors that replace the file are seen.
// A file that fails to parse is logged and the previous table stays in effect.
func WatchEndpoints(ctx context.Context, path string, logger *slog.Logger, onChange func(domain.EndpointTable)) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return err
	}

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			table, err := ResolveEndpoints(target)
			if err != nil {
				logger.Warn("config: endpoints reload failed", "path", target, "error", err)
				continue
			}
			logger.Info("config: endpoints reloaded", "path", target, "categories", len(table))
			onChange(table)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config: watcher error", "error", err)
		}
	}
}
