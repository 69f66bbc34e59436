package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the bursts of events editors emit on save.
const watchDebounce = 250 * time.Millisecond

// Watch reloads the config whenever the file changes and hands the parsed
// result to onChange. Invalid intermediate states are logged and skipped so
// a half-written file never tears down a running service. Blocks until the
// context is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: most editors replace the file on
	// save, which would drop a direct watch.
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Warn("config watch error", "error", err)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			cfg, err := Load(absPath)
			if err != nil {
				if logger != nil {
					logger.Warn("config reload failed", "path", absPath, "error", err)
				}
				continue
			}
			if logger != nil {
				logger.Info("config reloaded", "path", absPath)
			}
			onChange(cfg)
		}
	}
}
