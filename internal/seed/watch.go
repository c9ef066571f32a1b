package seed

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for writes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Watch calls reload whenever the file at path is written, created or
// replaced, coalescing bursts of events within debounce. The parent
// directory is watched so editors that save by rename are seen. Watch
// returns once the watcher is running; it stops when ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, reload func()) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve seed path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	changed := make(chan struct{}, 1)
	go handleEvents(ctx, watcher, abs, changed, logger)
	go scheduleReload(ctx, changed, debounce, reload)
	return nil
}

func handleEvents(ctx context.Context, watcher *fsnotify.Watcher, path string, changed chan<- struct{}, logger *slog.Logger) {
	defer func() { _ = watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				select {
				case changed <- struct{}{}:
				default:
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Seed file watcher error", "error", err)
		}
	}
}

func scheduleReload(ctx context.Context, changed <-chan struct{}, debounce time.Duration, reload func()) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-changed:
			if timer != nil {
				timer.Reset(debounce)
			} else {
				timer = time.NewTimer(debounce)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			reload()
		}
	}
}

// WatchAndApply reapplies the seed file at path to store on every change.
// A file that fails to load is logged and the store keeps its records.
func WatchAndApply(ctx context.Context, store Store, path string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	return Watch(ctx, path, DefaultDebounce, logger, func() {
		res, err := LoadAndApply(ctx, store, path)
		if err != nil {
			logger.Error("Failed to reload seed file", "path", path, "error", err)
			return
		}
		logger.Info("Reloaded seed file", "path", path, "clients", res.Clients, "users", res.Users)
	})
}
