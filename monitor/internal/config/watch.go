package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events one editor save produces.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads path whenever it changes and calls onChange with the new
// Config if it differs from the one last applied, starting from current.
// It runs until ctx is cancelled.
//
// The parent directory is watched rather than the file so that atomic saves
// (write to temp, rename over) are seen. A reload that fails to parse or
// validate is logged and the previous config stays in effect.
func Watch(ctx context.Context, path string, current *Config, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(target), err)
	}
	slog.Info("config: watching for changes", "path", target)

	reload := time.NewTimer(reloadDebounce)
	if !reload.Stop() {
		<-reload.C
	}
	defer reload.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			reload.Reset(reloadDebounce)

		case <-reload.C:
			next, err := Load(target)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config", "path", target, "err", err)
				continue
			}
			if current != nil && reflect.DeepEqual(current, next) {
				slog.Debug("config: file touched but unchanged", "path", target)
				continue
			}
			current = next
			slog.Info("config: reloaded", "path", target, "interval", next.Monitor.Interval)
			onChange(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
