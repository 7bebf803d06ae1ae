package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 300 * time.Millisecond

// Watch reloads the config file whenever it changes on disk and hands the
// fresh config to onChange. Editor save storms are debounced. The returned
// stop function releases the watcher.
func Watch(path string, onChange func(*Config)) (stop func(), err error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-done:
				return

			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					cfg, err := Load(path)
					if err != nil {
						slog.Error("config reload failed", "path", path, "error", err)
						return
					}
					slog.Info("config reloaded", "path", path)
					onChange(cfg)
				})

			case werr, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "error", werr)
			}
		}
	}()

	slog.Info("config watcher started", "path", path)
	return func() {
		close(done)
		fw.Close()
	}, nil
}
