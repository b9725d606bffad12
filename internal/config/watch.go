package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"stagebot/pkg/logx"
)

// Watch re-parses the config file whenever it changes and calls apply with
// each successfully parsed result. Parse or validation failures keep the
// previous config in effect. Watch blocks until ctx is cancelled.
//
// The directory (not the file) is watched because editors and orchestrators
// commonly replace the file via rename.
func Watch(ctx context.Context, path string, log logx.Logger, apply func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	target := filepath.Clean(path)

	// Debounce to avoid reacting to partial writes.
	var pending *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(250*time.Millisecond, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", logx.Err(err))
		case <-fire:
			cfg, err := Load(path)
			if err != nil {
				log.Warn("config reload rejected", logx.Err(err))
				continue
			}
			log.Info("config reloaded", logx.String("path", path))
			apply(cfg)
		}
	}
}
