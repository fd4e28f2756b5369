package main

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ConfigWatcher reloads the config file when it changes on disk.
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config)
	logger   *zap.Logger
	done     chan struct{}
}

// WatchConfig watches the directory of path, since editors usually replace
// the file rather than write it in place.
func WatchConfig(path string, onReload func(*Config), logger *zap.Logger) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &ConfigWatcher{
		path:     abs,
		watcher:  watcher,
		onReload: onReload,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go w.eventLoop()
	return w, nil
}

func (w *ConfigWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *ConfigWatcher) eventLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

// reload keeps the running config when the new file does not load.
func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		ConfigReloads.WithLabelValues("error").Inc()
		w.logger.Error("config reload failed, keeping previous config", zap.Error(err))
		return
	}
	ConfigReloads.WithLabelValues("ok").Inc()
	w.logger.Info("config reloaded", zap.String("path", w.path), zap.Int64s("nodes", cfg.NodeIDs))
	w.onReload(cfg)
}
