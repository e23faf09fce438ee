package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/morntool/webshell/internal/logging"
)

// Watcher reloads configuration when the backing file changes and notifies
// registered callbacks with the new snapshot.
type Watcher struct {
	mu        sync.Mutex
	path      string
	current   *Config
	callbacks []func(*Config)
	watcher   *fsnotify.Watcher
	done      chan struct{}
}

// NewWatcher creates a watcher for the given config file. The initial config
// must already have been loaded; it is served until the first reload.
func NewWatcher(path string, initial *Config) *Watcher {
	return &Watcher{
		path:    path,
		current: initial,
		done:    make(chan struct{}),
	}
}

// Current returns the latest config snapshot.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// OnChange registers a callback invoked after each successful reload.
func (w *Watcher) OnChange(cb func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching the config file's directory. Editors replace files on
// save, so watching the directory catches rename+create sequences too.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return err
	}

	w.mu.Lock()
	w.watcher = fw
	w.mu.Unlock()

	go w.loop(ctx, fw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fw *fsnotify.Watcher) {
	log := logging.FromContext(ctx)
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug().Str("op", event.Op.String()).Str("file", event.Name).Msg("config change detected")
			cfg, err := Load(w.path)
			if err != nil {
				log.Warn().Err(err).Msg("failed to reload config")
				continue
			}
			w.mu.Lock()
			w.current = cfg
			callbacks := make([]func(*Config), len(w.callbacks))
			copy(callbacks, w.callbacks)
			w.mu.Unlock()
			for _, cb := range callbacks {
				cb(cfg)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

// Close stops watching and waits for the loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return nil
	}
	err := fw.Close()
	<-w.done
	return err
}
