package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher watches the config file for changes and reloads it,
// letting voice and rate-limit settings change without a restart.
type Watcher struct {
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger
	configPath string

	mu       sync.RWMutex
	onReload []func(*Config)
	done     chan struct{}
}

// NewWatcher creates a watcher for the config file in the config directory.
func NewWatcher(logger zerolog.Logger) (*Watcher, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(configDir); err != nil {
		watcher.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:    watcher,
		logger:     logger.With().Str("component", "config-watcher").Logger(),
		configPath: filepath.Join(configDir, "config.yaml"),
		done:       make(chan struct{}),
	}

	go w.watchLoop()

	return w, nil
}

// OnReload registers a callback invoked with the freshly loaded config.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = append(w.onReload, fn)
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) && event.Name == w.configPath {
				cfg, err := Load()
				if err != nil {
					w.logger.Error().Err(err).Msg("Config reload failed")
					continue
				}
				w.logger.Info().Str("path", event.Name).Msg("Config reloaded")

				w.mu.RLock()
				callbacks := make([]func(*Config), len(w.onReload))
				copy(callbacks, w.onReload)
				w.mu.RUnlock()

				for _, fn := range callbacks {
					go fn(cfg)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Config watcher error")
		}
	}
}

// Close stops the watcher
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
