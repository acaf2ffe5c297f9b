package inlay

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultReloadDebounce coalesces bursts of writes to the config file.
const DefaultReloadDebounce = 250 * time.Millisecond

// ConfigWatcher reloads a config file when it changes on disk.
type ConfigWatcher struct {
	path     string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	onReload func(*Config)
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// WatchConfig starts watching path. onReload is called with every config
// that loads and validates; broken edits are logged and skipped.
func WatchConfig(path string, logger *zap.Logger, onReload func(*Config)) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	err = watcher.Add(filepath.Dir(path))
	if err != nil {
		_ = watcher.Close()

		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	cw := &ConfigWatcher{
		path:     filepath.Clean(path),
		logger:   logger,
		watcher:  watcher,
		onReload: onReload,
		debounce: DefaultReloadDebounce,
		done:     make(chan struct{}),
	}

	go cw.loop()

	return cw, nil
}

func (cw *ConfigWatcher) loop() {
	defer close(cw.done)

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != cw.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				cw.logger.Debug("Config changed",
					zap.String("file", event.Name),
					zap.String("op", event.Op.String()))
				cw.schedule()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}

			cw.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (cw *ConfigWatcher) schedule() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.timer != nil {
		cw.timer.Stop()
	}

	cw.timer = time.AfterFunc(cw.debounce, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	cfg, err := LoadConfigFile(cw.path)
	if err != nil {
		cw.logger.Warn("Config reload failed", zap.String("path", cw.path), zap.Error(err))

		return
	}

	cw.logger.Info("Config reloaded", zap.String("path", cw.path))
	cw.onReload(cfg)
}

// Close stops watching and waits for the event loop to exit.
func (cw *ConfigWatcher) Close() error {
	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()

	err := cw.watcher.Close()
	<-cw.done

	return err
}
