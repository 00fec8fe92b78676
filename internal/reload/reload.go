// Package reload provides hot reload of the sitekit configuration file.
// On a change event the watcher re-validates the file and invokes a
// caller-supplied handler, typically one that resets and re-initializes
// the application context.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sitekit/sitekit/internal/config"
	"github.com/sitekit/sitekit/pkg/logging"
)

// Handler is invoked with the freshly loaded and validated configuration.
type Handler func(cfg *config.Configuration) error

// Config holds watcher configuration
type Config struct {
	// ConfigFile is the path to watch.
	ConfigFile string

	// Debounce coalesces bursts of change events into one reload.
	Debounce time.Duration
}

// Stats tracks reload statistics
type Stats struct {
	TotalReloads      int64     `json:"total_reloads"`
	SuccessfulReloads int64     `json:"successful_reloads"`
	FailedReloads     int64     `json:"failed_reloads"`
	LastReloadTime    time.Time `json:"last_reload_time"`
}

// Watcher watches the configuration file and drives reloads.
type Watcher struct {
	config  Config
	handler Handler
	logger  *logging.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// NewWatcher creates a config file watcher
func NewWatcher(cfg Config, handler Handler, logger *logging.Logger) (*Watcher, error) {
	if cfg.ConfigFile == "" {
		return nil, fmt.Errorf("reload watcher requires a config file path")
	}
	if handler == nil {
		return nil, fmt.Errorf("reload watcher requires a handler")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}

	return &Watcher{
		config:  cfg,
		handler: handler,
		logger:  logger,
	}, nil
}

// Start begins watching. Watching the parent directory instead of the file
// itself survives editors that replace the file on save.
func (w *Watcher) Start(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(w.config.ConfigFile)
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.watcher = fsWatcher
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(runCtx)

	w.logger.Info("config watcher started", map[string]interface{}{
		"file": w.config.ConfigFile,
	})
	return nil
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

// GetStats returns current reload statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	var debounce *time.Timer
	var debounceC <-chan time.Time

	target := filepath.Clean(w.config.ConfigFile)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(w.config.Debounce)
			} else {
				debounce.Reset(w.config.Debounce)
			}
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// reload loads and validates the file, then hands it to the handler.
// Validation failures keep the previous configuration in effect.
func (w *Watcher) reload() {
	w.mu.Lock()
	w.stats.TotalReloads++
	w.stats.LastReloadTime = time.Now()
	w.mu.Unlock()

	cfg := config.NewDefault()
	if err := cfg.LoadFromFile(w.config.ConfigFile); err != nil {
		w.fail("failed to load changed config", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.fail("changed config is invalid, keeping previous", err)
		return
	}

	if err := w.handler(cfg); err != nil {
		w.fail("reload handler failed", err)
		return
	}

	w.mu.Lock()
	w.stats.SuccessfulReloads++
	w.mu.Unlock()
	w.logger.Info("configuration reloaded", map[string]interface{}{
		"file": w.config.ConfigFile,
	})
}

func (w *Watcher) fail(message string, err error) {
	w.mu.Lock()
	w.stats.FailedReloads++
	w.mu.Unlock()
	w.logger.Error(message, map[string]interface{}{
		"file":  w.config.ConfigFile,
		"error": err.Error(),
	})
}
