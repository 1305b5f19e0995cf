package config

import (
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher re-decodes the underlying viper instance on every file change and
// serves the new value through Current. A failed reload is logged (once per
// distinct error text; the same error is not re-logged on later changes) and
// the previous Config keeps serving — the process does not exit on a bad
// edit, per the "continue indefinitely on reload failure" resolution in
// DESIGN.md.
type Watcher struct {
	v      *viper.Viper
	logger *slog.Logger

	mu      sync.RWMutex
	current *Config
	lastErr string
}

// NewWatcher wraps v (as returned by Load) and starts watching its config
// file for changes. current is served by Current until the first
// successful reload replaces it.
func NewWatcher(v *viper.Viper, current *Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{v: v, logger: logger, current: current}

	v.OnConfigChange(func(e fsnotify.Event) {
		w.reload(e.Name)
	})
	v.WatchConfig()

	return w
}

// Current returns the most recently successfully decoded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.current
}

func (w *Watcher) reload(path string) {
	cfg, err := decode(w.v)
	if err != nil {
		w.mu.Lock()
		repeated := err.Error() == w.lastErr
		w.lastErr = err.Error()
		w.mu.Unlock()

		if !repeated {
			w.logger.Error("config reload failed, keeping previous configuration", "path", path, "error", err)
		}

		return
	}

	w.mu.Lock()
	w.current = cfg
	w.lastErr = ""
	w.mu.Unlock()

	w.logger.Info("configuration reloaded", "path", path)
}
