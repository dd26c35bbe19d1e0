package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/slurmcore/slurmcore/pkg/auth"
	"github.com/slurmcore/slurmcore/pkg/log"
)

// ReconfigureFunc builds a fresh AuthProvider from a just-reloaded Config,
// e.g. by reading a (possibly rotated) key file the new Config points at.
type ReconfigureFunc func(cfg *Config) (auth.Provider, error)

// Watcher watches a fetch_config cache directory and, on change, reloads
// the cached snapshot and installs a new AuthProvider into reg via its
// writer lock (Registry.Replace), per spec §6's reconfiguration path.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	reg     *auth.Registry
	build   ReconfigureFunc
	done    chan struct{}
}

// NewWatcher starts watching dir (a fetch_config cache directory). build is
// called with the reloaded Config on every write event; its result replaces
// reg's active provider.
func NewWatcher(dir string, reg *auth.Registry, build ReconfigureFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}

	w := &Watcher{watcher: fsw, dir: dir, reg: reg, build: build, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	logger := log.WithComponent("config")
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				logger.Warn().Err(err).Str("dir", w.dir).Msg("config: reload after change failed")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("config: watch error")
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() error {
	cfg, err := LoadCachedSnapshot(w.dir)
	if err != nil {
		return err
	}
	provider, err := w.build(cfg)
	if err != nil {
		return fmt.Errorf("config: rebuild auth provider: %w", err)
	}
	w.reg.Replace(provider)
	return nil
}

// Close stops the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
