package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/foliotrace/foliotrace/pkg/observability"
)

// Watcher reloads the configuration when its file changes and hands each
// successfully validated result to a callback. A file revision that fails
// to parse or validate is logged and skipped; the previous configuration
// stays in effect.
type Watcher struct {
	path   string
	logger *observability.Logger
	apply  func(*Config)

	fw   *fsnotify.Watcher
	done chan struct{}
}

// NewWatcher starts watching path. apply runs on the watcher goroutine,
// so it must not block for long.
func NewWatcher(path string, logger *observability.Logger, apply func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	// Watch the directory rather than the file: editors and mounted
	// config maps replace the file, which silently drops a watch set on
	// the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	w := &Watcher{
		path:   path,
		logger: logger,
		apply:  apply,
		fw:     fw,
		done:   make(chan struct{}),
	}
	go w.run()

	logger.WithField("path", path).Info("Watching configuration file")
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Config reload skipped")
		return
	}

	w.logger.WithField("path", w.path).Info("Configuration reloaded")
	w.apply(cfg)
}

// Close stops watching. No callback runs after Close returns.
func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
