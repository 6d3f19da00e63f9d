// Package watcher reloads the config file when it changes on disk.
package watcher

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"lanwatch/internal/config"
)

// Watcher watches a file for changes
type Watcher struct {
	path     string
	onChange func()
	debounce time.Duration
	log      logrus.FieldLogger
}

// New creates a new file watcher
func New(path string, onChange func(), log logrus.FieldLogger) *Watcher {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		log:      log.WithField("path", path),
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Watch starts watching the file for changes
// It blocks until the context is cancelled or an error occurs
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory containing the file
	// This handles cases where the file is replaced (e.g., by editors)
	dir := filepath.Dir(w.path)
	filename := filepath.Base(w.path)

	if err := watcher.Add(dir); err != nil {
		return err
	}

	w.log.Info("Watching config for changes")

	var (
		mu            sync.Mutex
		debounceTimer *time.Timer
	)
	stop := func() {
		mu.Lock()
		defer mu.Unlock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Base(event.Name) != filename {
				continue
			}

			// Editors save by write, create or rename-over
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// Debounce rapid changes into one callback
			mu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, func() {
				if ctx.Err() != nil {
					return
				}
				w.log.Debug("Config file changed")
				w.onChange()
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Watcher error")

		case <-ctx.Done():
			stop()
			return ctx.Err()
		}
	}
}

// ConfigReloader re-reads the config file and hands the result to apply.
// Files that fail to parse or validate are logged and ignored, so the
// running settings stay in place.
func ConfigReloader(path string, apply func(*config.Config), log logrus.FieldLogger) func() {
	return func() {
		cfg, _, err := config.LoadFromPath(path)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("Ignoring invalid config change")
			return
		}
		apply(cfg)
		log.WithField("path", path).Info("Config reloaded")
	}
}
