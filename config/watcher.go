package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/weave/pkg/paths"
	"github.com/sirupsen/logrus"
)

// Watcher watches the config directory and reports weave.yml changes so the
// daemon can broadcast a reload event to its clients.
type Watcher struct {
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	onReload   func(file string)
	logger     *logrus.Entry
	mu         sync.Mutex
	lastChange time.Time
	done       chan struct{}
}

// NewWatcher creates a Watcher over the user's config directory. The
// onReload callback fires at most once per debounce window.
func NewWatcher(debounce time.Duration, onReload func(string), logger *logrus.Entry) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	configDir := paths.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	if err := fsWatcher.Add(configDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		debounce: debounce,
		onReload: onReload,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yml") && !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			now := time.Now()
			debounced := now.Sub(w.lastChange) < w.debounce
			if !debounced {
				w.lastChange = now
			}
			w.mu.Unlock()
			if debounced {
				continue
			}

			w.logger.WithField("file", filepath.Base(event.Name)).Info("Config changed")
			if w.onReload != nil {
				w.onReload(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Debug("Config watcher error")
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
