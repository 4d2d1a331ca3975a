package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces bursts of filesystem events (a rename lands as
// create+rename on some platforms) into one notification.
const debounceDelay = 250 * time.Millisecond

// Watcher monitors the store directory and invokes a callback when
// another process changes it. The embedded store's cache is invalidated
// before the callback runs, so the callback sees fresh records.
type Watcher struct {
	store    *Store
	onChange func()

	fsWatcher *fsnotify.Watcher

	mu      sync.Mutex
	timer   *time.Timer
	stopCh  chan struct{}
	stopped bool
}

// NewWatcher starts watching the store's directory. onChange runs on the
// watcher's goroutine after each debounced batch of events; it may be nil.
func NewWatcher(s *Store, onChange func()) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	if err := fsWatcher.Add(s.Dir()); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch account storage directory: %w", err)
	}

	w := &Watcher{
		store:     s,
		onChange:  onChange,
		fsWatcher: fsWatcher,
		stopCh:    make(chan struct{}),
	}

	go w.run()

	slog.Debug("account store watcher started", "dir", s.Dir())
	return w, nil
}

// Stop shuts the watcher down. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true

	close(w.stopCh)
	w.fsWatcher.Close()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.scheduleReload()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("account store watcher error", "error", err.Error())
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	slog.Debug("account store changed on disk, invalidating cache")
	w.store.Invalidate()
	if w.onChange != nil {
		w.onChange()
	}
}
