// Package watcher provides the shared-file change subscription. It monitors
// the configured shared path and, after a debounce window coalescing bursts of
// change events, invokes the refresh callback. The watcher is (re)established
// whenever the configured path changes and torn down on shutdown.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the debounce window coalescing bursts of change events
// into one callback.
const DefaultDebounce = 100 * time.Millisecond

// Watcher monitors one shared file and triggers a refresh when another
// process modifies it.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func()

	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	stopped bool
	mu      sync.Mutex
}

// New creates a watcher for the shared file at path. onChange runs on the
// watcher's goroutine after each debounced burst of changes.
func New(path string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	return &Watcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched rather than the file
// itself so the subscription survives the file being replaced or created
// after the fact; events for other files in the directory are filtered out.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher has been stopped and cannot be restarted")
	}
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("cannot watch %q: %w", dir, err)
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}

	go w.eventLoop()
	return nil
}

// Stop stops the watcher and cleans up resources. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	_ = w.fsw.Close()
}

// eventLoop processes fsnotify events with debouncing.
func (w *Watcher) eventLoop() {
	var debounceTimer *time.Timer

	// fires when the debounce window expires
	debounceCh := make(chan struct{}, 1)

	resetDebounce := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(w.debounce, func() {
			select {
			case debounceCh <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			resetDebounce()

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Keep watching; a transient error must not kill the subscription.

		case <-debounceCh:
			if w.onChange != nil {
				w.onChange()
			}
		}
	}
}
