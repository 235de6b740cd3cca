// Package watcher monitors the policy directory for changes made outside
// the editor, e.g. by another admin tool or a hand edit. Open pages use the
// events to re-check save tokens and precedence conflicts instead of
// discovering a mismatch at save time.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is the kind of change observed on a policy file.
type Operation int

const (
	OpModify Operation = iota
	OpDelete
)

func (op Operation) String() string {
	if op == OpDelete {
		return "delete"
	}
	return "modify"
}

// Event describes one debounced change to a policy file.
type Event struct {
	// Name is the policy filename relative to the watched directory.
	Name      string
	Operation Operation
	Time      time.Time
}

// Handler receives debounced policy file events.
type Handler func(Event)

// Watcher watches a single flat policy directory. Events for temporary
// files (including our own atomic-write staging files) are dropped, and
// rapid successive events on the same file are debounced.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	dir       string
	suffix    string
	debounce  time.Duration

	mu      sync.Mutex
	handler Handler
	pending map[string]time.Time
	running bool

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher for policy files (by suffix) in dir.
func New(dir, suffix string, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		dir:       dir,
		suffix:    suffix,
		debounce:  debounce,
		pending:   make(map[string]time.Time),
		done:      make(chan struct{}),
	}, nil
}

// SetHandler sets the event callback. Must be set before Start.
func (w *Watcher) SetHandler(handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
}

// Start begins watching. The directory must exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.fsWatcher.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents()
	go w.processDebounce()
	return nil
}

// Stop stops the watcher and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.done) })
	return w.fsWatcher.Close()
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	base := filepath.Base(event.Name)
	if !strings.HasSuffix(base, w.suffix) {
		return
	}
	// Atomic writes show up as a tmp-file rename; the suffix filter above
	// already drops the staging file, this drops stray dotfiles.
	if strings.HasPrefix(base, ".") {
		return
	}

	w.mu.Lock()
	w.pending[base] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounce() {
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

func (w *Watcher) flushPending() {
	w.mu.Lock()
	handler := w.handler
	if handler == nil || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	var toSend []Event
	for name, eventTime := range w.pending {
		if now.Sub(eventTime) < w.debounce {
			continue
		}
		delete(w.pending, name)
		op := OpModify
		if _, err := os.Stat(filepath.Join(w.dir, name)); err != nil {
			op = OpDelete
		}
		toSend = append(toSend, Event{Name: name, Operation: op, Time: now})
	}
	w.mu.Unlock()

	for _, event := range toSend {
		handler(event)
	}
}
