// Package watch implements the file-watcher event contract spec.md §5
// names: a push source emitting Modified/Error events over a bounded,
// drop-oldest channel. Deep per-platform watcher bindings are out of
// scope (spec.md §1); this package supplies the one concrete binding the
// contract doesn't forbid, using fsnotify — already a dependency of the
// teacher's pkg/hotreload/config_reloader.go, which watches config files
// the same way this watches log files.
//
// Per spec.md §9's design note, the orchestrator must never rely solely on
// a watcher event to make progress: this package's events are a latency
// optimization, not a correctness dependency. Callers still run a periodic
// Reload() as the safety net.
package watch

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/lazytail-go/lazytail/internal/metrics"
	"github.com/lazytail-go/lazytail/pkg/errors"
)

// EventKind distinguishes the two shapes spec §5 names.
type EventKind int

const (
	EventModified EventKind = iota
	EventError
)

// Event is one notification from the watcher.
type Event struct {
	Kind EventKind
	Path string
	Err  error
}

// Watcher wraps fsnotify with a bounded, drop-oldest event channel: a slow
// consumer never blocks the OS notification callback thread, and never
// sees an unbounded backlog build up.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan Event
	logger *logrus.Logger

	mu     sync.Mutex
	paths  map[string]bool
	closed bool
}

// New starts a Watcher with a channel of the given capacity.
func New(logger *logrus.Logger, capacity int) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WatcherError("new", "creating fsnotify watcher", err)
	}
	w := &Watcher{
		fsw:    fsw,
		events: make(chan Event, capacity),
		logger: logger,
		paths:  make(map[string]bool),
	}
	go w.pump()
	return w, nil
}

// Add begins watching path (a log file or its containing directory).
func (w *Watcher) Add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.fsw.Add(path); err != nil {
		return errors.WatcherError("add", "watching "+path, err)
	}
	w.paths[path] = true
	return nil
}

// Remove stops watching path.
func (w *Watcher) Remove(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.paths, path)
	if err := w.fsw.Remove(path); err != nil {
		return errors.WatcherError("remove", "unwatching "+path, err)
	}
	return nil
}

// Events returns the channel of Modified/Error notifications.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// pump translates fsnotify's own events/errors into this package's Event
// shape, dropping the oldest buffered event when the channel is full
// rather than blocking the fsnotify callback goroutine.
func (w *Watcher) pump() {
	defer close(w.events)
	for {
		select {
		case fsEvent, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if fsEvent.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			metrics.WatcherEventsTotal.WithLabelValues("modified").Inc()
			w.send(Event{Kind: EventModified, Path: fsEvent.Name})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			metrics.WatcherEventsTotal.WithLabelValues("error").Inc()
			w.send(Event{Kind: EventError, Err: errors.WatcherError("watch", "fsnotify reported an error", err)})
		}
	}
}

func (w *Watcher) send(e Event) {
	select {
	case w.events <- e:
	default:
		select {
		case <-w.events:
			metrics.WatcherEventsTotal.WithLabelValues("dropped").Inc()
		default:
		}
		select {
		case w.events <- e:
		default:
		}
	}
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsw.Close()
}
