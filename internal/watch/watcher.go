// Package watch tracks a live, debounced count of in-flight edits across
// a set of workspace paths. It never hashes or inspects file content and
// never feeds the Commit Gate's scoring path; its count appears only in the
// human-readable context attached to an InsufficientEnergy report and in
// the doctor output.
package watch

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event fires once a previously in-flight file has gone quiet for the
// debounce interval.
type Event struct {
	Path      string
	Timestamp time.Time
}

// Watcher monitors a set of paths and reports how many of them have been
// touched more recently than the debounce interval.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	paths     []string
	interval  time.Duration

	stateMu sync.RWMutex
	state   map[string]time.Time // path -> last modification time

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher over paths, debouncing by interval.
func New(paths []string, interval time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		paths:     paths,
		interval:  interval,
		state:     make(map[string]time.Time),
		events:    make(chan Event, 100),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of settle events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching all configured paths.
func (w *Watcher) Start() error {
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return err
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if err := w.fsWatcher.Add(absPath); err != nil {
				return err
			}
		} else {
			if err := w.fsWatcher.Add(filepath.Dir(absPath)); err != nil {
				return err
			}
		}
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()

	return nil
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
				continue
			}

			w.stateMu.Lock()
			w.state[event.Name] = time.Now()
			w.stateMu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			w.settleStableFiles(now)
		}
	}
}

// settleStableFiles removes from state, and emits an Event for, every
// path that hasn't been touched for at least the debounce interval.
func (w *Watcher) settleStableFiles(now time.Time) {
	threshold := now.Add(-w.interval)

	w.stateMu.Lock()
	var settled []string
	for path, lastMod := range w.state {
		if lastMod.Before(threshold) {
			settled = append(settled, path)
			delete(w.state, path)
		}
	}
	w.stateMu.Unlock()

	for _, path := range settled {
		select {
		case w.events <- Event{Path: path, Timestamp: now}:
		default:
		}
	}
}

// PendingEdits returns the number of watched paths currently in flight:
// touched within the debounce interval and not yet settled. This is the
// figure the Commit Gate's InsufficientEnergy report shows alongside
// the git-derived staged/unstaged/untracked counts.
func (w *Watcher) PendingEdits() int {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	return len(w.state)
}

// WatchedPaths returns the list of paths being watched.
func (w *Watcher) WatchedPaths() []string {
	return w.paths
}
