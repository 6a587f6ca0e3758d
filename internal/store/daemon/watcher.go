package daemon

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of cache change.
type EventOp int

const (
	// OpWrite indicates a key was created or replaced.
	OpWrite EventOp = iota
	// OpRemove indicates a key was removed.
	OpRemove
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// CacheDir is the directory-backed fast cache as seen by the watcher.
// *cache.Dir implements it.
type CacheDir interface {
	Path() string
	KeyFor(path string) (string, bool)
}

// CacheEvent is a change to one cache key.
type CacheEvent struct {
	Key string
	Op  EventOp
}

// CacheWatcher watches the cache directory for key changes.
type CacheWatcher struct {
	dir     CacheDir
	watcher *fsnotify.Watcher
	events  chan CacheEvent
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewCacheWatcher creates a watcher for dir.
// The watcher must be started with Start() before it will emit events.
func NewCacheWatcher(dir CacheDir) (*CacheWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &CacheWatcher{
		dir:     dir,
		watcher: watcher,
		events:  make(chan CacheEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the cache directory.
func (cw *CacheWatcher) Start() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running {
		return fmt.Errorf("watcher already running")
	}

	if err := cw.watcher.Add(cw.dir.Path()); err != nil {
		return fmt.Errorf("failed to watch cache directory %s: %w", cw.dir.Path(), err)
	}

	cw.running = true
	cw.wg.Add(1)
	go cw.processEvents()

	return nil
}

// Stop stops watching and closes the event channels. It blocks until the
// event loop has exited. A watcher that never started is closed too.
func (cw *CacheWatcher) Stop() error {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return cw.watcher.Close()
	}
	cw.running = false
	cw.mu.Unlock()

	// Signal shutdown
	close(cw.done)

	// Close the underlying watcher (this will unblock the event loop)
	if err := cw.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	cw.wg.Wait()

	close(cw.events)
	close(cw.errors)

	return nil
}

// Events returns the channel of cache events. It is closed on Stop.
func (cw *CacheWatcher) Events() <-chan CacheEvent {
	return cw.events
}

// Errors returns the channel of watcher errors. It is closed on Stop.
func (cw *CacheWatcher) Errors() <-chan error {
	return cw.errors
}

// IsRunning returns true if the watcher is currently running.
func (cw *CacheWatcher) IsRunning() bool {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.running
}

func (cw *CacheWatcher) processEvents() {
	defer cw.wg.Done()

	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if ev, ok := cw.convertEvent(event); ok {
				select {
				case cw.events <- ev:
				case <-cw.done:
					return
				}
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case cw.errors <- err:
			case <-cw.done:
				return
			}
		}
	}
}

// convertEvent maps an fsnotify event on a cache file to a CacheEvent.
// Temp files and chmod events are ignored.
func (cw *CacheWatcher) convertEvent(event fsnotify.Event) (CacheEvent, bool) {
	key, ok := cw.dir.KeyFor(event.Name)
	if !ok {
		return CacheEvent{}, false
	}

	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		// Cache writes land as a rename over the key file, which
		// surfaces as a create of the key's name.
		return CacheEvent{Key: key, Op: OpWrite}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		return CacheEvent{Key: key, Op: OpRemove}, true
	default:
		return CacheEvent{}, false
	}
}
