package fsservice

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"fileops/internal/logging"
)

// WatchCallback receives a debounced change notification for path.
type WatchCallback func(path string)

const debounceDuration = 300 * time.Millisecond

// Watcher wraps fsnotify with a debounce loop, following the teacher's
// mangle_watcher.go shape: events are coalesced per path on a ticker
// sweep so a burst of writes to the same file fires one callback.
type Watcher struct {
	mu          sync.Mutex
	fsw         *fsnotify.Watcher
	callbacks   map[string]WatchCallback
	debounceMap map[string]time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates an unstarted Watcher.
func NewWatcher() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:         fsw,
		callbacks:   make(map[string]WatchCallback),
		debounceMap: make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Watch registers cb to fire (debounced) on changes to path. path must
// already be a guard-resolved absolute path.
func (w *Watcher) Watch(path string, cb WatchCallback) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.fsw.Add(path); err != nil {
		return err
	}
	w.callbacks[path] = cb

	if !w.running {
		w.running = true
		go w.run()
	}
	return nil
}

// Unwatch removes path's registration.
func (w *Watcher) Unwatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.callbacks, path)
	delete(w.debounceMap, path)
	return w.fsw.Remove(path)
}

// Close stops the watcher loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	running := w.running
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.fsw.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	log := logging.Get(logging.CategoryFSService)

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn("watcher error: %v", err)
		case <-ticker.C:
			w.flushDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) flushDebounced() {
	w.mu.Lock()
	now := time.Now()
	var fire []struct {
		path string
		cb   WatchCallback
	}
	for path, last := range w.debounceMap {
		if now.Sub(last) < debounceDuration {
			continue
		}
		if cb, ok := w.callbacks[path]; ok {
			fire = append(fire, struct {
				path string
				cb   WatchCallback
			}{path, cb})
		}
		delete(w.debounceMap, path)
	}
	w.mu.Unlock()

	for _, f := range fire {
		f.cb(f.path)
	}
}

// Watch registers a watcher for path through the service, lazily creating
// the underlying Watcher on first use.
func (s *Service) Watch(path string, cb WatchCallback) error {
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return err
	}
	if s.watcher == nil {
		w, err := NewWatcher()
		if err != nil {
			return err
		}
		s.watcher = w
	}
	return s.watcher.Watch(resolved, cb)
}

// Unwatch removes path's watch registration.
func (s *Service) Unwatch(path string) error {
	if s.watcher == nil {
		return nil
	}
	resolved, err := s.guard.Resolve(path)
	if err != nil {
		return err
	}
	return s.watcher.Unwatch(resolved)
}

// CloseWatcher releases the service's underlying watcher, if any.
func (s *Service) CloseWatcher() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
