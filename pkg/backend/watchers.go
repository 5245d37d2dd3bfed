package backend

import "sync"

// Watchers fans StorageEvents out to the contexts of an Area. A context is
// identified by an opaque id; Emit skips watchers registered by the emitting
// context.
type Watchers struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]watcher
}

type watcher struct {
	context uint64
	fn      func(StorageEvent)
}

// Add registers fn on behalf of context.
func (w *Watchers) Add(context uint64, fn func(StorageEvent)) (stop func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.subs == nil {
		w.subs = make(map[uint64]watcher)
	}
	w.nextID++
	id := w.nextID
	w.subs[id] = watcher{context: context, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subs, id)
			w.mu.Unlock()
		})
	}
}

// Emit delivers ev to every watcher not registered by from. Delivery
// happens synchronously in the caller's goroutine, outside the lock.
func (w *Watchers) Emit(from uint64, ev StorageEvent) {
	w.mu.RLock()
	targets := make([]func(StorageEvent), 0, len(w.subs))
	for _, s := range w.subs {
		if s.context != from {
			targets = append(targets, s.fn)
		}
	}
	w.mu.RUnlock()

	for _, fn := range targets {
		fn(ev)
	}
}

// Len returns the number of registered watchers.
func (w *Watchers) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.subs)
}
