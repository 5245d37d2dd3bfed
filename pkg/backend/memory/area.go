package memory

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/rxstore/pkg/backend"
)

// ErrQuotaExceeded is returned by SetItem when the area is full.
var ErrQuotaExceeded = errors.New("memory: area quota exceeded")

// Area is an in-memory flat key/value store shared by several execution
// contexts. Use Context to obtain the backend.Area of one context.
type Area struct {
	mu    sync.RWMutex
	items map[string]string
	quota int

	watchers backend.Watchers
	contexts atomic.Uint64
}

// AreaOption configures an Area.
type AreaOption func(*Area)

// WithQuota limits the total size (keys plus values, in bytes) of the area.
// Zero means unlimited.
func WithQuota(bytes int) AreaOption {
	return func(a *Area) {
		a.quota = bytes
	}
}

// NewArea creates an empty area.
func NewArea(opts ...AreaOption) *Area {
	a := &Area{items: make(map[string]string)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Context returns a view of the area for a new execution context. Changes
// made through the view are announced to the watchers of every other view.
func (a *Area) Context() *View {
	return &View{area: a, id: a.contexts.Add(1)}
}

func (a *Area) size(except string) int {
	n := 0
	for k, v := range a.items {
		if k == except {
			continue
		}
		n += len(k) + len(v)
	}
	return n
}

// View is the backend.Area of one execution context.
type View struct {
	area *Area
	id   uint64
}

var _ backend.Area = (*View)(nil)

// GetItem implements backend.Area.
func (v *View) GetItem(key string) (string, bool) {
	v.area.mu.RLock()
	defer v.area.mu.RUnlock()
	s, ok := v.area.items[key]
	return s, ok
}

// SetItem implements backend.Area.
func (v *View) SetItem(key, value string) error {
	a := v.area

	a.mu.Lock()
	if a.quota > 0 && a.size(key)+len(key)+len(value) > a.quota {
		a.mu.Unlock()
		return ErrQuotaExceeded
	}
	old, had := a.items[key]
	a.items[key] = value
	a.mu.Unlock()

	ev := backend.StorageEvent{Key: key, NewValue: &value}
	if had {
		ev.OldValue = &old
	}
	a.watchers.Emit(v.id, ev)
	return nil
}

// RemoveItem implements backend.Area.
func (v *View) RemoveItem(key string) {
	a := v.area

	a.mu.Lock()
	old, had := a.items[key]
	delete(a.items, key)
	a.mu.Unlock()

	if !had {
		return
	}
	a.watchers.Emit(v.id, backend.StorageEvent{Key: key, OldValue: &old})
}

// Keys implements backend.Area. Keys are sorted.
func (v *View) Keys() []string {
	v.area.mu.RLock()
	keys := make([]string, 0, len(v.area.items))
	for k := range v.area.items {
		keys = append(keys, k)
	}
	v.area.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Watch implements backend.Area.
func (v *View) Watch(fn func(backend.StorageEvent)) func() {
	return v.area.watchers.Add(v.id, fn)
}
