package reactive

import (
	"context"
	"log/slog"
	"sync"
)

// Cell is a reactive value container.
//
// Set and Update replace the value and notify OnChange subscribers unless the
// equality function reports the new value equal to the current one. The
// default equality function is Same.
type Cell struct {
	id uint64

	mu    sync.RWMutex
	value any

	// equal is the equality function used to determine if the value changed.
	equal EqualFunc

	subs subscriberSet
}

// NewCell creates a cell holding initial.
func NewCell(initial any) *Cell {
	return &Cell{
		id:    nextID(),
		value: initial,
	}
}

// ID returns the unique identifier for this cell.
func (c *Cell) ID() uint64 {
	return c.id
}

// WithEquals configures a custom equality function. A nil fn restores Same.
func (c *Cell) WithEquals(fn EqualFunc) *Cell {
	c.mu.Lock()
	c.equal = fn
	c.mu.Unlock()
	return c
}

// Get returns the current value.
func (c *Cell) Get() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set updates the value and notifies subscribers if the value changed.
func (c *Cell) Set(v any) {
	c.mu.Lock()
	changed := !c.equals(c.value, v)
	if changed {
		c.value = v
	}
	c.mu.Unlock()

	if changed {
		c.subs.notify(v)
	}
}

// Update atomically reads and updates the value. It returns the value
// computed by fn.
func (c *Cell) Update(fn func(any) any) any {
	c.mu.Lock()
	next := fn(c.value)
	changed := !c.equals(c.value, next)
	if changed {
		c.value = next
	}
	c.mu.Unlock()

	if changed {
		c.subs.notify(next)
	}
	return next
}

// OnChange registers fn to be called with every new value. Unlike
// Stream.Subscribe there is no replay; read the current value with Get.
func (c *Cell) OnChange(fn func(any)) *Subscription {
	return c.subs.add(fn)
}

func (c *Cell) equals(a, b any) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	return Same(a, b)
}

// ReadCell is a read-only view of a Cell.
type ReadCell struct {
	cell *Cell
}

// ReadOnly returns a read-only view of c.
func ReadOnly(c *Cell) *ReadCell {
	return &ReadCell{cell: c}
}

// Get returns the current value.
func (r *ReadCell) Get() any {
	return r.cell.Get()
}

// OnChange registers fn to be called with every new value.
func (r *ReadCell) OnChange(fn func(any)) *Subscription {
	return r.cell.OnChange(fn)
}

// PersistFunc writes a value set through a WriteCell to its backing store.
type PersistFunc func(ctx context.Context, value any) error

// WriteCell is a writable view of a Cell whose mutations are persisted.
//
// The backing Cell can still be changed directly; such changes are not
// persisted. Backend-originated updates use that path, so a value echoed
// back from the store never schedules another write.
//
// Writes are persisted one at a time in the order they were made.
type WriteCell struct {
	cell    *Cell
	persist PersistFunc
	logger  *slog.Logger
	key     string

	inline   bool
	ignore   func(error) bool
	mu       sync.Mutex
	queue    []any
	draining bool
}

// WriteOption configures a WriteCell.
type WriteOption func(*WriteCell)

// WithInlinePersist persists in the goroutine calling Set or Update, before
// the call returns. Use it when persist does not block on I/O.
func WithInlinePersist() WriteOption {
	return func(w *WriteCell) { w.inline = true }
}

// WithIgnoredErrors logs persistence errors matching fn at debug level
// instead of error level.
func WithIgnoredErrors(fn func(error) bool) WriteOption {
	return func(w *WriteCell) { w.ignore = fn }
}

// Writable returns a writable view of c. Every Set and Update on the view
// hands the new value to persist. Unless WithInlinePersist is given, a
// single background worker drains the writes in FIFO order.
func Writable(c *Cell, key string, persist PersistFunc, logger *slog.Logger, opts ...WriteOption) *WriteCell {
	if logger == nil {
		logger = slog.Default()
	}
	w := &WriteCell{
		cell:    c,
		persist: persist,
		logger:  logger,
		key:     key,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Get returns the current value.
func (w *WriteCell) Get() any {
	return w.cell.Get()
}

// Set applies v and persists it. Persistence failures are logged; the cell
// keeps v.
func (w *WriteCell) Set(v any) {
	w.write(v)
}

// Update computes the next value from the current one, applies it and
// persists it.
func (w *WriteCell) Update(fn func(any) any) {
	w.write(fn(w.cell.Get()))
}

// OnChange registers fn to be called with every new value.
func (w *WriteCell) OnChange(fn func(any)) *Subscription {
	return w.cell.OnChange(fn)
}

// AsReadonly returns a read-only view over the same cell.
func (w *WriteCell) AsReadonly() *ReadCell {
	return ReadOnly(w.cell)
}

// Superseded reports whether writes newer than the one being persisted are
// still queued. Stores use it to avoid rolling the cell back to an older
// value when that older write completes.
func (w *WriteCell) Superseded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue) > 0
}

// Pending returns the number of writes not yet persisted.
func (w *WriteCell) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.queue)
	if w.draining {
		n++
	}
	return n
}

func (w *WriteCell) write(v any) {
	if w.persist == nil {
		w.cell.Set(v)
		return
	}
	if w.inline {
		w.cell.Set(v)
		w.run(v)
		return
	}

	// Queue before applying so that a completing older write sees v as
	// pending and leaves the cell alone.
	w.mu.Lock()
	w.queue = append(w.queue, v)
	start := !w.draining
	w.draining = true
	w.mu.Unlock()

	w.cell.Set(v)
	if start {
		go w.drain()
	}
}

func (w *WriteCell) drain() {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.draining = false
			w.mu.Unlock()
			return
		}
		v := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.run(v)
	}
}

func (w *WriteCell) run(v any) {
	err := w.persist(context.Background(), v)
	if err == nil {
		return
	}
	if w.ignore != nil && w.ignore(err) {
		w.logger.Debug("persist cell value", "key", w.key, "error", err)
		return
	}
	w.logger.Error("persist cell value", "key", w.key, "error", err)
}
