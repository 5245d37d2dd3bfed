// Package observer implements the fan-out registry of a store instance.
//
// The registry maps each observed key to at most one live Stream and at most
// one backing Cell. Every change a store learns about, whether made locally,
// read back from the backend or received from another execution context, is
// routed through RegisterValue or RegisterRemoval and pushed into the live
// handles of that key. Keys nobody observes are ignored.
//
// Handles are created lazily by the Acquire methods and reused for every
// later request of the same key until DisposeAll.
package observer

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/vango-dev/rxstore/pkg/reactive"
	"github.com/vango-dev/rxstore/pkg/storage"
)

// Persister stores a value written through a writable cell. It is the
// owning store's Set.
type Persister func(ctx context.Context, key string, value any) error

// Seed is the value a handle may be hydrated with on acquisition.
type Seed struct {
	Value   any
	Present bool

	// Refresh applies the value to an already existing cell.
	Refresh bool
}

// NoSeed leaves the handle as it is.
var NoSeed = Seed{}

// SeedValue hydrates a new cell, or pushes to the stream, with v.
// A nil v is absent.
func SeedValue(v any) Seed {
	return Seed{Value: v, Present: v != nil}
}

// SeedRefresh is SeedValue that also overwrites an existing cell.
func SeedRefresh(v any) Seed {
	return Seed{Value: v, Present: v != nil, Refresh: true}
}

// Option configures an Observer.
type Option func(*Observer)

// WithLogger sets the logger used for persistence failures of writable
// cells.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Observer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithInlinePersist makes writable cells persist in the writing goroutine.
// Stores whose Persister does not block use it.
func WithInlinePersist() Option {
	return func(o *Observer) {
		o.inline = true
	}
}

type cellEntry struct {
	cell  *reactive.Cell
	read  *reactive.ReadCell
	write *reactive.WriteCell
}

// Observer is the registry of live handles of one store instance.
type Observer struct {
	mu      sync.Mutex
	streams map[string]*reactive.Stream
	cells   map[string]*cellEntry

	persist Persister
	inline  bool
	logger  *slog.Logger
}

// New creates an empty registry. persist is called by writable cells.
func New(persist Persister, opts ...Option) *Observer {
	o := &Observer{
		streams: make(map[string]*reactive.Stream),
		cells:   make(map[string]*cellEntry),
		persist: persist,
		logger:  slog.Default().With("component", "rxstore.observer"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterValue pushes value to the stream of key when it differs from the
// stream's current value, and overwrites the cell of key. Keys without
// handles are ignored.
//
// The cell is left alone while its writable view has newer writes queued:
// it already shows the latest local value, which is persisted after this
// one.
func (o *Observer) RegisterValue(key string, value any) {
	stream, entry := o.lookup(key)

	if stream != nil && !reactive.Same(stream.Value(), value) {
		stream.Next(value)
	}
	if entry.settable() {
		entry.cell.Set(value)
	}
}

// RegisterRemoval pushes absent to the stream and cell of key, with the
// same rule for cells as RegisterValue.
func (o *Observer) RegisterRemoval(key string) {
	stream, entry := o.lookup(key)

	if stream != nil {
		stream.Next(nil)
	}
	if entry.settable() {
		entry.cell.Set(nil)
	}
}

func (e *cellEntry) settable() bool {
	if e == nil {
		return false
	}
	return e.write == nil || !e.write.Superseded()
}

// AcquireStream returns the stream of key, creating it in the absent state
// if needed. A present seed is pushed immediately.
func (o *Observer) AcquireStream(key string, seed Seed) *reactive.Stream {
	o.mu.Lock()
	stream, ok := o.streams[key]
	if !ok {
		stream = reactive.NewStream(nil)
		o.streams[key] = stream
	}
	o.mu.Unlock()

	if seed.Present {
		stream.Next(seed.Value)
	}
	return stream
}

// AcquireReadCell returns the read-only cell of key. The backing cell is
// created if needed with equal as its equality function. A present seed is
// applied to a new cell, or to an existing one when seed.Refresh is set.
func (o *Observer) AcquireReadCell(key string, seed Seed, equal reactive.EqualFunc) *reactive.ReadCell {
	entry := o.acquireCell(key, seed, equal)

	o.mu.Lock()
	defer o.mu.Unlock()
	if entry.read == nil {
		entry.read = reactive.ReadOnly(entry.cell)
	}
	return entry.read
}

// AcquireWriteCell returns the writable cell of key. It shares the backing
// cell with AcquireReadCell; mutations made through it are persisted with
// the registry's Persister.
func (o *Observer) AcquireWriteCell(key string, seed Seed, equal reactive.EqualFunc) *reactive.WriteCell {
	entry := o.acquireCell(key, seed, equal)

	o.mu.Lock()
	defer o.mu.Unlock()
	if entry.write == nil {
		opts := []reactive.WriteOption{reactive.WithIgnoredErrors(disposed)}
		if o.inline {
			opts = append(opts, reactive.WithInlinePersist())
		}
		entry.write = reactive.Writable(entry.cell, key, o.persistFunc(key), o.logger, opts...)
	}
	return entry.write
}

// HasStream reports whether key has a live stream.
func (o *Observer) HasStream(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.streams[key]
	return ok
}

// HasCell reports whether key has a live cell.
func (o *Observer) HasCell(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.cells[key]
	return ok
}

// Keys returns the sorted keys that have at least one live handle.
func (o *Observer) Keys() []string {
	o.mu.Lock()
	seen := make(map[string]struct{}, len(o.streams)+len(o.cells))
	for k := range o.streams {
		seen[k] = struct{}{}
	}
	for k := range o.cells {
		seen[k] = struct{}{}
	}
	o.mu.Unlock()

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DisposeAll drops every handle. Pending writes are not flushed. Handles
// returned earlier remain usable but no longer receive updates.
func (o *Observer) DisposeAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.streams = make(map[string]*reactive.Stream)
	o.cells = make(map[string]*cellEntry)
}

// lookup returns the handles of key. The entry is copied under the lock so
// its write field can be read safely.
func (o *Observer) lookup(key string) (*reactive.Stream, *cellEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.cells[key]
	if !ok {
		return o.streams[key], nil
	}
	c := *entry
	return o.streams[key], &c
}

// disposed matches writes made through a cell kept past its store's
// Dispose.
func disposed(err error) bool {
	return errors.Is(err, storage.ErrDisposed)
}

func (o *Observer) acquireCell(key string, seed Seed, equal reactive.EqualFunc) *cellEntry {
	o.mu.Lock()
	entry, ok := o.cells[key]
	if !ok {
		var initial any
		if seed.Present {
			initial = seed.Value
		}
		cell := reactive.NewCell(initial)
		if equal != nil {
			cell.WithEquals(equal)
		}
		entry = &cellEntry{cell: cell}
		o.cells[key] = entry
	}
	o.mu.Unlock()

	if ok && seed.Present && seed.Refresh {
		entry.cell.Set(seed.Value)
	}
	return entry
}

func (o *Observer) persistFunc(key string) reactive.PersistFunc {
	if o.persist == nil {
		return nil
	}
	return func(ctx context.Context, value any) error {
		return o.persist(ctx, key, value)
	}
}
