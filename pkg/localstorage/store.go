// Package localstorage implements the synchronous store adapter.
//
// All tables of all databases share one flat backend.Area; a key of table t
// in database d is stored under d + delimiter + t + delimiter + key. Values
// are stored as JSON text. Changes made by other execution contexts arrive
// as storage events and are applied to the handles of the keys this store
// observes.
package localstorage

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/vango-dev/rxstore/pkg/backend"
	"github.com/vango-dev/rxstore/pkg/observer"
	"github.com/vango-dev/rxstore/pkg/reactive"
	"github.com/vango-dev/rxstore/pkg/readiness"
	"github.com/vango-dev/rxstore/pkg/storage"
)

// Store is the synchronous adapter. It is safe for concurrent use.
type Store struct {
	table     string
	database  string
	delimiter string

	cfg      config
	logger   *slog.Logger
	observer *observer.Observer
	gate     *readiness.Gate[backend.Area]
	stop     chan struct{}

	mu        sync.Mutex
	observed  map[string]struct{}
	stopWatch func()
	disposed  bool
}

var _ storage.Storage = (*Store)(nil)

// New creates a store for table in database. Empty names fall back to
// storage.DefaultTable and storage.DefaultDatabase.
func New(table, database string, opts ...Option) *Store {
	table, database = storage.Names(table, database)

	cfg := config{delimiter: DefaultDelimiter}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default().With("component", "rxstore.localstorage")
	}
	logger = logger.With("database", database, "table", table)

	s := &Store{
		table:     table,
		database:  database,
		delimiter: cfg.delimiter,
		cfg:       cfg,
		logger:    logger,
		stop:      make(chan struct{}),
		observed:  make(map[string]struct{}),
	}
	s.observer = observer.New(s.Set, observer.WithLogger(logger), observer.WithInlinePersist())

	switch {
	case cfg.area != nil:
		s.gate = readiness.Resolved(cfg.area)
	case cfg.provider != nil:
		s.gate = readiness.NewGate[backend.Area]()
		go s.await()
	default:
		s.diagnose("no storage area configured; values are not persisted")
		s.gate = readiness.Resolved[backend.Area](nil)
	}
	return s
}

func (s *Store) await() {
	select {
	case <-s.cfg.ready:
	case <-s.stop:
		s.gate.Resolve(nil)
		return
	}
	area := s.cfg.provider()
	if area == nil {
		s.diagnose("storage area provider returned no area; values are not persisted")
	}
	s.gate.Resolve(area)
}

func (s *Store) diagnose(msg string) {
	if s.cfg.devMode {
		s.logger.Warn(msg)
		return
	}
	s.logger.Debug(msg)
}

// Table returns the table name.
func (s *Store) Table() string { return s.table }

// Database returns the database name.
func (s *Store) Database() string { return s.database }

// Ready is closed once the area is known, or known to be missing.
func (s *Store) Ready() <-chan struct{} {
	return s.gate.Done()
}

// Available reports whether the store has an area.
func (s *Store) Available() bool {
	a, ok := s.gate.Peek()
	return ok && a != nil
}

// PrefixedKey returns the area key of key.
func (s *Store) PrefixedKey(key string) string {
	return s.database + s.delimiter + s.table + s.delimiter + key
}

// Unprefixed returns the key of this store's table stored under the area
// key k. ok is false for keys of other databases or tables.
func (s *Store) Unprefixed(k string) (key string, ok bool) {
	parts := strings.SplitN(k, s.delimiter, 3)
	if len(parts) < 3 || parts[0] != s.database || parts[1] != s.table {
		return "", false
	}
	return parts[2], true
}

func (s *Store) area(ctx context.Context, op, key string) (backend.Area, error) {
	if s.isDisposed() {
		return nil, &storage.OpError{Op: op, Key: key, Err: storage.ErrDisposed}
	}
	a, err := s.gate.Wait(ctx)
	if err != nil {
		return nil, &storage.OpError{Op: op, Key: key, Err: err}
	}
	return a, nil
}

func (s *Store) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Get returns the stored value of key. A found value is also pushed to the
// live handles of key. Text that is not valid JSON is reported as
// storage.ErrDecode.
func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	a, err := s.area(ctx, "get", key)
	if err != nil || a == nil {
		return nil, false, err
	}

	raw, ok := a.GetItem(s.PrefixedKey(key))
	if !ok {
		return nil, false, nil
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, false, storage.Wrap("get", key, storage.ErrDecode, err)
	}
	s.observer.RegisterValue(key, value)
	return value, true, nil
}

// Set stores value for key and updates the live handles of key.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return storage.Wrap("set", key, storage.ErrEncode, err)
	}
	var stored any
	if err := json.Unmarshal(raw, &stored); err != nil {
		return storage.Wrap("set", key, storage.ErrEncode, err)
	}
	a, err := s.area(ctx, "set", key)
	if err != nil || a == nil {
		return err
	}
	if err := a.SetItem(s.PrefixedKey(key), string(raw)); err != nil {
		return storage.Wrap("set", key, storage.ErrBackend, err)
	}
	s.observer.RegisterValue(key, stored)
	return nil
}

// Remove deletes key and pushes absent to its live handles.
func (s *Store) Remove(ctx context.Context, key string) error {
	a, err := s.area(ctx, "remove", key)
	if err != nil || a == nil {
		return err
	}
	a.RemoveItem(s.PrefixedKey(key))
	s.observer.RegisterRemoval(key)
	return nil
}

// Keys lists the keys of this store's table. Keys of other tables sharing
// the area are skipped.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	a, err := s.area(ctx, "keys", "")
	if err != nil {
		return nil, err
	}
	keys := []string{}
	if a == nil {
		return keys, nil
	}
	for _, k := range a.Keys() {
		if key, ok := s.Unprefixed(k); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Clear removes every key of this store's table, one Remove per key.
func (s *Store) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Observable returns the stream of key. A new stream starts with the
// stored value when the area is ready.
func (s *Store) Observable(key string) *reactive.Stream {
	fresh := !s.observer.HasStream(key)
	return acquire(s, key, fresh, observer.NoSeed, func(seed observer.Seed) *reactive.Stream {
		return s.observer.AcquireStream(key, seed)
	})
}

// Signal returns the read-only cell of key. A new cell starts with the
// stored value, or with the initial value when nothing is stored.
func (s *Store) Signal(key string, opts ...storage.SignalOption) *reactive.ReadCell {
	cfg := storage.NewSignalConfig(opts...)
	fresh := !s.observer.HasCell(key)
	return acquire(s, key, fresh, seedOf(cfg), func(seed observer.Seed) *reactive.ReadCell {
		return s.observer.AcquireReadCell(key, seed, cfg.Equal)
	})
}

// WritableSignal returns the writable cell of key, seeded like Signal.
// Values set through the cell are stored with Set.
func (s *Store) WritableSignal(key string, opts ...storage.SignalOption) *reactive.WriteCell {
	cfg := storage.NewSignalConfig(opts...)
	fresh := !s.observer.HasCell(key)
	return acquire(s, key, fresh, seedOf(cfg), func(seed observer.Seed) *reactive.WriteCell {
		return s.observer.AcquireWriteCell(key, seed, cfg.Equal)
	})
}

func seedOf(cfg storage.SignalConfig) observer.Seed {
	if !cfg.HasInitialValue {
		return observer.NoSeed
	}
	return observer.SeedValue(cfg.InitialValue)
}

// acquire hydrates a fresh handle synchronously when the area is ready.
// Otherwise the handle is created with fallback and receives the stored
// value once the area arrives.
func acquire[H any](s *Store, key string, fresh bool, fallback observer.Seed, get func(observer.Seed) H) H {
	if a, ready := s.gate.Peek(); ready {
		seed := fallback
		if fresh && a != nil {
			if v, ok := s.read(a, key); ok {
				seed = observer.SeedValue(v)
			}
		}
		h := get(seed)
		if a != nil {
			s.observe(a, key)
		}
		return h
	}

	h := get(fallback)
	s.gate.OnReady(s.stop, func(a backend.Area) {
		if a == nil {
			return
		}
		if v, ok := s.read(a, key); ok {
			s.observer.RegisterValue(key, v)
		}
		s.observe(a, key)
	})
	return h
}

// read loads key for hydration. Undecodable text counts as absent.
func (s *Store) read(a backend.Area, key string) (any, bool) {
	raw, ok := a.GetItem(s.PrefixedKey(key))
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.Debug("hydrate handle", "key", key, "error", err)
		return nil, false
	}
	return v, v != nil
}

// observe adds key to the observed set and starts listening on first use.
func (s *Store) observe(a backend.Area, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.observed[s.PrefixedKey(key)] = struct{}{}
	if s.stopWatch == nil {
		s.stopWatch = a.Watch(s.onEvent)
	}
}

func (s *Store) onEvent(ev backend.StorageEvent) {
	s.mu.Lock()
	_, watched := s.observed[ev.Key]
	s.mu.Unlock()
	if !watched {
		return
	}
	key, ok := s.Unprefixed(ev.Key)
	if !ok {
		return
	}

	if ev.NewValue == nil {
		s.observer.RegisterRemoval(key)
		return
	}
	var v any
	if err := json.Unmarshal([]byte(*ev.NewValue), &v); err != nil {
		s.logger.Debug("ignore undecodable storage event", "key", key, "error", err)
		return
	}
	s.observer.RegisterValue(key, v)
}

// Dispose drops every handle and stops listening for storage events. It is
// idempotent. Later direct operations fail with storage.ErrDisposed.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	stopWatch := s.stopWatch
	s.stopWatch = nil
	s.observed = make(map[string]struct{})
	s.mu.Unlock()

	close(s.stop)
	if stopWatch != nil {
		stopWatch()
	}
	s.observer.DisposeAll()
}
