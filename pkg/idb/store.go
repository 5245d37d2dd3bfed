// Package idb implements the asynchronous store adapter.
//
// A Store persists values in a backend.Table opened from a backend.Driver
// and keeps the live handles of its observer registry in sync with every
// change it makes or learns about. Changes are announced to other stores of
// the same logical table through a channel.Broker, so handles acquired in
// one execution context follow writes made in another.
//
// The table is opened in the background, either immediately or once the
// readiness signal passed to WithReadiness fires. Every operation waits for
// that initialization. A store without a driver, or whose table cannot be
// opened, runs against an unavailable backend: reads are absent, writes are
// discarded and nothing is reported as an error.
package idb

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vango-dev/rxstore/pkg/backend"
	"github.com/vango-dev/rxstore/pkg/channel"
	"github.com/vango-dev/rxstore/pkg/observer"
	"github.com/vango-dev/rxstore/pkg/reactive"
	"github.com/vango-dev/rxstore/pkg/readiness"
	"github.com/vango-dev/rxstore/pkg/storage"
)

// conn is what initialization produced. A nil *conn is the unavailable
// backend.
type conn struct {
	table       backend.Table
	channel     channel.Channel
	unsubscribe func()
}

// Store is the asynchronous adapter. It is safe for concurrent use.
type Store struct {
	table    string
	database string

	cfg      config
	logger   *slog.Logger
	observer *observer.Observer
	gate     *readiness.Gate[*conn]

	// ctx bounds background work and is cancelled by Dispose.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conn     *conn
	disposed bool
}

var _ storage.Storage = (*Store)(nil)

// New creates a store for table in database. Empty names fall back to
// storage.DefaultTable and storage.DefaultDatabase. Construction never
// fails; initialization problems surface as an unavailable backend.
func New(table, database string, opts ...Option) *Store {
	table, database = storage.Names(table, database)

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default().With("component", "rxstore.idb")
	}
	logger = logger.With("database", database, "table", table)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		table:    table,
		database: database,
		cfg:      cfg,
		logger:   logger,
		gate:     readiness.NewGate[*conn](),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.observer = observer.New(s.Set, observer.WithLogger(logger))

	go s.init()
	return s
}

// Table returns the table name.
func (s *Store) Table() string { return s.table }

// Database returns the database name.
func (s *Store) Database() string { return s.database }

// Ready is closed once initialization finished, whether the backend is
// available or not.
func (s *Store) Ready() <-chan struct{} {
	return s.gate.Done()
}

// Available reports whether initialization finished with an open table.
func (s *Store) Available() bool {
	c, ok := s.gate.Peek()
	return ok && c != nil
}

func (s *Store) init() {
	if s.cfg.ready != nil {
		select {
		case <-s.cfg.ready:
		case <-s.ctx.Done():
			s.gate.Resolve(nil)
			return
		}
	}
	s.gate.Resolve(s.open())
}

func (s *Store) open() *conn {
	if s.cfg.driver == nil {
		s.diagnose("no backend driver configured; values are not persisted")
		return nil
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.openTimeout)
	defer cancel()

	table, err := s.cfg.driver.OpenTable(ctx, s.database, s.table)
	if err != nil {
		s.diagnose("backend unavailable; values are not persisted",
			"driver", s.cfg.driver.Name(), "error", err)
		return nil
	}
	c := &conn{table: table}

	if s.cfg.broker != nil {
		name := storage.ChannelName(s.database, s.table)
		ch, err := s.cfg.broker.Open(ctx, name)
		if err != nil {
			s.logger.Warn("change channel unavailable", "channel", name, "error", err)
		} else {
			c.channel = ch
			c.unsubscribe = ch.Subscribe(s.onMessage)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		c.close(s.logger)
		return nil
	}
	s.conn = c
	return c
}

func (s *Store) diagnose(msg string, args ...any) {
	if s.cfg.devMode {
		s.logger.Warn(msg, args...)
		return
	}
	s.logger.Debug(msg, args...)
}

// ready waits for initialization. A nil conn with a nil error is the
// unavailable backend.
func (s *Store) ready(ctx context.Context, op, key string) (*conn, error) {
	if s.isDisposed() {
		return nil, &storage.OpError{Op: op, Key: key, Err: storage.ErrDisposed}
	}
	c, err := s.gate.Wait(ctx)
	if err != nil {
		return nil, &storage.OpError{Op: op, Key: key, Err: err}
	}
	if s.isDisposed() {
		return nil, &storage.OpError{Op: op, Key: key, Err: storage.ErrDisposed}
	}
	return c, nil
}

func (s *Store) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Get returns the stored value of key. A found value is also pushed to the
// live handles of key.
func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	c, err := s.ready(ctx, "get", key)
	if err != nil || c == nil {
		return nil, false, err
	}

	raw, found, err := c.table.Get(ctx, key)
	if err != nil {
		return nil, false, storage.Wrap("get", key, storage.ErrBackend, err)
	}
	if !found {
		return nil, false, nil
	}

	var value any
	if err := s.cfg.codec.Unmarshal(raw, &value); err != nil {
		return nil, false, storage.Wrap("get", key, storage.ErrDecode, err)
	}
	s.observer.RegisterValue(key, value)
	return value, true, nil
}

// Set stores value for key, updates the live handles of key and announces
// the change to other stores.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	raw, err := s.cfg.codec.Marshal(value)
	if err != nil {
		return storage.Wrap("set", key, storage.ErrEncode, err)
	}
	// Handles receive the decoded form, as they do from Get and from other
	// stores, so that a value is observed with the same types everywhere.
	var stored any
	if err := s.cfg.codec.Unmarshal(raw, &stored); err != nil {
		return storage.Wrap("set", key, storage.ErrEncode, err)
	}

	c, err := s.ready(ctx, "set", key)
	if err != nil || c == nil {
		return err
	}
	if err := c.table.Set(ctx, key, raw); err != nil {
		return storage.Wrap("set", key, storage.ErrBackend, err)
	}

	s.observer.RegisterValue(key, stored)
	s.broadcast(c, storage.Message{Type: storage.ChangeSet, Key: key, Value: stored})
	return nil
}

// Remove deletes key, pushes absent to its live handles and announces the
// removal to other stores.
func (s *Store) Remove(ctx context.Context, key string) error {
	c, err := s.ready(ctx, "remove", key)
	if err != nil || c == nil {
		return err
	}
	if err := c.table.Remove(ctx, key); err != nil {
		return storage.Wrap("remove", key, storage.ErrBackend, err)
	}

	s.observer.RegisterRemoval(key)
	s.broadcast(c, storage.Message{Type: storage.ChangeRemove, Key: key})
	return nil
}

// Keys lists the keys of the table.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	c, err := s.ready(ctx, "keys", "")
	if err != nil {
		return nil, err
	}
	if c == nil {
		return []string{}, nil
	}

	keys, err := c.table.Keys(ctx)
	if err != nil {
		return nil, storage.Wrap("keys", "", storage.ErrBackend, err)
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Clear removes every key of the table. Handles of the keys present before
// the clear become absent, in this store and in the other stores.
func (s *Store) Clear(ctx context.Context) error {
	c, err := s.ready(ctx, "clear", "")
	if err != nil || c == nil {
		return err
	}

	keys, err := c.table.Keys(ctx)
	if err != nil {
		return storage.Wrap("clear", "", storage.ErrBackend, err)
	}
	for _, key := range keys {
		s.observer.RegisterRemoval(key)
	}
	if err := c.table.Clear(ctx); err != nil {
		return storage.Wrap("clear", "", storage.ErrBackend, err)
	}
	for _, key := range keys {
		s.broadcast(c, storage.Message{Type: storage.ChangeRemove, Key: key})
	}
	return nil
}

// Observable returns the stream of key and hydrates it in the background.
func (s *Store) Observable(key string) *reactive.Stream {
	stream := s.observer.AcquireStream(key, observer.NoSeed)
	s.hydrate(key)
	return stream
}

// Signal returns the read-only cell of key and hydrates it in the
// background. The initial value applies only to a newly created cell.
func (s *Store) Signal(key string, opts ...storage.SignalOption) *reactive.ReadCell {
	cfg := storage.NewSignalConfig(opts...)
	cell := s.observer.AcquireReadCell(key, seedOf(cfg), cfg.Equal)
	s.hydrate(key)
	return cell
}

// WritableSignal returns the writable cell of key and hydrates it in the
// background. Values set through the cell are stored with Set.
func (s *Store) WritableSignal(key string, opts ...storage.SignalOption) *reactive.WriteCell {
	cfg := storage.NewSignalConfig(opts...)
	cell := s.observer.AcquireWriteCell(key, seedOf(cfg), cfg.Equal)
	s.hydrate(key)
	return cell
}

func seedOf(cfg storage.SignalConfig) observer.Seed {
	if !cfg.HasInitialValue {
		return observer.NoSeed
	}
	return observer.SeedValue(cfg.InitialValue)
}

// hydrate loads key so that its handles receive the stored value. Failures
// are logged and otherwise ignored.
func (s *Store) hydrate(key string) {
	go func() {
		if _, _, err := s.Get(s.ctx, key); err != nil &&
			!errors.Is(err, storage.ErrDisposed) && !errors.Is(err, context.Canceled) {
			s.logger.Debug("hydrate handle", "key", key, "error", err)
		}
	}()
}

func (s *Store) broadcast(c *conn, msg storage.Message) {
	if c.channel == nil {
		return
	}
	if err := c.channel.Post(msg); err != nil {
		s.logger.Debug("broadcast change", "key", msg.Key, "type", msg.Type, "error", err)
	}
}

// onMessage applies a change announced by another store.
func (s *Store) onMessage(data any) {
	if s.isDisposed() {
		return
	}
	msg, ok := storage.ParseMessage(data)
	if !ok {
		s.logger.Debug("ignore malformed change message")
		return
	}
	switch msg.Type {
	case storage.ChangeSet:
		s.observer.RegisterValue(msg.Key, msg.Value)
	case storage.ChangeRemove:
		s.observer.RegisterRemoval(msg.Key)
	}
}

// Dispose drops every handle, detaches from the channel and closes the
// table. It is idempotent. Later direct operations fail with
// storage.ErrDisposed.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	s.observer.DisposeAll()
	if c != nil {
		c.close(s.logger)
	}
}

func (c *conn) close(logger *slog.Logger) {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			logger.Debug("close change channel", "error", err)
		}
	}
	if err := c.table.Close(); err != nil {
		logger.Debug("close table", "error", err)
	}
}
