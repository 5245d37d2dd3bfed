// Package sqlite provides backend.Driver and backend.Area implementations
// stored in SQLite through modernc.org/sqlite.
//
// Every table of every database lives in one rxstore_items table keyed by
// (db, tbl, key). Area views share the rxstore_area table; storage events
// are fanned out in-process between the views of one Driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-dev/rxstore/pkg/backend"
	_ "modernc.org/sqlite"
)

// ErrClosed is returned by tables of a closed driver or closed table handles.
var ErrClosed = errors.New("sqlite: closed")

const schema = `
CREATE TABLE IF NOT EXISTS rxstore_items (
	db         TEXT NOT NULL,
	tbl        TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (db, tbl, key)
);
CREATE TABLE IF NOT EXISTS rxstore_area (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger used for area failures, which the Area
// interface cannot report.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Driver is a SQLite-backed backend.Driver.
type Driver struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger

	// areaMu serializes area writes so events carry the right old value.
	areaMu   sync.Mutex
	watchers backend.Watchers
	contexts atomic.Uint64
	closed   atomic.Bool
}

var _ backend.Driver = (*Driver)(nil)

// Open opens (or creates) the database at path. Use ":memory:" for an
// in-memory database.
func Open(path string, opts ...Option) (*Driver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	d, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	d.owned = true
	return d, nil
}

// New uses an already opened database and creates the schema if needed.
// Close does not close db.
func New(db *sql.DB, opts ...Option) (*Driver, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	d := &Driver{
		db:     db,
		logger: slog.Default().With("component", "rxstore.sqlite"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Name implements backend.Driver.
func (d *Driver) Name() string {
	return "sqlite"
}

// OpenTable implements backend.Driver.
func (d *Driver) OpenTable(ctx context.Context, database, table string) (backend.Table, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if err := d.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Table{driver: d, database: database, table: table}, nil
}

// Close closes the database if it was opened by Open.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if d.owned {
		return d.db.Close()
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Table is a handle on one logical table.
type Table struct {
	driver   *Driver
	database string
	table    string
	closed   atomic.Bool
}

var _ backend.Table = (*Table)(nil)

func (t *Table) check() error {
	if t.closed.Load() || t.driver.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Get implements backend.Table.
func (t *Table) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := t.check(); err != nil {
		return nil, false, err
	}

	var value []byte
	err := t.driver.db.QueryRowContext(ctx,
		"SELECT value FROM rxstore_items WHERE db = ? AND tbl = ? AND key = ?",
		t.database, t.table, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements backend.Table.
func (t *Table) Set(ctx context.Context, key string, value []byte) error {
	if err := t.check(); err != nil {
		return err
	}

	_, err := t.driver.db.ExecContext(ctx, `
		INSERT INTO rxstore_items (db, tbl, key, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(db, tbl, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		t.database, t.table, key, value, now(),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Remove implements backend.Table.
func (t *Table) Remove(ctx context.Context, key string) error {
	if err := t.check(); err != nil {
		return err
	}

	_, err := t.driver.db.ExecContext(ctx,
		"DELETE FROM rxstore_items WHERE db = ? AND tbl = ? AND key = ?",
		t.database, t.table, key,
	)
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Keys implements backend.Table. Keys are sorted.
func (t *Table) Keys(ctx context.Context) ([]string, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	rows, err := t.driver.db.QueryContext(ctx,
		"SELECT key FROM rxstore_items WHERE db = ? AND tbl = ? ORDER BY key",
		t.database, t.table,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Clear implements backend.Table.
func (t *Table) Clear(ctx context.Context) error {
	if err := t.check(); err != nil {
		return err
	}

	_, err := t.driver.db.ExecContext(ctx,
		"DELETE FROM rxstore_items WHERE db = ? AND tbl = ?",
		t.database, t.table,
	)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Close implements backend.Table. The database stays open.
func (t *Table) Close() error {
	t.closed.Store(true)
	return nil
}
