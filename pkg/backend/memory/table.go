// Package memory provides in-process backends: a Driver whose tables are
// shared by every store of the process, and a flat Area with one view per
// execution context.
//
// Both are the default backends for tests and for processes that do not
// need durability.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/vango-dev/rxstore/pkg/backend"
)

// ErrClosed is returned by operations on a closed table.
var ErrClosed = errors.New("memory: table is closed")

// Driver is an in-memory backend.Driver. Tables opened with the same
// (database, table) pair share their data, like object stores of one origin.
type Driver struct {
	mu     sync.Mutex
	tables map[string]*tableData
	faults map[string]error
}

type tableData struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{
		tables: make(map[string]*tableData),
		faults: make(map[string]error),
	}
}

// Name implements backend.Driver.
func (d *Driver) Name() string {
	return "memory"
}

// OpenTable implements backend.Driver.
func (d *Driver) OpenTable(ctx context.Context, database, table string) (backend.Table, error) {
	if err := d.fault("open"); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	name := database + "/" + table
	data, ok := d.tables[name]
	if !ok {
		data = &tableData{items: make(map[string][]byte)}
		d.tables[name] = data
	}
	return &Table{driver: d, data: data}, nil
}

// FailNext makes the next call of op ("open", "get", "set", "remove", "keys"
// or "clear") on any table of d fail with err.
func (d *Driver) FailNext(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faults[op] = err
}

func (d *Driver) fault(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err, ok := d.faults[op]
	if ok {
		delete(d.faults, op)
	}
	return err
}

// Table is a handle on an in-memory table.
type Table struct {
	driver *Driver
	data   *tableData

	mu     sync.RWMutex
	closed bool
}

func (t *Table) check(op string) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return t.driver.fault(op)
}

// Get implements backend.Table.
func (t *Table) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := t.check("get"); err != nil {
		return nil, false, err
	}

	t.data.mu.RLock()
	defer t.data.mu.RUnlock()

	v, ok := t.data.items[key]
	if !ok {
		return nil, false, nil
	}

	// Return a copy to prevent mutations
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Set implements backend.Table.
func (t *Table) Set(ctx context.Context, key string, value []byte) error {
	if err := t.check("set"); err != nil {
		return err
	}

	v := make([]byte, len(value))
	copy(v, value)

	t.data.mu.Lock()
	t.data.items[key] = v
	t.data.mu.Unlock()
	return nil
}

// Remove implements backend.Table.
func (t *Table) Remove(ctx context.Context, key string) error {
	if err := t.check("remove"); err != nil {
		return err
	}

	t.data.mu.Lock()
	delete(t.data.items, key)
	t.data.mu.Unlock()
	return nil
}

// Keys implements backend.Table. Keys are sorted.
func (t *Table) Keys(ctx context.Context) ([]string, error) {
	if err := t.check("keys"); err != nil {
		return nil, err
	}

	t.data.mu.RLock()
	keys := make([]string, 0, len(t.data.items))
	for k := range t.data.items {
		keys = append(keys, k)
	}
	t.data.mu.RUnlock()

	sort.Strings(keys)
	return keys, nil
}

// Clear implements backend.Table.
func (t *Table) Clear(ctx context.Context) error {
	if err := t.check("clear"); err != nil {
		return err
	}

	t.data.mu.Lock()
	t.data.items = make(map[string][]byte)
	t.data.mu.Unlock()
	return nil
}

// Close implements backend.Table. The data stays available to other handles.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Count returns the number of stored keys.
// This is for monitoring/testing purposes.
func (t *Table) Count() int {
	t.data.mu.RLock()
	defer t.data.mu.RUnlock()
	return len(t.data.items)
}
