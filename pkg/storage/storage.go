package storage

import (
	"context"

	"github.com/vango-dev/rxstore/pkg/reactive"
)

// Storage is the uniform contract implemented by the asynchronous (idb) and
// synchronous (localstorage) adapters.
//
// Direct operations report backend failures as errors. Handle acquisition
// (Observable, Signal, WritableSignal) never fails: values that cannot be
// loaded simply leave the handle absent.
type Storage interface {
	// Get returns the value stored for key. found is false when the backend
	// has no value, or when the backend is unavailable.
	Get(ctx context.Context, key string) (value any, found bool, err error)

	// Set stores value for key.
	Set(ctx context.Context, key string, value any) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys returns the keys of the current table.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every key of the current table.
	Clear(ctx context.Context) error

	// Observable returns the hot replay-1 stream for key. Future
	// modifications, local or from other contexts, are pushed to it.
	Observable(key string) *reactive.Stream

	// Signal returns a read-only cell for key.
	Signal(key string, opts ...SignalOption) *reactive.ReadCell

	// WritableSignal returns a writable cell for key. Set and Update on the
	// cell also store the value.
	WritableSignal(key string, opts ...SignalOption) *reactive.WriteCell

	// Dispose drops every live handle and detaches change listeners.
	// Handles returned earlier stay readable but stop receiving updates.
	Dispose()
}

// Default names used when a store is created without explicit names.
const (
	DefaultTable    = "table"
	DefaultDatabase = "db"
)

// Names returns table and database with empty values replaced by the
// defaults.
func Names(table, database string) (string, string) {
	if table == "" {
		table = DefaultTable
	}
	if database == "" {
		database = DefaultDatabase
	}
	return table, database
}

// GetAs reads key from s and converts the value to T with As.
func GetAs[T any](ctx context.Context, s Storage, key string) (T, bool, error) {
	var zero T
	v, found, err := s.Get(ctx, key)
	if err != nil || !found {
		return zero, found, err
	}
	out, err := As[T](v)
	if err != nil {
		return zero, true, &OpError{Op: "get", Key: key, Err: err}
	}
	return out, true, nil
}
