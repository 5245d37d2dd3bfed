// Package rxstore provides reactive key-value stores persisted in a backend.
//
// This is the recommended import for most applications:
//
//	import "github.com/vango-dev/rxstore"
//
// Two adapters share one contract, Storage:
//
//   - NewIndexed wraps an asynchronous table backend (memory, sqlite, s3) and
//     propagates changes to other stores through a channel Broker.
//   - NewLocal wraps a synchronous flat area shared by every table, with keys
//     prefixed by database and table.
//
// Usage:
//
//	store := rxstore.NewIndexed("settings", "app",
//	    idb.WithDriver(memory.NewDriver()),
//	    idb.WithBroker(channel.NewHub()),
//	)
//	defer store.Dispose()
//
//	theme := store.WritableSignal("theme", rxstore.WithInitialValue("light"))
//	theme.OnChange(func(v any) { fmt.Println("theme:", v) })
//	theme.Set("dark") // stored and announced to other stores
package rxstore

import (
	"context"

	"github.com/vango-dev/rxstore/pkg/idb"
	"github.com/vango-dev/rxstore/pkg/localstorage"
	"github.com/vango-dev/rxstore/pkg/reactive"
	"github.com/vango-dev/rxstore/pkg/storage"
)

// =============================================================================
// Stores
// =============================================================================

// Storage is the contract implemented by both adapters.
type Storage = storage.Storage

// NewIndexed creates a store over an asynchronous table backend. Empty names
// default to "table" and "db".
func NewIndexed(table, database string, opts ...idb.Option) *idb.Store {
	return idb.New(table, database, opts...)
}

// NewLocal creates a store over a synchronous flat area. Empty names default
// to "table" and "db".
func NewLocal(table, database string, opts ...localstorage.Option) *localstorage.Store {
	return localstorage.New(table, database, opts...)
}

var (
	_ Storage = (*idb.Store)(nil)
	_ Storage = (*localstorage.Store)(nil)
)

// =============================================================================
// Handles (re-export from pkg/reactive)
// =============================================================================

// Stream is a hot stream replaying its latest value to new subscribers.
type Stream = reactive.Stream

// ReadCell is a read-only signal.
type ReadCell = reactive.ReadCell

// WriteCell is a signal whose writes are persisted.
type WriteCell = reactive.WriteCell

// Subscription cancels a registered callback.
type Subscription = reactive.Subscription

// EqualFunc reports whether two values are equal.
type EqualFunc = reactive.EqualFunc

// =============================================================================
// Signal options
// =============================================================================

// SignalOption configures Signal and WritableSignal.
type SignalOption = storage.SignalOption

// WithInitialValue sets the value a handle holds until the stored one is
// known.
var WithInitialValue = storage.WithInitialValue

// WithEqual sets the equality used to suppress redundant notifications.
var WithEqual = storage.WithEqual

// =============================================================================
// Errors
// =============================================================================

// Error kinds of direct operations. Test for them with errors.Is.
var (
	ErrBackend  = storage.ErrBackend
	ErrDecode   = storage.ErrDecode
	ErrEncode   = storage.ErrEncode
	ErrDisposed = storage.ErrDisposed
)

// OpError records a failed store operation.
type OpError = storage.OpError

// GetAs reads key from s and converts the value to T.
func GetAs[T any](ctx context.Context, s Storage, key string) (T, bool, error) {
	return storage.GetAs[T](ctx, s, key)
}

// As converts a stored value to T.
func As[T any](v any) (T, error) {
	return storage.As[T](v)
}
