// Package backend defines the storage collaborators wrapped by the rxstore
// adapters.
//
// Table is an asynchronous key/value table, one per logical table, opened
// through a Driver (the "indexed object store"). Area is a synchronous, flat
// key/value store shared by every logical table of an origin (the "local
// storage"); changes made to an Area are announced to the other execution
// contexts through StorageEvent.
//
// Implementations live in the subpackages memory, sqlite and s3;
// instrument decorates a Driver with metrics and tracing.
package backend

import "context"

// Table is an asynchronous key/value table.
// Implementations must be safe for concurrent use.
type Table interface {
	// Get returns the stored bytes for key. found is false for a missing key.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set stores value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Keys lists every key of the table.
	Keys(ctx context.Context) ([]string, error)

	// Clear removes every key of the table.
	Clear(ctx context.Context) error

	// Close releases the table handle.
	Close() error
}

// Driver opens tables of a backend.
type Driver interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// OpenTable opens the table for (database, table), creating it if needed.
	OpenTable(ctx context.Context, database, table string) (Table, error)
}

// Area is a synchronous flat key/value store.
type Area interface {
	// GetItem returns the stored text for key.
	GetItem(key string) (string, bool)

	// SetItem stores value for key. It fails when the area cannot hold it.
	SetItem(key, value string) error

	// RemoveItem deletes key.
	RemoveItem(key string)

	// Keys lists every key of the area, across all logical tables.
	Keys() []string

	// Watch registers fn for changes made through OTHER contexts of the
	// same area. The returned function stops delivery.
	Watch(fn func(StorageEvent)) (stop func())
}

// StorageEvent announces a change of an Area.
type StorageEvent struct {
	// Key is the raw (flat namespace) key that changed.
	Key string

	// OldValue is the previous value, nil if there was none.
	OldValue *string

	// NewValue is the new value, nil when the key was removed.
	NewValue *string
}
