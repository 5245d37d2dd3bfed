// Package storage defines the façade shared by every rxstore adapter: the
// Storage interface, signal options, change messages exchanged between
// execution contexts, value codecs and the error taxonomy.
//
// Errors returned by direct operations are *OpError values. Use errors.Is to
// tell them apart:
//
//	_, _, err := store.Get(ctx, "settings")
//	switch {
//	case errors.Is(err, storage.ErrDecode):
//	    // stored text is not valid JSON
//	case errors.Is(err, storage.ErrBackend):
//	    // I/O failure, not retried
//	}
//
// An unavailable backend is not an error: reads report the key as missing
// and writes do nothing.
package storage
