package storage

import "errors"

var (
	// ErrBackend wraps I/O failures reported by a backend.
	ErrBackend = errors.New("rxstore: backend failure")

	// ErrDecode is returned when a stored value cannot be decoded. It is
	// distinct from a missing key.
	ErrDecode = errors.New("rxstore: decode failed")

	// ErrEncode is returned when a value cannot be encoded for storage.
	ErrEncode = errors.New("rxstore: encode failed")

	// ErrDisposed is returned by direct operations on a disposed store.
	ErrDisposed = errors.New("rxstore: store disposed")
)

// OpError records a failed store operation.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return "rxstore " + e.Op + ": " + e.Err.Error()
	}
	return "rxstore " + e.Op + " " + e.Key + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Wrap builds an OpError whose chain holds both kind and cause.
func Wrap(op, key string, kind, cause error) error {
	if cause == nil {
		return &OpError{Op: op, Key: key, Err: kind}
	}
	return &OpError{Op: op, Key: key, Err: &kindError{kind: kind, cause: cause}}
}

type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.cause}
}
