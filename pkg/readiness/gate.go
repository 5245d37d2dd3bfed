// Package readiness provides the "wait until ready" future that every
// backend operation of a store awaits before touching the backend.
//
// A store is constructed without blocking. Its backend is attached later,
// either right away in the background or once the host environment signals
// that it is ready, by resolving the gate. Resolving with the zero value
// marks the backend as unavailable.
package readiness

import (
	"context"
	"sync"
)

// Gate is a write-once value that callers can wait for.
type Gate[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
}

// NewGate creates an unresolved gate.
func NewGate[T any]() *Gate[T] {
	return &Gate[T]{done: make(chan struct{})}
}

// Resolved creates a gate already resolved with v.
func Resolved[T any](v T) *Gate[T] {
	g := NewGate[T]()
	g.Resolve(v)
	return g
}

// Resolve sets the gate's value and releases every waiter. Only the first
// call has an effect; Resolve reports whether it was that call.
func (g *Gate[T]) Resolve(v T) bool {
	resolved := false
	g.once.Do(func() {
		g.value = v
		close(g.done)
		resolved = true
	})
	return resolved
}

// Wait blocks until the gate is resolved or ctx is done.
func (g *Gate[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-g.done:
		return g.value, nil
	default:
	}

	select {
	case <-g.done:
		return g.value, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the value without blocking. ok is false while the gate is
// unresolved.
func (g *Gate[T]) Peek() (v T, ok bool) {
	select {
	case <-g.done:
		return g.value, true
	default:
		return v, false
	}
}

// Done returns a channel closed when the gate is resolved.
func (g *Gate[T]) Done() <-chan struct{} {
	return g.done
}

// OnReady runs fn with the resolved value in a new goroutine once the gate
// is resolved. fn is never called if stop is closed first.
func (g *Gate[T]) OnReady(stop <-chan struct{}, fn func(T)) {
	go func() {
		select {
		case <-g.done:
			fn(g.value)
		case <-stop:
		}
	}()
}
