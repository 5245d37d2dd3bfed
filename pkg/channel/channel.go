// Package channel carries change messages between execution contexts that
// share a logical table.
//
// A Broker opens named channels; a payload posted on a channel is delivered
// to every other channel open under the same name, never back to the poster.
// Hub is the in-process broker. The wsbridge subpackage connects processes
// through a websocket relay.
package channel

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when posting on a closed channel.
var ErrClosed = errors.New("channel: closed")

// Channel is one endpoint of a named broadcast channel.
type Channel interface {
	// Post sends data to every other endpoint of the channel. data must be
	// encodable as JSON; receivers get a decoded copy.
	Post(data any) error

	// Subscribe registers fn for payloads posted by other endpoints.
	Subscribe(fn func(data any)) (unsubscribe func())

	// Close detaches the endpoint. Safe to call more than once.
	Close() error
}

// Broker opens channels by name. ctx bounds the time spent connecting.
type Broker interface {
	Open(ctx context.Context, name string) (Channel, error)
}

// Listeners is the subscriber list shared by Channel implementations.
type Listeners struct {
	mu     sync.RWMutex
	nextID uint64
	fns    map[uint64]func(any)
}

// Add registers fn and returns the function removing it.
func (l *Listeners) Add(fn func(any)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fns == nil {
		l.fns = make(map[uint64]func(any))
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

// Dispatch calls every listener with data, outside the lock.
func (l *Listeners) Dispatch(data any) {
	l.mu.RLock()
	fns := make([]func(any), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(data)
	}
}

// Len returns the number of listeners.
func (l *Listeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fns)
}
