package reactive

import (
	"context"
	"sync"
)

// Stream is a hot, replay-1 value sequence.
//
// A Stream is always active: values pushed with Next are recorded even when
// nobody is subscribed, and every new subscriber immediately receives the
// latest value. The zero state is absent (nil).
type Stream struct {
	id uint64

	mu      sync.RWMutex
	value   any
	version uint64

	subs subscriberSet
}

// NewStream creates a stream holding initial.
func NewStream(initial any) *Stream {
	return &Stream{
		id:    nextID(),
		value: initial,
	}
}

// ID returns the unique identifier for this stream.
func (s *Stream) ID() uint64 {
	return s.id
}

// Value returns the latest value.
func (s *Stream) Value() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Next records v as the latest value and delivers it to every subscriber.
// Next does not deduplicate; callers decide whether a value is new.
func (s *Stream) Next(v any) {
	s.mu.Lock()
	s.value = v
	s.version++
	version := s.version
	s.mu.Unlock()

	for _, fn := range s.subs.snapshot() {
		fn(emission{value: v, version: version})
	}
}

// Subscribe registers fn. fn is called with the latest value before
// Subscribe returns, then with every later value.
func (s *Stream) Subscribe(fn func(any)) *Subscription {
	d := &delivery{fn: fn}
	sub := s.subs.add(func(v any) { d.deliver(v.(emission)) })

	s.mu.RLock()
	current := emission{value: s.value, version: s.version}
	s.mu.RUnlock()

	d.deliver(current)
	return sub
}

// Chan returns a channel receiving the latest value and every later one.
// The subscription ends and the channel is closed when ctx is done. A slow
// reader drops intermediate values but always receives the latest.
func (s *Stream) Chan(ctx context.Context, buffer int) <-chan any {
	if buffer < 1 {
		buffer = 1
	}
	out := make(chan any, buffer)

	var mu sync.Mutex
	closed := false
	sub := s.Subscribe(func(v any) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		for {
			select {
			case out <- v:
				return
			default:
			}
			// Full: drop the oldest value to make room for the latest.
			select {
			case <-out:
			default:
			}
		}
	})

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out
}

// Subscribers returns the number of active subscribers.
func (s *Stream) Subscribers() int {
	return s.subs.len()
}

// emission carries a value with its stream version so a subscriber never
// observes an older value after a newer one.
type emission struct {
	value   any
	version uint64
}

type delivery struct {
	mu        sync.Mutex
	delivered bool
	last      uint64
	fn        func(any)
}

func (d *delivery) deliver(e emission) {
	d.mu.Lock()
	if d.delivered && e.version <= d.last {
		d.mu.Unlock()
		return
	}
	d.delivered = true
	d.last = e.version
	d.mu.Unlock()

	d.fn(e.value)
}
