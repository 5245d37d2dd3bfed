package reactive

import "sync"

// Subscription is returned by Subscribe and OnChange.
type Subscription struct {
	id     uint64
	cancel func(id uint64)
	once   sync.Once
}

// Unsubscribe stops delivery to the subscriber. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel(s.id)
		}
	})
}

// subscriberSet provides subscriber management shared by Stream and Cell.
type subscriberSet struct {
	mu   sync.RWMutex
	subs map[uint64]func(any)
	// order keeps delivery in subscription order.
	order []uint64
}

func (s *subscriberSet) add(fn func(any)) *Subscription {
	id := nextID()

	s.mu.Lock()
	if s.subs == nil {
		s.subs = make(map[uint64]func(any))
	}
	s.subs[id] = fn
	s.order = append(s.order, id)
	s.mu.Unlock()

	return &Subscription{id: id, cancel: s.remove}
}

func (s *subscriberSet) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[id]; !ok {
		return
	}
	delete(s.subs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// snapshot copies the subscribers so notification happens without holding
// the lock.
func (s *subscriberSet) snapshot() []func(any) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fns := make([]func(any), 0, len(s.order))
	for _, id := range s.order {
		fns = append(fns, s.subs[id])
	}
	return fns
}

func (s *subscriberSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *subscriberSet) notify(v any) {
	for _, fn := range s.snapshot() {
		fn(v)
	}
}
