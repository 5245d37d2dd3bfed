package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Hub is an in-process Broker with broadcast-channel semantics.
//
// Payloads are encoded to JSON once per Post and every receiving endpoint
// decodes its own copy, so receivers never share memory with the poster or
// with each other. Each endpoint delivers its payloads asynchronously, one at
// a time, in the order they were posted.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*Port]struct{}

	logger *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		rooms:  make(map[string]map[*Port]struct{}),
		logger: slog.Default().With("component", "rxstore.channel"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open implements Broker.
func (h *Hub) Open(ctx context.Context, name string) (Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &Port{
		hub:  h,
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	room, ok := h.rooms[name]
	if !ok {
		room = make(map[*Port]struct{})
		h.rooms[name] = room
	}
	room[p] = struct{}{}
	h.mu.Unlock()

	go p.deliverLoop()
	return p, nil
}

// Endpoints returns the number of open endpoints for name.
func (h *Hub) Endpoints(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[name])
}

func (h *Hub) post(from *Port, data []byte) {
	h.mu.Lock()
	targets := make([]*Port, 0, len(h.rooms[from.name]))
	for p := range h.rooms[from.name] {
		if p != from {
			targets = append(targets, p)
		}
	}
	h.mu.Unlock()

	for _, p := range targets {
		p.enqueue(data)
	}
}

func (h *Hub) leave(p *Port) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[p.name]
	delete(room, p)
	if len(room) == 0 {
		delete(h.rooms, p.name)
	}
}

// Port is an endpoint of a Hub channel.
type Port struct {
	hub  *Hub
	name string

	listeners Listeners

	mu     sync.Mutex
	queue  [][]byte
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// Post implements Channel.
func (p *Port) Post(data any) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("channel: encode payload: %w", err)
	}
	p.hub.post(p, raw)
	return nil
}

// Subscribe implements Channel.
func (p *Port) Subscribe(fn func(any)) func() {
	return p.listeners.Add(fn)
}

// Close implements Channel. Queued payloads are dropped.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.queue = nil
	p.mu.Unlock()

	p.hub.leave(p)
	close(p.done)
	return nil
}

func (p *Port) enqueue(data []byte) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, data)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Port) deliverLoop() {
	for {
		select {
		case <-p.wake:
		case <-p.done:
			return
		}

		for {
			p.mu.Lock()
			if p.closed || len(p.queue) == 0 {
				p.mu.Unlock()
				break
			}
			raw := p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.mu.Unlock()

			var data any
			if err := json.Unmarshal(raw, &data); err != nil {
				p.hub.logger.Error("decode channel payload", "channel", p.name, "error", err)
				continue
			}
			p.safeDispatch(data)
		}
	}
}

// safeDispatch keeps a panicking listener from stopping delivery.
func (p *Port) safeDispatch(data any) {
	defer func() {
		if r := recover(); r != nil {
			p.hub.logger.Error("channel listener panic", "channel", p.name, "panic", r)
		}
	}()
	p.listeners.Dispatch(data)
}
