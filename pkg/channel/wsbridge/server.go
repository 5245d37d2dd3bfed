// Package wsbridge relays channel payloads between processes over
// websockets.
//
// Server is the relay: every connection to /channels/{name} joins the room
// name, and each text frame it sends is forwarded to the other members of
// that room. Broker is the client side; it implements channel.Broker so a
// store can use it in place of an in-process channel.Hub:
//
//	srv := wsbridge.NewServer()
//	go http.ListenAndServe(":7070", srv.Handler())
//
//	store := idb.New("prefs", "app",
//	    idb.WithBroker(wsbridge.Dial("http://localhost:7070")))
//
// Payloads travel as JSON; receivers get generic JSON values (maps, slices,
// float64...) and are expected to validate them.
package wsbridge

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Server is a websocket relay for named broadcast channels.
type Server struct {
	upgrader websocket.Upgrader
	router   chi.Router
	logger   *slog.Logger

	writeTimeout time.Duration
	pingInterval time.Duration
	readLimit    int64
	sendBuffer   int

	mu     sync.Mutex
	rooms  map[string]map[*peer]struct{}
	closed bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPingInterval sets how often idle peers are pinged.
// Default: 30 seconds.
func WithPingInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		s.pingInterval = d
	}
}

// WithReadLimit sets the maximum frame size accepted from a peer.
// Default: 1 MiB.
func WithReadLimit(n int64) ServerOption {
	return func(s *Server) {
		s.readLimit = n
	}
}

// WithCheckOrigin sets the origin check of the websocket upgrader.
// Default: accept every origin.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) {
		s.upgrader.CheckOrigin = fn
	}
}

// NewServer creates a relay server.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:       slog.Default().With("component", "rxstore.wsbridge"),
		writeTimeout: 10 * time.Second,
		pingInterval: 30 * time.Second,
		readLimit:    1 << 20,
		sendBuffer:   256,
		rooms:        make(map[string]map[*peer]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/channels/{name}", s.serveChannel)
	s.router = r
	return s
}

// Handler returns the HTTP handler of the relay.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi router so callers can mount extra routes such as
// metrics.
func (s *Server) Router() chi.Router {
	return s.router
}

// Peers returns the number of peers in room name.
func (s *Server) Peers(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms[name])
}

// Close disconnects every peer and rejects new connections.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var all []*peer
	for _, room := range s.rooms {
		for p := range room {
			all = append(all, p)
		}
	}
	s.rooms = make(map[string]map[*peer]struct{})
	s.mu.Unlock()

	for _, p := range all {
		p.close()
	}
	return nil
}

type peer struct {
	id   string
	room string
	conn *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

func (s *Server) serveChannel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		http.Error(w, "missing channel name", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "channel", name, "error", err)
		return
	}

	p := &peer{
		id:   uuid.NewString(),
		room: name,
		conn: conn,
		send: make(chan []byte, s.sendBuffer),
		done: make(chan struct{}),
	}

	if !s.join(p) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	s.logger.Debug("peer joined", "channel", name, "peer", p.id)
	go s.writeLoop(p)
	s.readLoop(p)
}

func (s *Server) join(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	room, ok := s.rooms[p.room]
	if !ok {
		room = make(map[*peer]struct{})
		s.rooms[p.room] = room
	}
	room[p] = struct{}{}
	return true
}

func (s *Server) leave(p *peer) {
	s.mu.Lock()
	room := s.rooms[p.room]
	delete(room, p)
	if len(room) == 0 {
		delete(s.rooms, p.room)
	}
	s.mu.Unlock()

	p.close()
	s.logger.Debug("peer left", "channel", p.room, "peer", p.id)
}

// readLoop forwards frames from p to the rest of its room until the
// connection fails.
func (s *Server) readLoop(p *peer) {
	defer s.leave(p)

	p.conn.SetReadLimit(s.readLimit)
	_ = p.conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	})

	for {
		kind, msg, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "channel", p.room, "peer", p.id, "error", err)
			}
			return
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))

		if kind != websocket.TextMessage || !isJSONObject(msg) {
			s.logger.Debug("dropping malformed frame", "channel", p.room, "peer", p.id)
			continue
		}
		s.relay(p, msg)
	}
}

func (s *Server) relay(from *peer, msg []byte) {
	s.mu.Lock()
	targets := make([]*peer, 0, len(s.rooms[from.room]))
	for p := range s.rooms[from.room] {
		if p != from {
			targets = append(targets, p)
		}
	}
	s.mu.Unlock()

	for _, p := range targets {
		select {
		case p.send <- msg:
		case <-p.done:
		default:
			s.logger.Warn("peer send buffer full, dropping frame", "channel", p.room, "peer", p.id)
		}
	}
}

func (s *Server) writeLoop(p *peer) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("write failed", "channel", p.room, "peer", p.id, "error", err)
				p.close()
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeTimeout)); err != nil {
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

func isJSONObject(msg []byte) bool {
	trimmed := bytes.TrimSpace(msg)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
