package wsbridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/rxstore/pkg/channel"
)

type inbox struct {
	mu   sync.Mutex
	msgs []any
}

func (i *inbox) add(v any) {
	i.mu.Lock()
	i.msgs = append(i.msgs, v)
	i.mu.Unlock()
}

func (i *inbox) snapshot() []any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]any(nil), i.msgs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newRelay(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Close()
		ts.Close()
	})
	return srv, ts
}

func openChannel(t *testing.T, b *Broker, name string) channel.Channel {
	t.Helper()
	ch, err := b.Open(context.Background(), name)
	if err != nil {
		t.Fatalf("Open(%q) failed: %v", name, err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestRelayBetweenBrokers(t *testing.T) {
	srv, ts := newRelay(t)
	broker := Dial(ts.URL)

	a := openChannel(t, broker, "db.table")
	b := openChannel(t, broker, "db.table")
	other := openChannel(t, broker, "db.other")

	var inA, inB, inOther inbox
	a.Subscribe(inA.add)
	b.Subscribe(inB.add)
	other.Subscribe(inOther.add)

	waitFor(t, func() bool { return srv.Peers("db.table") == 2 })

	if err := a.Post(map[string]any{"type": "set", "key": "k", "value": 1}); err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	waitFor(t, func() bool { return len(inB.snapshot()) == 1 })

	msg, ok := inB.snapshot()[0].(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T, want map", inB.snapshot()[0])
	}
	if msg["key"] != "k" || msg["value"] != float64(1) {
		t.Errorf("payload = %v", msg)
	}

	time.Sleep(30 * time.Millisecond)
	if n := len(inA.snapshot()); n != 0 {
		t.Errorf("sender received %d payloads", n)
	}
	if n := len(inOther.snapshot()); n != 0 {
		t.Errorf("other room received %d payloads", n)
	}
}

func TestRelayDropsMalformedFrames(t *testing.T) {
	srv, ts := newRelay(t)
	broker := Dial(ts.URL)

	receiver := openChannel(t, broker, "n")
	var in inbox
	receiver.Subscribe(in.add)

	url, _ := broker.ChannelURL("n")
	raw, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer raw.Close()

	waitFor(t, func() bool { return srv.Peers("n") == 2 })

	_ = raw.WriteMessage(websocket.TextMessage, []byte("not json"))
	_ = raw.WriteMessage(websocket.TextMessage, []byte(`[1,2]`))
	_ = raw.WriteMessage(websocket.BinaryMessage, []byte(`{"type":"set"}`))
	_ = raw.WriteMessage(websocket.TextMessage, []byte(`{"type":"remove","key":"k"}`))

	waitFor(t, func() bool { return len(in.snapshot()) == 1 })
	time.Sleep(30 * time.Millisecond)
	if n := len(in.snapshot()); n != 1 {
		t.Errorf("received %d payloads, want 1", n)
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newRelay(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestChannelURL(t *testing.T) {
	tests := []struct {
		base string
		want string
		err  bool
	}{
		{"http://localhost:7070", "ws://localhost:7070/channels/db.t", false},
		{"https://relay.example.com/", "wss://relay.example.com/channels/db.t", false},
		{"ws://h", "ws://h/channels/db.t", false},
		{"ftp://h", "", true},
	}

	for _, tt := range tests {
		got, err := Dial(tt.base).ChannelURL("db.t")
		if (err != nil) != tt.err {
			t.Errorf("ChannelURL(%q) err = %v", tt.base, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ChannelURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestPostAfterClose(t *testing.T) {
	_, ts := newRelay(t)
	ch, err := Dial(ts.URL).Open(context.Background(), "n")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	_ = ch.Close()
	_ = ch.Close()

	if err := ch.Post(map[string]any{"type": "set"}); err != channel.ErrClosed {
		t.Errorf("Post after Close err = %v", err)
	}
}

func TestServerCloseRejectsPeers(t *testing.T) {
	srv, ts := newRelay(t)
	_ = srv.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/channels/n"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("closed server should not keep the connection")
	}
}
