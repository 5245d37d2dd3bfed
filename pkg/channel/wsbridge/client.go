package wsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/rxstore/pkg/channel"
)

// Broker opens channels on a relay Server.
type Broker struct {
	baseURL      string
	dialer       *websocket.Dialer
	header       http.Header
	writeTimeout time.Duration
	logger       *slog.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithDialer sets the websocket dialer. Default: websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) BrokerOption {
	return func(b *Broker) {
		if d != nil {
			b.dialer = d
		}
	}
}

// WithHeader sets extra headers sent with the handshake.
func WithHeader(h http.Header) BrokerOption {
	return func(b *Broker) {
		b.header = h
	}
}

// WithBrokerLogger sets the broker logger.
func WithBrokerLogger(logger *slog.Logger) BrokerOption {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Dial returns a Broker for the relay at baseURL (http, https, ws or wss).
// No connection is made until Open.
func Dial(baseURL string, opts ...BrokerOption) *Broker {
	b := &Broker{
		baseURL:      strings.TrimRight(baseURL, "/"),
		dialer:       websocket.DefaultDialer,
		writeTimeout: 10 * time.Second,
		logger:       slog.Default().With("component", "rxstore.wsbridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ChannelURL returns the websocket URL of channel name.
func (b *Broker) ChannelURL(name string) (string, error) {
	u, err := url.Parse(b.baseURL)
	if err != nil {
		return "", fmt.Errorf("wsbridge: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("wsbridge: unsupported scheme %q", u.Scheme)
	}
	return u.String() + "/channels/" + url.PathEscape(name), nil
}

// Open implements channel.Broker. The handshake is abandoned when ctx is
// done.
func (b *Broker) Open(ctx context.Context, name string) (channel.Channel, error) {
	target, err := b.ChannelURL(name)
	if err != nil {
		return nil, err
	}

	conn, _, err := b.dialer.DialContext(ctx, target, b.header)
	if err != nil {
		return nil, fmt.Errorf("wsbridge: dial %s: %w", target, err)
	}

	c := &Conn{
		name:         name,
		conn:         conn,
		writeTimeout: b.writeTimeout,
		logger:       b.logger,
		done:         make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Conn is a channel.Channel backed by a relay connection.
type Conn struct {
	name         string
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *slog.Logger

	listeners channel.Listeners

	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

// Post implements channel.Channel. data is sent as JSON.
func (c *Conn) Post(data any) error {
	select {
	case <-c.done:
		return channel.ErrClosed
	default:
	}

	msg, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("wsbridge: encode payload: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Subscribe implements channel.Channel.
func (c *Conn) Subscribe(fn func(any)) func() {
	return c.listeners.Add(fn)
}

// Close implements channel.Channel.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Done returns a channel closed when the connection ends.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop() {
	defer c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Warn("relay connection lost", "channel", c.name, "error", err)
				}
			}
			return
		}

		var payload any
		if err := json.Unmarshal(msg, &payload); err != nil {
			c.logger.Debug("dropping undecodable payload", "channel", c.name, "error", err)
			continue
		}
		c.listeners.Dispatch(payload)
	}
}
