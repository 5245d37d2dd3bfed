package idb

import (
	"log/slog"
	"time"

	"github.com/vango-dev/rxstore/pkg/backend"
	"github.com/vango-dev/rxstore/pkg/channel"
	"github.com/vango-dev/rxstore/pkg/storage"
)

// Option configures a Store.
type Option func(*config)

type config struct {
	driver      backend.Driver
	broker      channel.Broker
	ready       <-chan struct{}
	codec       storage.Codec
	logger      *slog.Logger
	devMode     bool
	openTimeout time.Duration
}

func defaultConfig() config {
	return config{
		codec:       storage.DefaultCodec,
		openTimeout: 30 * time.Second,
	}
}

// WithDriver sets the backend the table is opened from. A store without a
// driver treats the backend as unavailable.
func WithDriver(d backend.Driver) Option {
	return func(c *config) {
		c.driver = d
	}
}

// WithBroker sets the broker used to exchange change messages with other
// stores of the same logical table.
func WithBroker(b channel.Broker) Option {
	return func(c *config) {
		c.broker = b
	}
}

// WithReadiness defers opening the backend until ready is closed. Every
// operation waits for it.
func WithReadiness(ready <-chan struct{}) Option {
	return func(c *config) {
		c.ready = ready
	}
}

// WithCodec sets the codec used to store values. Default: JSON.
func WithCodec(codec storage.Codec) Option {
	return func(c *config) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDevMode logs missing-backend diagnostics as warnings instead of
// debug messages.
func WithDevMode(enabled bool) Option {
	return func(c *config) {
		c.devMode = enabled
	}
}

// WithOpenTimeout bounds opening the table and the channel.
// Default: 30 seconds.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.openTimeout = d
		}
	}
}
