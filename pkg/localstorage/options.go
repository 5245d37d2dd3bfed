package localstorage

import (
	"log/slog"

	"github.com/vango-dev/rxstore/pkg/backend"
)

// DefaultDelimiter separates database, table and key in the flat key
// namespace of an area.
const DefaultDelimiter = "|~:%:^|"

// Option configures a Store.
type Option func(*config)

type config struct {
	area      backend.Area
	provider  func() backend.Area
	ready     <-chan struct{}
	delimiter string
	logger    *slog.Logger
	devMode   bool
}

// WithArea sets the area values are stored in. The area is used
// immediately.
func WithArea(area backend.Area) Option {
	return func(c *config) {
		c.area = area
	}
}

// WithAreaProvider defers obtaining the area until ready is closed, for
// contexts where no area exists at construction time. Operations issued
// before that wait for it.
func WithAreaProvider(provider func() backend.Area, ready <-chan struct{}) Option {
	return func(c *config) {
		c.provider = provider
		c.ready = ready
	}
}

// WithDelimiter overrides DefaultDelimiter. An empty delimiter is ignored.
func WithDelimiter(delimiter string) Option {
	return func(c *config) {
		if delimiter != "" {
			c.delimiter = delimiter
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDevMode logs a missing area as a warning instead of a debug message.
func WithDevMode(enabled bool) Option {
	return func(c *config) {
		c.devMode = enabled
	}
}
