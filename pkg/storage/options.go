package storage

import "github.com/vango-dev/rxstore/pkg/reactive"

// SignalOption configures Signal and WritableSignal.
type SignalOption func(*SignalConfig)

// SignalConfig holds the options of a Signal or WritableSignal call.
type SignalConfig struct {
	// InitialValue is used when the cell is created and no stored value is
	// known yet.
	InitialValue any

	// HasInitialValue reports whether InitialValue was set.
	HasInitialValue bool

	// Equal suppresses change notifications for equal values.
	Equal reactive.EqualFunc
}

// WithInitialValue sets the value a newly created cell starts with.
func WithInitialValue(v any) SignalOption {
	return func(c *SignalConfig) {
		c.InitialValue = v
		c.HasInitialValue = v != nil
	}
}

// WithEqual sets the equality function of a newly created cell.
func WithEqual(fn reactive.EqualFunc) SignalOption {
	return func(c *SignalConfig) {
		c.Equal = fn
	}
}

// NewSignalConfig applies opts.
func NewSignalConfig(opts ...SignalOption) SignalConfig {
	var cfg SignalConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}
