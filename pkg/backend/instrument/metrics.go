package instrument

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "rxstore").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for operation duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "rxstore",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the table operation collectors.
type Metrics struct {
	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them. Collectors already
// registered with the same registry are reused, so several drivers can
// share one registry.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	if config.Buckets == nil {
		config.Buckets = prometheus.DefBuckets
	}

	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "table_ops_total",
		Help:        "Total number of backend table operations",
		ConstLabels: config.ConstLabels,
	}, []string{"driver", "op", "status"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   config.Namespace,
		Name:        "table_op_duration_seconds",
		Help:        "Backend table operation duration in seconds",
		ConstLabels: config.ConstLabels,
		Buckets:     config.Buckets,
	}, []string{"driver", "op"})

	var err error
	if ops, err = register(config.Registry, ops); err != nil {
		return nil, err
	}
	if duration, err = register(config.Registry, duration); err != nil {
		return nil, err
	}
	return &Metrics{opsTotal: ops, opDuration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) record(driver, op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.opDuration.WithLabelValues(driver, op).Observe(time.Since(start).Seconds())
	m.opsTotal.WithLabelValues(driver, op, status).Inc()
}
