// Package instrument decorates a backend.Driver with Prometheus metrics and
// OpenTelemetry spans.
//
// Metrics collected:
//   - rxstore_table_ops_total: Counter of operations by driver, op and status
//   - rxstore_table_op_duration_seconds: Histogram of operation duration
//
// Every operation runs in a span named rxstore.table.<op>.
//
// Example:
//
//	drv := instrument.Wrap(sqliteDriver, instrument.WithRegistry(reg))
//	store := idb.New("settings", "app", idb.WithDriver(drv))
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package instrument

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/rxstore/pkg/backend"
)

const defaultTracerName = "rxstore"

// Option configures Wrap.
type Option func(*config)

type config struct {
	metrics        MetricsConfig
	shared         *Metrics
	tracerProvider trace.TracerProvider
	tracerName     string
	includeKeys    bool
}

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *config) {
		c.metrics.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *config) {
		c.metrics.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *config) {
		c.metrics.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *config) {
		c.metrics.Registry = registry
	}
}

// WithMetrics records into existing collectors instead of registering new
// ones.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.shared = m
	}
}

// WithTracerProvider sets the tracer provider.
// Default: the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithTracerName sets the tracer name (default: "rxstore").
func WithTracerName(name string) Option {
	return func(c *config) {
		c.tracerName = name
	}
}

// WithIncludeKeys adds the item key to span attributes. Keys may carry user
// data; disabled by default.
func WithIncludeKeys(include bool) Option {
	return func(c *config) {
		c.includeKeys = include
	}
}

// Driver is an instrumented backend.Driver.
type Driver struct {
	next        backend.Driver
	metrics     *Metrics
	tracer      trace.Tracer
	includeKeys bool
}

var _ backend.Driver = (*Driver)(nil)

// Wrap instruments next.
func Wrap(next backend.Driver, opts ...Option) (*Driver, error) {
	cfg := config{
		metrics:    defaultMetricsConfig(),
		tracerName: defaultTracerName,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := cfg.shared
	if m == nil {
		var err error
		if m, err = NewMetrics(cfg.metrics); err != nil {
			return nil, err
		}
	}
	tp := cfg.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	return &Driver{
		next:        next,
		metrics:     m,
		tracer:      tp.Tracer(cfg.tracerName),
		includeKeys: cfg.includeKeys,
	}, nil
}

// Name returns the name of the wrapped driver.
func (d *Driver) Name() string {
	return d.next.Name()
}

// OpenTable implements backend.Driver.
func (d *Driver) OpenTable(ctx context.Context, database, table string) (backend.Table, error) {
	t := &Table{driver: d, database: database, table: table}

	var next backend.Table
	err := t.observe(ctx, "open", "", func(ctx context.Context, _ trace.Span) error {
		var err error
		next, err = d.next.OpenTable(ctx, database, table)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.next = next
	return t, nil
}

// Table is an instrumented backend.Table.
type Table struct {
	driver   *Driver
	next     backend.Table
	database string
	table    string
}

var _ backend.Table = (*Table)(nil)

func (t *Table) observe(ctx context.Context, op, key string, fn func(context.Context, trace.Span) error) error {
	attrs := []attribute.KeyValue{
		attribute.String("rxstore.driver", t.driver.next.Name()),
		attribute.String("rxstore.database", t.database),
		attribute.String("rxstore.table", t.table),
	}
	if key != "" && t.driver.includeKeys {
		attrs = append(attrs, attribute.String("rxstore.key", key))
	}

	ctx, span := t.driver.tracer.Start(ctx, "rxstore.table."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	start := time.Now()
	err := fn(ctx, span)
	t.driver.metrics.record(t.driver.next.Name(), op, start, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// Get implements backend.Table.
func (t *Table) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		found bool
	)
	err := t.observe(ctx, "get", key, func(ctx context.Context, span trace.Span) error {
		var err error
		value, found, err = t.next.Get(ctx, key)
		span.SetAttributes(attribute.Bool("rxstore.found", found))
		return err
	})
	return value, found, err
}

// Set implements backend.Table.
func (t *Table) Set(ctx context.Context, key string, value []byte) error {
	return t.observe(ctx, "set", key, func(ctx context.Context, span trace.Span) error {
		span.SetAttributes(attribute.Int("rxstore.value_bytes", len(value)))
		return t.next.Set(ctx, key, value)
	})
}

// Remove implements backend.Table.
func (t *Table) Remove(ctx context.Context, key string) error {
	return t.observe(ctx, "remove", key, func(ctx context.Context, _ trace.Span) error {
		return t.next.Remove(ctx, key)
	})
}

// Keys implements backend.Table.
func (t *Table) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := t.observe(ctx, "keys", "", func(ctx context.Context, span trace.Span) error {
		var err error
		keys, err = t.next.Keys(ctx)
		span.SetAttributes(attribute.Int("rxstore.key_count", len(keys)))
		return err
	})
	return keys, err
}

// Clear implements backend.Table.
func (t *Table) Clear(ctx context.Context) error {
	return t.observe(ctx, "clear", "", func(ctx context.Context, _ trace.Span) error {
		return t.next.Clear(ctx)
	})
}

// Close implements backend.Table.
func (t *Table) Close() error {
	return t.next.Close()
}
