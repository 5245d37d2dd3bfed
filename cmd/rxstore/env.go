package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/rxstore/internal/config"
	rxerrors "github.com/vango-dev/rxstore/internal/errors"
	"github.com/vango-dev/rxstore/pkg/backend"
	"github.com/vango-dev/rxstore/pkg/backend/instrument"
	"github.com/vango-dev/rxstore/pkg/backend/memory"
	drivers3 "github.com/vango-dev/rxstore/pkg/backend/s3"
	"github.com/vango-dev/rxstore/pkg/backend/sqlite"
	"github.com/vango-dev/rxstore/pkg/channel"
	"github.com/vango-dev/rxstore/pkg/channel/wsbridge"
	"github.com/vango-dev/rxstore/pkg/idb"
	"github.com/vango-dev/rxstore/pkg/localstorage"
	"github.com/vango-dev/rxstore/pkg/storage"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	database   string
	table      string
	adapter    string
	backend    string
	sqlitePath string
	hubURL     string
	logLevel   string
}

func (o *globalOptions) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "Path to rxstore.json (default: search from the working directory)")
	f.StringVarP(&o.database, "database", "d", "", "Database name")
	f.StringVarP(&o.table, "table", "t", "", "Table name")
	f.StringVar(&o.adapter, "adapter", "", "Store adapter: indexed or local")
	f.StringVarP(&o.backend, "backend", "b", "", "Backend: memory, sqlite or s3")
	f.StringVar(&o.sqlitePath, "sqlite", "", "SQLite database file")
	f.StringVar(&o.hubURL, "hub", "", "Relay hub URL used to propagate changes")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn or error")
}

// load reads the configuration and applies flag overrides.
func (o *globalOptions) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.LoadFromWorkingDir()
		var e *rxerrors.Error
		if errors.As(err, &e) && e.Code == "RX080" {
			cfg, err = config.New(), nil
		}
	}
	if err != nil {
		return nil, err
	}

	if o.database != "" {
		cfg.Database = o.database
	}
	if o.table != "" {
		cfg.Table = o.table
	}
	if o.adapter != "" {
		cfg.Adapter = o.adapter
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if o.sqlitePath != "" {
		cfg.SQLite.Path = o.sqlitePath
	}
	if o.hubURL != "" {
		cfg.Hub.URL = o.hubURL
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the slog logger described by cfg.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(strings.ToLower(cfg.Log.Level)))

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h)
}

// session is an open store plus the resources behind it.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   storage.Storage
	closers []func() error
}

// open builds the store described by o. The caller must Close the session.
func (o *globalOptions) open(cmd *cobra.Command) (*session, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: newLogger(cmd.ErrOrStderr(), cfg)}
	if err := s.openStore(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) openStore() error {
	cfg := s.cfg

	if cfg.Adapter == config.AdapterLocal {
		area, err := s.area()
		if err != nil {
			return err
		}
		s.store = localstorage.New(cfg.Table, cfg.Database,
			localstorage.WithArea(area),
			localstorage.WithDelimiter(cfg.Delimiter),
			localstorage.WithLogger(s.logger),
			localstorage.WithDevMode(cfg.DevMode),
		)
		return nil
	}

	driver, err := s.driver()
	if err != nil {
		return err
	}
	wrapped, err := instrument.Wrap(driver, instrument.WithRegistry(prometheus.NewRegistry()))
	if err != nil {
		return err
	}

	var broker channel.Broker = channel.NewHub(channel.WithHubLogger(s.logger))
	if cfg.Hub.URL != "" {
		broker = wsbridge.Dial(cfg.Hub.URL, wsbridge.WithBrokerLogger(s.logger))
	}

	s.store = idb.New(cfg.Table, cfg.Database,
		idb.WithDriver(wrapped),
		idb.WithBroker(broker),
		idb.WithLogger(s.logger),
		idb.WithDevMode(cfg.DevMode),
	)
	return nil
}

func (s *session) driver() (backend.Driver, error) {
	cfg := s.cfg
	switch cfg.Backend {
	case config.BackendSQLite:
		d, err := sqlite.Open(cfg.SQLite.Path, sqlite.WithLogger(s.logger))
		if err != nil {
			return nil, rxerrors.New("RX001").Wrap(err)
		}
		s.closers = append(s.closers, d.Close)
		return d, nil
	case config.BackendS3:
		client := drivers3.NewClient(drivers3.ClientConfig{
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		})
		return drivers3.NewDriver(client, cfg.S3.Bucket,
			drivers3.WithPrefix(cfg.S3.Prefix),
			drivers3.WithLogger(s.logger),
		), nil
	default:
		return memory.NewDriver(), nil
	}
}

func (s *session) area() (backend.Area, error) {
	if s.cfg.Backend != config.BackendSQLite {
		return memory.NewArea().Context(), nil
	}
	d, err := sqlite.Open(s.cfg.SQLite.Path, sqlite.WithLogger(s.logger))
	if err != nil {
		return nil, rxerrors.New("RX001").Wrap(err)
	}
	s.closers = append(s.closers, d.Close)
	return d.Area(), nil
}

// ready waits until the store finished opening its backend.
func (s *session) ready(ctx context.Context) error {
	type readier interface {
		Ready() <-chan struct{}
		Available() bool
	}
	r, ok := s.store.(readier)
	if !ok {
		return nil
	}
	select {
	case <-r.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}
	if !r.Available() {
		return rxerrors.New("RX001").
			WithDetail(fmt.Sprintf("The %s backend could not be opened for %s/%s", s.cfg.Backend, s.cfg.Database, s.cfg.Table))
	}
	return nil
}

// Close disposes the store and releases the backend.
func (s *session) Close() {
	if s.store != nil {
		s.store.Dispose()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Debug("close backend", "error", err)
		}
	}
}
