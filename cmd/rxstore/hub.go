package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	rxerrors "github.com/vango-dev/rxstore/internal/errors"
	"github.com/vango-dev/rxstore/pkg/channel/wsbridge"
)

func hubCmd(opts *globalOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Run the change relay",
		Long: `Run the websocket relay that carries change messages between
processes sharing a store.

Endpoints:
  GET /channels/{name}   websocket channel
  GET /healthz           liveness check
  GET /metrics           Prometheus metrics

Examples:
  rxstore hub
  rxstore hub --listen=:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Hub.Listen = listen
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg)

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", cfg.Hub.Listen)
			if err != nil {
				return rxerrors.New("RX041").Wrap(err)
			}

			relay := wsbridge.NewServer(wsbridge.WithLogger(logger))
			relay.Router().Handle("/metrics", metricsHandler())

			success(cmd.OutOrStdout(), "Hub listening on %s", ln.Addr())
			return serveHub(ctx, ln, relay)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default from rxstore.json)")

	return cmd
}

func metricsHandler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// serveHub serves relay on ln until ctx is done.
func serveHub(ctx context.Context, ln net.Listener, relay *wsbridge.Server) error {
	srv := &http.Server{
		Handler:           relay.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		relay.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return rxerrors.New("RX041").Wrap(err)
	case <-ctx.Done():
	}

	relay.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return rxerrors.New("RX041").Wrap(err)
	}
	return nil
}
