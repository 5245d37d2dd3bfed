package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func watchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <key>",
		Short: "Print every change of a key",
		Long: `Print the current value of a key, then every later change, until
interrupted.

Changes made by other processes are seen when the indexed adapter is
connected to a hub (--hub or hub.url in rxstore.json).

Examples:
  rxstore hub &
  rxstore watch --hub=http://localhost:7420 theme`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.ready(ctx); err != nil {
				return err
			}
			return watchKey(ctx, s, args[0], cmd)
		},
	}
}

func watchKey(ctx context.Context, s *session, key string, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if s.cfg.Hub.URL == "" {
		info(cmd.ErrOrStderr(), "No hub configured: only changes made by this process are shown")
	}

	for v := range s.store.Observable(key).Chan(ctx, 16) {
		if v == nil {
			fmt.Fprintf(out, "%s: <absent>\n", key)
			continue
		}
		fmt.Fprintf(out, "%s: ", key)
		if err := writeJSON(out, v); err != nil {
			return err
		}
	}
	return nil
}
