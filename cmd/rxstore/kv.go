package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	rxerrors "github.com/vango-dev/rxstore/internal/errors"
)

// withSession opens the store, waits for its backend and runs fn.
func withSession(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, s *session) error) error {
	s, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ready(ctx); err != nil {
		return err
	}
	return fn(ctx, s)
}

func getCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the value of a key",
		Long: `Print the stored value of a key as JSON.

Examples:
  rxstore get theme
  rxstore get --table=settings --backend=sqlite theme`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				v, found, err := s.store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return rxerrors.New("RX010").
						WithDetail(fmt.Sprintf("No value stored for %q in %s/%s", args[0], s.cfg.Database, s.cfg.Table))
				}
				return writeJSON(cmd.OutOrStdout(), v)
			})
		},
	}
}

func setCmd(opts *globalOptions) *cobra.Command {
	var asString bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value",
		Long: `Store a value for a key. The value is parsed as JSON unless
--string is given.

Examples:
  rxstore set theme '"dark"'
  rxstore set --string theme dark
  rxstore set layout '{"sidebar": true, "width": 240}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := parseValue(args[1], asString)
			if err != nil {
				return err
			}
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if err := s.store.Set(ctx, args[0], value); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Stored %s", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&asString, "string", "s", false, "Store the value as a plain string")

	return cmd
}

// parseValue decodes a command-line value.
func parseValue(arg string, asString bool) (any, error) {
	if asString {
		return arg, nil
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return nil, rxerrors.New("RX120").
			Wrap(err).
			WithSuggestion("Quote strings as JSON ('\"dark\"') or pass --string")
	}
	return v, nil
}

func rmCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <key>...",
		Aliases: []string{"remove"},
		Short:   "Remove keys",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				for _, key := range args {
					if err := s.store.Remove(ctx, key); err != nil {
						return err
					}
				}
				success(cmd.OutOrStdout(), "Removed %d key(s)", len(args))
				return nil
			})
		},
	}
}

func keysCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the keys of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				keys, err := s.store.Keys(ctx)
				if err != nil {
					return err
				}
				for _, key := range keys {
					fmt.Fprintln(cmd.OutOrStdout(), key)
				}
				return nil
			})
		},
	}
}

func clearCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every key of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(ctx context.Context, s *session) error {
				if err := s.store.Clear(ctx); err != nil {
					return err
				}
				success(cmd.OutOrStdout(), "Cleared %s/%s", s.cfg.Database, s.cfg.Table)
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return rxerrors.New("RX004").Wrap(err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
