package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	rxerrors "github.com/vango-dev/rxstore/internal/errors"
	"github.com/vango-dev/rxstore/pkg/storage"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "rxstore",
		Short: "Reactive key-value store tool",
		Long: `rxstore reads, writes and watches the keys of a reactive store.

Stores live in a memory, sqlite or s3 backend. Changes made by one
process reach the watchers of the others through the hub relay.

Settings come from rxstore.json (in the working directory or a parent)
and may be overridden with flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	opts.register(rootCmd)

	rootCmd.AddCommand(
		getCmd(opts),
		setCmd(opts),
		rmCmd(opts),
		keysCmd(opts),
		clearCmd(opts),
		watchCmd(opts),
		hubCmd(opts),
		versionCmd(),
	)
	return rootCmd
}

// printError writes err to w, with the coded form for store and config
// failures.
func printError(w io.Writer, err error) {
	var op *storage.OpError
	if errors.As(err, &op) {
		err = rxerrors.FromStorage(err)
	}
	rxerrors.Print(w, err)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
