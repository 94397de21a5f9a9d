// Package cmd defines and implements the CLI commands for the scanbridge
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scanbridge",
		Short: "HTTP bridge between scan requests and the SolarScan worker.",
		Long: `scanbridge accepts geospatial scan batches over HTTP, normalizes
them into the worker's canonical shape, runs one external worker process per
request with a bounded time budget, and relays the worker's structured
result back to the caller.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; environment variables are always read)")

	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
