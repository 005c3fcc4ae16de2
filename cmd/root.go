// Package cmd defines and implements the CLI commands for the lindol
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
		Use:   "lindol",
		Short: "Seismic bulletin scraper and notification service.",
		Long: `lindol periodically scrapes a government seismic bulletin page,
persists newly published event records exactly once, and notifies
external channels when fresh high-significance events appear.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point. A graceful no-op run exits 0; any
// fatal pipeline error exits non-zero.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
