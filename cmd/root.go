// Package cmd defines the CLI commands for the reportscraper executable.
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
		Use:   "reportscraper",
		Short: "Downloads municipal annual financial reports",
		Long: `reportscraper crawls municipal financial report pages discovered by the
URL finder, classifies candidate documents, selects the best document per
fiscal year, and downloads one PDF per year into the lake directory.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; defaults come from env and built-ins)")

	cmd.AddCommand(newDownloadCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
