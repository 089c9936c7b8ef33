// Package commands wires the CLI: configure, connect, map-accounts,
// institutions, and sync.
package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ynab-sync/ynab-sync/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var verbose bool

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})

	rootCmd := &cobra.Command{
		Use:     "ynab-sync",
		Short:   "Sync bank transactions from GoCardless to YNAB",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				logger.SetLevel(log.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newConfigureCommand())
	rootCmd.AddCommand(newConnectCommand())
	rootCmd.AddCommand(newMapAccountsCommand())
	rootCmd.AddCommand(newInstitutionsCommand())
	rootCmd.AddCommand(newSyncCommand(logger))

	return rootCmd
}
