// Package commands implements the cashflow CLI.
package commands

import (
	"github.com/spf13/cobra"
)

// Version is the CLI version, overridden at build time with -ldflags.
var Version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	owner      string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var flags globalFlags

	rootCmd := &cobra.Command{
		Use:     "cashflow",
		Short:   "Personal cash-flow ledger and projection engine",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to cashflow.yaml (defaults are used when empty)")
	pf.StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	pf.StringVar(&flags.owner, "owner", "", "ledger owner (defaults to preferences.owner)")

	rootCmd.AddCommand(
		newServeCommand(&flags),
		newProjectCommand(&flags),
		newAnticipateCommand(&flags),
		newImportCommand(&flags),
		newInitConfigCommand(),
	)

	return rootCmd
}
