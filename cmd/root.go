// Package cmd defines the CLI commands for the webapp executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/assignment-webapp/internal/config"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webapp",
		Short: "Assignment submission service and archive consumer.",
		Long: `webapp serves the assignment and submission REST API and runs the
consumer that validates, archives and reports on each submission.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env WEBAPP_* overrides)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConsumeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedCmd())
	return cmd
}

// loadConfig reads the config file named by --config, falling back to
// WEBAPP_CONFIG.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("WEBAPP_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
