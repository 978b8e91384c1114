package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/assignment-webapp/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves the REST API. With events.backend=memory the archive consumer
runs in the same process; with pubsub, events are published for "webapp consume".`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
}
