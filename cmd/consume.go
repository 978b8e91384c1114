package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/assignment-webapp/internal/server"
)

func newConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Process submission events from Pub/Sub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := server.BuildConsumer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return app.RunConsumer(cmd.Context())
		},
	}
}
