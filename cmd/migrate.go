package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/assignment-webapp/internal/logging"
	pgstore "github.com/JakeFAU/assignment-webapp/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.UsesDatabase() {
				return errors.New("database.dsn is required for migrate")
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			repo, err := pgstore.New(cmd.Context(), pgstore.Config{
				DSN:             cfg.Database.DSN,
				MaxConns:        cfg.Database.MaxConns,
				MinConns:        cfg.Database.MinConns,
				MaxConnLifetime: cfg.Database.MaxConnLifetime,
			})
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("database schema applied")
			return nil
		},
	}
}
