package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/assignment-webapp/internal/account"
	"github.com/JakeFAU/assignment-webapp/internal/clock/system"
	"github.com/JakeFAU/assignment-webapp/internal/id/uuid"
	"github.com/JakeFAU/assignment-webapp/internal/logging"
	"github.com/JakeFAU/assignment-webapp/internal/server"
)

func newSeedCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load accounts from a CSV file",
		Long: `Reads first_name,last_name,email,password rows and creates any account
whose email is not yet registered. Passwords are stored as bcrypt hashes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Accounts.SeedFile
			}
			if file == "" {
				return fmt.Errorf("--file or accounts.seed_file is required")
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			repo, err := server.OpenRepository(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			seeder := account.NewSeeder(repo, uuid.New(), system.New(), cfg.Auth.BcryptCost, logger.Named("seeder"))
			res, err := seeder.SeedFile(cmd.Context(), file)
			if err != nil {
				return err
			}
			logger.Info("accounts seeded", zap.String("file", file), zap.Int("created", res.Created), zap.Int("skipped", res.Skipped))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file with first_name,last_name,email,password")
	return cmd
}
