package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rrens/streamchat/internal/config"
	"github.com/Rrens/streamchat/internal/logging"
	"github.com/Rrens/streamchat/internal/repository/postgres"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var source string

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the development backend's PostgreSQL schema",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return nil
		},
	}
	root.PersistentFlags().StringVar(&source, "source", "", "migration source URL such as file://migrations (default: built-in)")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dsn, err := databaseDSN()
				if err != nil {
					return err
				}
				return postgres.RunMigrations(dsn, source)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Revert all applied migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dsn, err := databaseDSN()
				if err != nil {
					return err
				}
				return postgres.RollbackMigrations(dsn, source)
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func databaseDSN() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := logging.Setup(cfg.Logging); err != nil {
		return "", err
	}
	if !cfg.Database.Enabled() {
		return "", fmt.Errorf("no database configured (set database.host or POSTGRES_HOST)")
	}

	log.Info().Str("host", cfg.Database.Host).Int("port", cfg.Database.Port).Msg("Connecting to database")
	return cfg.Database.DSN(), nil
}
