package main

import (
	"fmt"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/pkg/logger"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := logger.New(cfg.LogLevel)

			log.WithField("driver", cfg.DatabaseDriver).Info("Running database migrations...")
			if err := migrate(cmd.Context(), cfg); err != nil {
				return err
			}
			log.Info("Database migrations applied successfully")
			return nil
		},
	}
}
