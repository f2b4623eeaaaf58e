package main

import (
	"encoding/json"
	"fmt"

	"github.com/Barsa-M/accident-reporting-sub000/internal/config"
	"github.com/Barsa-M/accident-reporting-sub000/pkg/logger"
	"github.com/spf13/cobra"
)

// newSweepCmd - однократный проход по очереди, например из cron
func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Re-dispatch queued incidents once and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			log := logger.New(cfg.LogLevel)
			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.scheduler.Sweep(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}
