package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// @title Incident Dispatch API
// @version 1.0
// @description Incident intake, responder routing and dispatch lifecycle.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

// newRootCmd собирает CLI: serve, migrate, sweep
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dispatch",
		Short:         "Incident dispatch and responder routing service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSweepCmd(),
	)
	return cmd
}
