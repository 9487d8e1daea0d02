package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"EarnScan/internal/di"
	applogger "EarnScan/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, scan queue workers, and quote stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		lgr.Info("starting",
			applogger.String("env", cfg.Environment),
			applogger.String("backend", cfg.Backend.Type))

		app, err := di.InitializeApp(cfg, lgr)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}

		// Blocks until SIGINT/SIGTERM.
		return app.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
