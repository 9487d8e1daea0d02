package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"EarnScan/pkg/config"
	applogger "EarnScan/pkg/logger"
)

var (
	cfgPath   string
	logLevel  string
	logFormat string

	cfg *config.Config
	lgr *applogger.Logger
)

// version is injected by the build.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "earnscan",
	Short: "Earnings-calendar options screener",
	Long: "Scans upcoming earnings events, validates each candidate against " +
		"volatility and liquidity gates, and reports iron-fly candidates.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.LoadWithEnv(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		l, err := applogger.New(&applogger.Config{
			Level:  logLevel,
			Format: logFormat,
			Output: "stdout",
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		lgr = l
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	// No config or logger needed here.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("earnscan", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console or json)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
