package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"EarnScan/internal/di"
)

var analyzeIronFly bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL",
	Short: "Analyze one symbol against freshly adapted thresholds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tk, err := di.InitializeToolkit(cfg, lgr)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		defer tk.Close()

		report, err := tk.Analyzer.Analyze(ctx, args[0], analyzeIronFly)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeIronFly, "iron-fly", false, "include an iron-fly plan in the report")
	rootCmd.AddCommand(analyzeCmd)
}
