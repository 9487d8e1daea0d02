package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"EarnScan/internal/di"
)

var listDate string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the earnings candidates a scan would cover",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tk, err := di.InitializeToolkit(cfg, lgr)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		defer tk.Close()

		dates, candidates, err := tk.Orchestrator.ListCandidates(ctx, listDate)
		if err != nil {
			return err
		}

		fmt.Printf("Earnings candidates: post-market %s, pre-market %s\n\n",
			dates.PostMarket.Format("01/02/2006"),
			dates.PreMarket.Format("01/02/2006"))

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tTIMING")
		fmt.Fprintln(w, "------\t------")
		for _, c := range candidates {
			fmt.Fprintf(w, "%s\t%s\n", c.Symbol, c.Timing)
		}
		_ = w.Flush()

		fmt.Printf("\n%d candidates\n", len(candidates))
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listDate, "date", "", "scan date MM/DD/YYYY (default: next post-earnings session)")
	rootCmd.AddCommand(listCmd)
}
