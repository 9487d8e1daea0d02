package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"EarnScan/internal/di"
	"EarnScan/internal/domain/models"
	"EarnScan/internal/usecase"
	applogger "EarnScan/pkg/logger"
)

var (
	scanDate     string
	scanWorkers  int
	scanBatched  bool
	scanIronFly  bool
	scanEvery    time.Duration
	scanNoExport bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run an earnings scan and print the recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		tk, err := di.InitializeToolkit(cfg, lgr)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}
		defer tk.Close()

		workers := scanWorkers
		if scanBatched {
			workers = 0
		}

		run := func(ctx context.Context) error {
			res, err := tk.Orchestrator.Run(ctx, usecase.ScanOptions{
				Date:     scanDate,
				Workers:  workers,
				NoExport: scanNoExport,
			})
			if err != nil {
				return err
			}
			printScanResult(os.Stdout, res)
			if scanIronFly {
				printIronFlies(ctx, tk, res)
			}
			return nil
		}

		if scanEvery <= 0 {
			return run(ctx)
		}

		// Repeat mode: run immediately, then on every tick until interrupted.
		for {
			if err := run(ctx); err != nil {
				lgr.Error("scan failed", applogger.Error(err))
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(scanEvery):
			}
		}
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanDate, "date", "", "scan date MM/DD/YYYY (default: next post-earnings session)")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "parallel validations, 0 = sequential batches")
	scanCmd.Flags().BoolVar(&scanBatched, "batched", false, "force sequential batch mode")
	scanCmd.Flags().BoolVar(&scanIronFly, "iron-fly", false, "print iron-fly plans for recommended symbols")
	scanCmd.Flags().DurationVar(&scanEvery, "every", 0, "rerun interval (0 = run once)")
	scanCmd.Flags().BoolVar(&scanNoExport, "no-export", false, "skip writing the CSV/JSON result files")
	rootCmd.AddCommand(scanCmd)
}

func printScanResult(out io.Writer, res *models.ScanResult) {
	counts := res.Counts()
	fmt.Fprintf(out, "\nScan %s: post-market %s, pre-market %s\n",
		res.ID,
		res.Dates.PostMarket.Format("01/02/2006"),
		res.Dates.PreMarket.Format("01/02/2006"))
	fmt.Fprintf(out, "Thresholds: pass >= %.2f, near miss >= %.2f (%s)\n",
		res.Thresholds.Pass, res.Thresholds.NearMiss, res.Thresholds.Basis)
	fmt.Fprintf(out, "Analyzed %d: %d tier 1, %d tier 2, %d near misses, %d failed\n\n",
		counts.Analyzed, counts.TierOne, counts.TierTwo, counts.NearMisses, counts.Failed)

	if counts.Recommended == 0 && counts.NearMisses == 0 {
		fmt.Fprintln(out, "No recommendations today.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tTIER\tTIMING\tREASON")
	fmt.Fprintln(w, "------\t----\t------\t------")
	for _, c := range res.Recommended() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.Symbol, c.Tier, c.Timing, c.Reason)
	}
	for _, c := range res.Classifications {
		if c.Outcome == models.OutcomeNearMiss {
			fmt.Fprintf(w, "%s\tnear\t%s\t%s\n", c.Symbol, c.Timing, c.Reason)
		}
	}
	_ = w.Flush()
}

func printIronFlies(ctx context.Context, tk *di.Toolkit, res *models.ScanResult) {
	for _, c := range res.Recommended() {
		plan, err := tk.IronFly.Plan(ctx, c.Symbol)
		if err != nil {
			lgr.Warn("iron fly unavailable",
				applogger.String("symbol", c.Symbol), applogger.Error(err))
			continue
		}
		printIronFly(os.Stdout, plan)
	}
}

func printIronFly(out io.Writer, p *models.IronFlyPlan) {
	fmt.Fprintf(out, "\n%s iron fly, expiring %s\n", p.Symbol, p.Expiration)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  short call\t%.2f\tcredit\t%.2f\n", p.ShortCallStrike, p.ShortCallPremium)
	fmt.Fprintf(w, "  short put\t%.2f\tcredit\t%.2f\n", p.ShortPutStrike, p.ShortPutPremium)
	fmt.Fprintf(w, "  long call\t%.2f\tdebit\t%.2f\n", p.LongCallStrike, p.LongCallPremium)
	fmt.Fprintf(w, "  long put\t%.2f\tdebit\t%.2f\n", p.LongPutStrike, p.LongPutPremium)
	_ = w.Flush()
	fmt.Fprintf(out, "  net credit %.2f, max profit %.2f, max risk %.2f, breakevens %.2f / %.2f\n",
		p.NetCredit, p.MaxProfit, p.MaxRisk, p.LowerBreakeven, p.UpperBreakeven)
	if p.RiskReward != nil {
		fmt.Fprintf(out, "  risk/reward %.2f\n", *p.RiskReward)
	}
}
