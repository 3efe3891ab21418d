package main

import (
	"github.com/spf13/cobra"

	"crypto-pattern-bot/internal/backtest"
)

func (c *cli) newShowCmd() *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "show <result.json>",
		Short: "Print a saved backtest result",
		Long: `Load a result saved with 'backtest run --out', recompute its metrics from
the stored trades and equity curve, and print it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p backtest.Period
			if period != "" {
				parsed, err := backtest.ParsePeriod(period)
				if err != nil {
					return err
				}
				p = parsed
			}

			result, err := backtest.LoadResult(args[0])
			if err != nil {
				return err
			}
			result.RecomputeMetrics()

			out := cmd.OutOrStdout()
			backtest.PrintResults(out, result)
			if p != "" {
				printPeriodStats(out, result.Trades, p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&period, "period", "", "Also print stats by period: day, week or month")
	return cmd
}
