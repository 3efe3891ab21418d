package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"crypto-pattern-bot/internal/indicators"
	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/patterns"
)

func (c *cli) newPatternsCmd() *cobra.Command {
	var (
		symbol   string
		interval string
		limit    int
		mock     bool
		last     int
	)

	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Print patterns detected in the latest klines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bc := c.cfg.BacktestConfig
			symbol = strings.ToUpper(firstNonEmpty(symbol, bc.Symbol))
			interval = firstNonEmpty(interval, bc.Interval)
			if limit <= 0 {
				limit = bc.Limit
			}

			bars, err := c.fetch(mock, symbol, interval, limit)
			if err != nil {
				return err
			}
			series, err := indicators.Compute(bars)
			if err != nil {
				return fmt.Errorf("failed to compute indicators: %w", err)
			}

			levels := market.LiquidityLevelsFromBars(bars)
			detected := patterns.CalculatePatternProbability(patterns.DetectPatterns(series, levels), nil)
			if last > 0 && len(detected) > last {
				detected = detected[len(detected)-last:]
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s: %d bars, %d liquidity levels, %d patterns\n",
				symbol, interval, len(bars), len(levels), len(detected))
			if len(detected) == 0 {
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tKIND\tTYPE\tPRICE\tSTRENGTH\tPROBABILITY\tLEVEL")
			for _, p := range detected {
				level := "-"
				if p.Level != 0 {
					level = fmt.Sprintf("%.4f", p.Level)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.1f\t%.2f\t%s\n",
					p.Timestamp.UTC().Format("2006-01-02 15:04"), p.Kind, p.Type, p.Price, p.Strength, p.Probability, level)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "Trading pair, e.g. BTCUSDT")
	cmd.Flags().StringVar(&interval, "interval", "", "Kline interval, e.g. 1h")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of klines to fetch (max 1000)")
	cmd.Flags().BoolVar(&mock, "mock", false, "Use simulated klines instead of the Binance API")
	cmd.Flags().IntVar(&last, "last", 0, "Only print the last N patterns")
	return cmd
}
