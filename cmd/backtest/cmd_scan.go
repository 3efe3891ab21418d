package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/scanner"
	"crypto-pattern-bot/internal/strategy"
)

func (c *cli) newScanCmd() *cobra.Command {
	var (
		symbols      []string
		interval     string
		limit        int
		workers      int
		mock         bool
		withBacktest bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan several symbols for signals and optionally backtest each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bc := c.cfg.BacktestConfig
			sc := c.cfg.ScannerConfig
			if len(symbols) == 0 {
				symbols = sc.Symbols
			}
			if workers <= 0 {
				workers = sc.WorkerCount
			}
			if limit <= 0 {
				limit = bc.Limit
			}

			src := c.cfg.BinanceConfig
			if mock {
				src.MockMode = true
			}

			bt := backtest.DefaultConfig()
			bt.InitialBalance = bc.InitialBalance
			bt.CommissionRate = bc.CommissionRate
			bt.RiskPercentage = bc.RiskPercentage
			bt.WarmupBars = bc.WarmupBars
			bt.SignalWindow = bc.SignalWindow

			s := scanner.NewScanner(c.newSource(src), scanner.Config{
				Interval:     firstNonEmpty(interval, bc.Interval),
				Limit:        limit,
				WorkerCount:  workers,
				Timeout:      time.Duration(sc.Timeout) * time.Second,
				WithBacktest: withBacktest,
				Backtest:     bt,
				Strategy: strategy.Config{
					RiskPercentage: c.cfg.StrategyConfig.RiskPercentage,
					MaxSignalAge:   time.Duration(c.cfg.StrategyConfig.MaxSignalAge) * time.Second,
				},
			})

			result, err := s.Scan(context.Background(), symbols)
			if err != nil {
				return err
			}
			printScan(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Comma separated trading pairs (default: scanner.symbols from config)")
	cmd.Flags().StringVar(&interval, "interval", "", "Kline interval, e.g. 1h")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of klines per symbol (max 1000)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent symbol workers")
	cmd.Flags().BoolVar(&mock, "mock", false, "Use simulated klines instead of the Binance API")
	cmd.Flags().BoolVar(&withBacktest, "backtest", false, "Backtest each symbol over the fetched klines")
	return cmd
}

func printScan(cmd *cobra.Command, result *scanner.ScanResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %d symbols in %s\n", result.SymbolsScanned, result.Duration.Round(time.Millisecond))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tBARS\tPATTERNS\tSIGNAL\tPRICE\tSTOP\tTRADES\tP/L %\tSTATUS")
	for _, r := range result.Results {
		signal, price, stop := "-", "-", "-"
		if r.Signal != nil {
			signal = fmt.Sprintf("%s %s", r.Signal.Signal, r.Signal.Type)
			price = fmt.Sprintf("%.4f", r.Signal.Price)
			stop = fmt.Sprintf("%.4f", r.Signal.StopLoss)
		}
		trades, pl := "-", "-"
		if r.Backtest != nil {
			trades = fmt.Sprintf("%d", r.Backtest.TotalTrades)
			pl = fmt.Sprintf("%.2f", r.Backtest.ProfitLossPercent)
		}
		status := "ok"
		if r.Error != "" {
			status = strings.ReplaceAll(r.Error, "\t", " ")
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Symbol, r.Bars, r.Patterns, signal, price, stop, trades, pl, status)
	}
	tw.Flush()
}
