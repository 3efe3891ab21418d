package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/market"
)

type runOptions struct {
	symbol     string
	interval   string
	limit      int
	balance    float64
	commission float64
	risk       float64
	mock       bool
	outPath    string
	csvPath    string
	period     string
}

func (c *cli) newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch klines and run a backtest",
		Long: `Fetch klines for a symbol, run the pattern strategy over them and print
the results. Unset flags take their values from the configuration file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBacktest(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "Trading pair, e.g. BTCUSDT")
	cmd.Flags().StringVar(&opts.interval, "interval", "", "Kline interval, e.g. 1h")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Number of klines to fetch (max 1000)")
	cmd.Flags().Float64Var(&opts.balance, "balance", 0, "Initial balance")
	cmd.Flags().Float64Var(&opts.commission, "commission", 0, "Commission rate per fill, e.g. 0.001")
	cmd.Flags().Float64Var(&opts.risk, "risk", 0, "Percent of balance risked per trade")
	cmd.Flags().BoolVar(&opts.mock, "mock", false, "Use simulated klines instead of the Binance API")
	cmd.Flags().StringVar(&opts.outPath, "out", "", "Save the result as JSON to this path")
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "Export trades as CSV to this path")
	cmd.Flags().StringVar(&opts.period, "period", "", "Also print stats by period: day, week or month")
	return cmd
}

func (c *cli) runBacktest(cmd *cobra.Command, opts *runOptions) error {
	bc := c.cfg.BacktestConfig
	symbol := strings.ToUpper(firstNonEmpty(opts.symbol, bc.Symbol))
	interval := firstNonEmpty(opts.interval, bc.Interval)

	engineCfg := backtest.DefaultConfig()
	engineCfg.InitialBalance = bc.InitialBalance
	engineCfg.CommissionRate = bc.CommissionRate
	engineCfg.RiskPercentage = bc.RiskPercentage
	engineCfg.WarmupBars = bc.WarmupBars
	engineCfg.SignalWindow = bc.SignalWindow
	limit := bc.Limit

	if opts.limit > 0 {
		limit = opts.limit
	}
	if opts.balance > 0 {
		engineCfg.InitialBalance = opts.balance
	}
	if cmd.Flags().Changed("commission") {
		engineCfg.CommissionRate = opts.commission
	}
	if opts.risk > 0 {
		engineCfg.RiskPercentage = opts.risk
	}

	var period backtest.Period
	if opts.period != "" {
		p, err := backtest.ParsePeriod(opts.period)
		if err != nil {
			return err
		}
		period = p
	}

	bars, err := c.fetch(opts.mock, symbol, interval, limit)
	if err != nil {
		return err
	}

	result, err := backtest.NewEngine(engineCfg, nil).Run(bars, market.LiquidityLevelsFromBars(bars))
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}
	result.Symbol = symbol
	result.Interval = interval

	out := cmd.OutOrStdout()
	backtest.PrintResults(out, result)
	if period != "" {
		printPeriodStats(out, result.Trades, period)
	}

	if opts.outPath != "" {
		if err := backtest.SaveResult(opts.outPath, result); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nResult saved to %s\n", opts.outPath)
	}
	if opts.csvPath != "" {
		if err := writeCSV(opts.csvPath, result.Trades); err != nil {
			return err
		}
		fmt.Fprintf(out, "Trades exported to %s\n", opts.csvPath)
	}
	return nil
}

func writeCSV(path string, trades []backtest.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := backtest.WriteTradesCSV(f, trades); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printPeriodStats(w io.Writer, trades []backtest.Trade, period backtest.Period) {
	fmt.Fprintf(w, "\n=== STATS BY %s ===\n", strings.ToUpper(string(period)))
	stats := backtest.StatsByPeriod(trades, period)
	if len(stats) == 0 {
		fmt.Fprintln(w, "No trades")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tTRADES\tLONG\tSHORT\tWIN RATE\tPROFIT\tAVG")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.1f%%\t%.2f\t%.2f\n",
			s.Period, s.TradeCount, s.LongCount, s.ShortCount, s.WinRate*100, s.TotalProfit, s.AverageProfit)
	}
	tw.Flush()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
