// Command backtest runs pattern backtests, inspects saved results and
// prints detected patterns from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"crypto-pattern-bot/config"
	"crypto-pattern-bot/internal/binance"
	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/market"
)

const fetchTimeout = 60 * time.Second

// cli holds state shared by every subcommand
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config

	// newSource builds the bar source; tests replace it
	newSource func(cfg config.BinanceConfig) market.Source
}

func newCLI() *cli {
	return &cli{
		newSource: func(cfg config.BinanceConfig) market.Source {
			return binance.NewSource(cfg, nil)
		},
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "backtest",
		Short: "Crypto chart pattern backtester",
		Long: `backtest replays historical Binance klines through the pattern strategy
and reports trades, equity and performance metrics.

Examples:
  backtest run --symbol BTCUSDT --interval 1h --limit 500
  backtest run --mock --out result.json --csv trades.csv
  backtest show result.json --period week
  backtest patterns --symbol ETHUSDT --limit 200
  backtest scan --symbols BTCUSDT,ETHUSDT --backtest`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "config.json", "Path to configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")

	root.AddCommand(
		c.newRunCmd(),
		c.newShowCmd(),
		c.newPatternsCmd(),
		c.newScanCmd(),
		c.newTokenCmd(),
		c.newInitConfigCmd(),
	)
	return root
}

// setup loads configuration and routes logs to stderr so command output
// stays clean
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	c.cfg = cfg

	level := cfg.LoggingConfig.Level
	if c.logLevel != "" {
		level = c.logLevel
	}
	logging.SetDefault(logging.NewWithWriter(&logging.Config{
		Level:     level,
		Component: "cli",
	}, cmd.ErrOrStderr()))
	return nil
}

// fetch loads bars from the configured source, forcing mock mode when asked
func (c *cli) fetch(mock bool, symbol, interval string, limit int) ([]market.Bar, error) {
	bc := c.cfg.BinanceConfig
	if mock {
		bc.MockMode = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	bars, err := c.newSource(bc).GetBars(ctx, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines: %w", err)
	}
	return bars, nil
}

func main() {
	if err := newCLI().rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
