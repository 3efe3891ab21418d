package scanner

import (
	"time"

	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/strategy"
)

// SymbolResult is the scan outcome for one symbol
type SymbolResult struct {
	Symbol   string                `json:"symbol"`
	Interval string                `json:"interval"`
	Bars     int                   `json:"bars"`
	Patterns int                   `json:"patterns"`
	Signal   *strategy.TradeSignal `json:"signal"`
	Backtest *BacktestSnapshot     `json:"backtest,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// BacktestSnapshot is the headline of a backtest run over the scanned bars
type BacktestSnapshot struct {
	ID                string            `json:"id"`
	FinalBalance      float64           `json:"final_balance"`
	ProfitLossPercent float64           `json:"profit_loss_percent"`
	TotalTrades       int               `json:"total_trades"`
	WinRate           float64           `json:"win_rate"`
	ProfitFactor      backtest.InfFloat `json:"profit_factor"`
	MaxDrawdown       float64           `json:"max_drawdown"`
	InsufficientData  bool              `json:"insufficient_data"`
}

// ScanResult aggregates the per-symbol results of one scan
type ScanResult struct {
	ScanID         string         `json:"scan_id"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	Duration       time.Duration  `json:"duration"`
	SymbolsScanned int            `json:"symbols_scanned"`
	Results        []SymbolResult `json:"results"`
}

// Config holds scanner configuration
type Config struct {
	Interval    string
	Limit       int
	WorkerCount int
	Timeout     time.Duration // Whole-scan deadline

	// WithBacktest runs a backtest over each symbol's bars
	WithBacktest bool
	Backtest     backtest.Config
	Strategy     strategy.Config
}

// DefaultConfig scans 1h bars with four workers
func DefaultConfig() Config {
	return Config{
		Interval:    "1h",
		Limit:       500,
		WorkerCount: 4,
		Timeout:     2 * time.Minute,
		Backtest:    backtest.DefaultConfig(),
		Strategy:    strategy.DefaultConfig(),
	}
}
