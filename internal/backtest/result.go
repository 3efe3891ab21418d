package backtest

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"time"
)

// EquityPoint is the marked account value at a bar
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// Result is the outcome of one backtest run
type Result struct {
	ID                string             `json:"id"`
	Symbol            string             `json:"symbol,omitempty"`
	Interval          string             `json:"interval,omitempty"`
	InitialBalance    float64            `json:"initial_balance"`
	FinalBalance      float64            `json:"final_balance"`
	ProfitLoss        float64            `json:"profit_loss"`
	ProfitLossPercent float64            `json:"profit_loss_percent"`
	Trades            []Trade            `json:"trades"`
	Metrics           PerformanceMetrics `json:"metrics"`
	EquityCurve       []EquityPoint      `json:"equity_curve"`
	InsufficientData  bool               `json:"insufficient_data"`
	BarsProcessed     int                `json:"bars_processed"`
	CreatedAt         time.Time          `json:"created_at"`
}

// Equity replays the equity curve in bar order. The sequence can be
// iterated any number of times.
func (r *Result) Equity() iter.Seq[EquityPoint] {
	return func(yield func(EquityPoint) bool) {
		for _, p := range r.EquityCurve {
			if !yield(p) {
				return
			}
		}
	}
}

// RecomputeMetrics rebuilds Metrics from the stored trades and curve
func (r *Result) RecomputeMetrics() PerformanceMetrics {
	r.Metrics = ComputeMetrics(r.Trades, r.InitialBalance, r.FinalBalance, r.EquityCurve)
	return r.Metrics
}

// Encode writes r as indented JSON
func Encode(w io.Writer, r *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return nil
}

// Decode reads a result written by Encode
func Decode(rd io.Reader) (*Result, error) {
	var r Result
	if err := json.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if r.Trades == nil {
		r.Trades = make([]Trade, 0)
	}
	if r.EquityCurve == nil {
		r.EquityCurve = make([]EquityPoint, 0)
	}
	return &r, nil
}

// SaveResult writes r to path as JSON
func SaveResult(path string, r *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	if err := Encode(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return nil
}

// LoadResult reads a result saved by SaveResult
func LoadResult(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	defer f.Close()
	return Decode(f)
}

// PrintResults writes a human readable summary of r to w
func PrintResults(w io.Writer, r *Result) {
	m := r.Metrics
	fmt.Fprintln(w, "\n=== BACKTEST RESULTS ===")
	if r.Symbol != "" {
		fmt.Fprintf(w, "Symbol: %s %s\n", r.Symbol, r.Interval)
	}
	if r.InsufficientData {
		fmt.Fprintln(w, "Insufficient data: no bars past the warm-up period")
	}
	fmt.Fprintf(w, "Initial Balance: $%.2f\n", r.InitialBalance)
	fmt.Fprintf(w, "Final Balance: $%.2f\n", r.FinalBalance)
	fmt.Fprintf(w, "Profit/Loss: $%.2f (%.2f%%)\n", r.ProfitLoss, r.ProfitLossPercent)
	fmt.Fprintf(w, "Total Trades: %d\n", m.TotalTrades)
	fmt.Fprintf(w, "Winning Trades: %d (%.1f%%)\n", m.WinningTrades, m.WinRate*100)
	fmt.Fprintf(w, "Losing Trades: %d\n", m.LosingTrades)
	fmt.Fprintf(w, "Profit Factor: %.2f\n", float64(m.ProfitFactor))
	fmt.Fprintf(w, "Max Drawdown: %.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "Average Win: $%.2f\n", m.AverageProfit)
	fmt.Fprintf(w, "Average Loss: $%.2f\n", m.AverageLoss)
	fmt.Fprintf(w, "Sharpe Ratio: %.2f\n", m.SharpeRatio)
	fmt.Fprintf(w, "Avg Holding Time: %.1fh\n", m.AvgHoldingTime)

	stats := PatternStats(r.Trades)
	if len(stats) == 0 {
		return
	}
	fmt.Fprintln(w, "\n=== PATTERN PERFORMANCE ===")
	for _, s := range stats {
		fmt.Fprintf(w, "%s: %d trades, %.1f%% win rate, Net: $%.2f\n",
			s.PatternType, s.TotalTrades, s.WinRate, s.NetProfit)
	}
}
