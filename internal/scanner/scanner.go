// Package scanner runs pattern detection, signal generation and optional
// backtests across many symbols with a bounded worker pool.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/indicators"
	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/metrics"
	"crypto-pattern-bot/internal/patterns"
	"crypto-pattern-bot/internal/strategy"
)

// Scanner orchestrates pattern scanning across multiple symbols
type Scanner struct {
	source     market.Source
	config     Config
	strategy   *strategy.PatternStrategy
	metrics    *metrics.Registry
	logger     *logging.Logger
	mu         sync.RWMutex
	lastResult *ScanResult
}

// NewScanner creates a new scanner. Zero config fields take their defaults.
func NewScanner(source market.Source, config Config) *Scanner {
	def := DefaultConfig()
	if config.Interval == "" {
		config.Interval = def.Interval
	}
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = def.WorkerCount
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Backtest.InitialBalance <= 0 {
		config.Backtest.InitialBalance = def.Backtest.InitialBalance
	}
	return &Scanner{
		source:   source,
		config:   config,
		strategy: strategy.NewPatternStrategy(config.Strategy),
		logger:   logging.WithComponent("scanner"),
	}
}

// WithMetrics attaches a Prometheus registry
func (sc *Scanner) WithMetrics(m *metrics.Registry) *Scanner {
	sc.metrics = m
	return sc
}

// Config returns the effective configuration
func (sc *Scanner) Config() Config {
	return sc.config
}

// Scan evaluates every symbol and returns the results ordered with
// signalling symbols first, then by backtest return, then by symbol.
// Per-symbol failures are reported in SymbolResult.Error; only a cancelled
// context fails the scan.
func (sc *Scanner) Scan(ctx context.Context, symbols []string) (*ScanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, sc.config.Timeout)
	defer cancel()

	startTime := time.Now()
	scanID := fmt.Sprintf("scan-%d", startTime.UnixNano())
	symbols = normalizeSymbols(symbols)

	sc.logger.Info("Starting scan", "scan_id", scanID, "symbols", len(symbols), "interval", sc.config.Interval)

	resultChan := make(chan SymbolResult, len(symbols))
	symbolChan := make(chan string)
	var wg sync.WaitGroup

	workers := min(sc.config.WorkerCount, max(len(symbols), 1))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go sc.worker(ctx, symbolChan, resultChan, &wg)
	}

	go func() {
		defer close(symbolChan)
		for _, symbol := range symbols {
			select {
			case symbolChan <- symbol:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]SymbolResult, 0, len(symbols))
	for result := range resultChan {
		results = append(results, result)
	}
	if err := ctx.Err(); err != nil && len(results) < len(symbols) {
		return nil, fmt.Errorf("scan %s interrupted: %w", scanID, err)
	}

	sortResults(results)

	scanResult := &ScanResult{
		ScanID:         scanID,
		StartTime:      startTime.UTC(),
		EndTime:        time.Now().UTC(),
		Duration:       time.Since(startTime),
		SymbolsScanned: len(symbols),
		Results:        results,
	}

	sc.mu.Lock()
	sc.lastResult = scanResult
	sc.mu.Unlock()

	sc.logger.Info("Scan completed", "scan_id", scanID, "duration", scanResult.Duration.String(), "symbols", len(symbols))
	return scanResult, nil
}

// worker processes symbols from the channel
func (sc *Scanner) worker(ctx context.Context, symbolChan <-chan string, resultChan chan<- SymbolResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for symbol := range symbolChan {
		if ctx.Err() != nil {
			return
		}
		resultChan <- sc.scanSymbol(ctx, symbol)
	}
}

// scanSymbol fetches bars for one symbol and evaluates them
func (sc *Scanner) scanSymbol(ctx context.Context, symbol string) SymbolResult {
	result := SymbolResult{Symbol: symbol, Interval: sc.config.Interval}

	bars, err := sc.source.GetBars(ctx, symbol, sc.config.Interval, sc.config.Limit)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Bars = len(bars)
	if len(bars) == 0 {
		result.Error = backtest.ErrEmptyInput.Error()
		return result
	}

	series, err := indicators.Compute(bars)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	levels := market.LiquidityLevelsFromBars(bars)
	result.Patterns = len(patterns.DetectPatterns(series, levels))

	result.Signal = sc.strategy.GenerateTradeSignal(series, levels, sc.config.Backtest.InitialBalance)
	if result.Signal != nil {
		sc.metrics.RecordSignal(string(result.Signal.Type))
		logging.SignalContext(symbol, string(result.Signal.Signal), result.Signal.Price).
			Info("Signal found", "pattern", result.Signal.Type, "stop_loss", result.Signal.StopLoss)
	}

	if sc.config.WithBacktest {
		r, err := backtest.NewEngine(sc.config.Backtest, nil).WithMetrics(sc.metrics).Run(bars, levels)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Backtest = &BacktestSnapshot{
			ID:                r.ID,
			FinalBalance:      r.FinalBalance,
			ProfitLossPercent: r.ProfitLossPercent,
			TotalTrades:       r.Metrics.TotalTrades,
			WinRate:           r.Metrics.WinRate,
			ProfitFactor:      r.Metrics.ProfitFactor,
			MaxDrawdown:       r.Metrics.MaxDrawdown,
			InsufficientData:  r.InsufficientData,
		}
	}
	return result
}

// GetLastResult returns the most recent scan result
func (sc *Scanner) GetLastResult() *ScanResult {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastResult
}

func sortResults(results []SymbolResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Error == "") != (b.Error == "") {
			return a.Error == ""
		}
		if (a.Signal != nil) != (b.Signal != nil) {
			return a.Signal != nil
		}
		if (a.Backtest != nil) != (b.Backtest != nil) {
			return a.Backtest != nil
		}
		if a.Backtest != nil && a.Backtest.ProfitLossPercent != b.Backtest.ProfitLossPercent {
			return a.Backtest.ProfitLossPercent > b.Backtest.ProfitLossPercent
		}
		return a.Symbol < b.Symbol
	})
}

// normalizeSymbols upper-cases, trims and de-duplicates symbols, keeping
// first-seen order
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
