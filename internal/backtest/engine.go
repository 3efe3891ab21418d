// Package backtest replays a bar series through a signal generator with a
// single-position state machine and reduces the closed trades into
// performance metrics.
package backtest

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/metrics"
	"crypto-pattern-bot/internal/strategy"
)

// Config holds the parameters of a single run
type Config struct {
	InitialBalance float64 // Starting cash
	CommissionRate float64 // Fraction of notional charged per fill
	RiskPercentage float64 // Percent of balance risked per trade
	WarmupBars     int     // Bars skipped before the first signal check
	SignalWindow   int     // Trailing bars handed to the signal generator

	// DisableSameBarReentry stops a new position from opening on the bar
	// that closed the previous one
	DisableSameBarReentry bool
}

// DefaultConfig returns the standard run parameters
func DefaultConfig() Config {
	return Config{
		InitialBalance: 10000.0,
		CommissionRate: 0.001,
		RiskPercentage: 2.0,
		WarmupBars:     50,
		SignalWindow:   30,
	}
}

// Validate checks the config for values the engine cannot run with
func (c Config) Validate() error {
	if c.InitialBalance <= 0 {
		return fmt.Errorf("%w: initial balance must be positive, got %.2f", ErrInvalidConfig, c.InitialBalance)
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("%w: commission rate must be in [0, 1), got %f", ErrInvalidConfig, c.CommissionRate)
	}
	if c.RiskPercentage <= 0 || c.RiskPercentage > 100 {
		return fmt.Errorf("%w: risk percentage must be in (0, 100], got %.2f", ErrInvalidConfig, c.RiskPercentage)
	}
	if c.WarmupBars < 0 {
		return fmt.Errorf("%w: warmup bars must not be negative", ErrInvalidConfig)
	}
	if c.SignalWindow <= 0 {
		return fmt.Errorf("%w: signal window must be positive", ErrInvalidConfig)
	}
	return nil
}

// SignalGenerator produces at most one trade signal for the trailing window
// of bars. Levels are limited to those formed before the window's last bar.
type SignalGenerator interface {
	GenerateSignal(window []market.Bar, levels []market.LiquidityLevel, balance float64) (*strategy.TradeSignal, error)
}

// Engine runs backtests. An Engine holds no per-run state and may be reused.
type Engine struct {
	config    Config
	generator SignalGenerator
	metrics   *metrics.Registry
	logger    *logging.Logger
}

// NewEngine creates an engine. Zero balance, risk, warmup and window fields
// take their defaults; a nil generator uses the pattern strategy.
func NewEngine(config Config, generator SignalGenerator) *Engine {
	def := DefaultConfig()
	if config.InitialBalance == 0 {
		config.InitialBalance = def.InitialBalance
	}
	if config.RiskPercentage == 0 {
		config.RiskPercentage = def.RiskPercentage
	}
	if config.WarmupBars == 0 {
		config.WarmupBars = def.WarmupBars
	}
	if config.SignalWindow == 0 {
		config.SignalWindow = def.SignalWindow
	}
	if generator == nil {
		generator = strategy.NewPatternStrategy(strategy.DefaultConfig())
	}
	return &Engine{
		config:    config,
		generator: generator,
		logger:    logging.WithComponent("backtest"),
	}
}

// WithMetrics attaches a Prometheus registry to the engine
func (e *Engine) WithMetrics(m *metrics.Registry) *Engine {
	e.metrics = m
	return e
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.config
}

// RunBacktest runs the pattern strategy over bars with default risk
// settings and the given balance and commission
func RunBacktest(bars []market.Bar, levels []market.LiquidityLevel, initialBalance, commissionRate float64) (*Result, error) {
	config := DefaultConfig()
	config.InitialBalance = initialBalance
	config.CommissionRate = commissionRate
	return NewEngine(config, nil).Run(bars, levels)
}

// Run walks bars from the end of the warm-up period, recording one equity
// point per bar, closing the open position on a stop or target cross and
// opening a new one when the generator returns a signal that can be sized
// and afforded. A position still open after the last bar is closed at its
// close.
func (e *Engine) Run(bars []market.Bar, levels []market.LiquidityLevel) (*Result, error) {
	start := time.Now()
	result, err := e.run(bars, levels)
	if err != nil {
		e.metrics.ObserveBacktest("error", time.Since(start))
		return nil, err
	}
	e.metrics.ObserveBacktest("ok", time.Since(start))
	return result, nil
}

func (e *Engine) run(bars []market.Bar, levels []market.LiquidityLevel) (*Result, error) {
	if len(bars) == 0 {
		return nil, ErrEmptyInput
	}
	if err := e.config.Validate(); err != nil {
		return nil, err
	}
	for i, bar := range bars {
		if err := bar.Validate(); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
	}

	logger := logging.BacktestContext("", bars[0].Timestamp, bars[len(bars)-1].Timestamp)

	result := &Result{
		ID:             uuid.NewString(),
		InitialBalance: e.config.InitialBalance,
		Trades:         make([]Trade, 0),
		EquityCurve:    make([]EquityPoint, 0, max(len(bars)-e.config.WarmupBars, 0)),
		CreatedAt:      time.Now().UTC(),
	}

	if len(bars) <= e.config.WarmupBars {
		result.InsufficientData = true
		logger.Warn("Not enough bars for warm-up", "bars", len(bars), "warmup", e.config.WarmupBars)
	}

	balance := e.config.InitialBalance
	var open *position

	for i := e.config.WarmupBars; i < len(bars); i++ {
		bar := bars[i]
		price := bar.Close

		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Date:   bar.Timestamp,
			Equity: open.markToMarket(balance, price),
		})
		result.BarsProcessed++

		closedThisBar := false
		if open != nil {
			if exitPrice, reason, ok := open.checkExit(price); ok {
				trade := e.closePosition(open, bar.Timestamp, exitPrice, reason, &balance)
				result.Trades = append(result.Trades, trade)
				open = nil
				closedThisBar = true
			}
		}

		if open != nil || (closedThisBar && e.config.DisableSameBarReentry) {
			continue
		}

		window := bars[max(0, i+1-e.config.SignalWindow) : i+1]
		signal, err := e.generator.GenerateSignal(window, market.LevelsBefore(levels, bar.Timestamp), balance)
		if err != nil {
			return nil, fmt.Errorf("signal generation failed at bar %d: %w", i, err)
		}
		if signal == nil {
			continue
		}
		e.metrics.RecordSignal(string(signal.Type))

		open = e.openPosition(signal, bar, &balance)
		if open != nil {
			logger.Debug("Position opened",
				"type", open.typ,
				"price", open.entryPrice,
				"stop_loss", open.stopLoss,
				"take_profit", open.takeProfit,
				"size", open.size,
			)
		}
	}

	if open != nil {
		last := bars[len(bars)-1]
		trade := e.closePosition(open, last.Timestamp, last.Close, ExitEndOfPeriod, &balance)
		result.Trades = append(result.Trades, trade)
	}

	result.FinalBalance = balance
	result.ProfitLoss = balance - result.InitialBalance
	result.ProfitLossPercent = result.ProfitLoss / result.InitialBalance * 100
	result.Metrics = ComputeMetrics(result.Trades, result.InitialBalance, result.FinalBalance, result.EquityCurve)

	logger.Info("Backtest complete",
		"bars", result.BarsProcessed,
		"trades", result.Metrics.TotalTrades,
		"final_balance", result.FinalBalance,
	)
	return result, nil
}

// openPosition sizes the signal against the current close and debits the
// entry. It returns nil when the signal cannot be sized or afforded.
func (e *Engine) openPosition(signal *strategy.TradeSignal, bar market.Bar, balance *float64) *position {
	if signal.PositionSize <= 0 {
		return nil
	}
	price := bar.Close
	size, err := strategy.PositionSize(*balance, e.config.RiskPercentage, price, signal.StopLoss)
	if err != nil || size <= 0 {
		return nil
	}
	cost := size * price
	if cost*(1+e.config.CommissionRate) > *balance {
		e.logger.Debug("Signal skipped, insufficient balance", "cost", cost, "balance", *balance)
		return nil
	}

	p := &position{
		typ:             Long,
		entryDate:       bar.Timestamp,
		entryPrice:      price,
		stopLoss:        signal.StopLoss,
		takeProfit:      signal.TakeProfit,
		size:            size,
		entryCommission: cost * e.config.CommissionRate,
		pattern:         signal.Type,
	}
	if signal.IsBuy() {
		*balance -= cost + p.entryCommission
	} else {
		p.typ = Short
		*balance -= p.entryCommission
	}
	return p
}

// closePosition credits the exit to balance and returns the closed trade
func (e *Engine) closePosition(p *position, date time.Time, price float64, reason string, balance *float64) Trade {
	profit := p.profit(price)
	exitCommission := p.size * price * e.config.CommissionRate
	if p.typ == Long {
		*balance += p.size*p.entryPrice + profit - exitCommission
	} else {
		*balance += profit - exitCommission
	}

	e.metrics.RecordTrade(reason)
	return Trade{
		EntryDate:  p.entryDate,
		ExitDate:   date,
		EntryPrice: p.entryPrice,
		ExitPrice:  price,
		Type:       p.typ,
		Size:       p.size,
		Profit:     profit,
		Commission: p.entryCommission + exitCommission,
		Result:     reason,
		Pattern:    p.pattern,
	}
}
