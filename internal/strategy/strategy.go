// Package strategy turns the most recent actionable pattern into a sized
// trade signal.
package strategy

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"crypto-pattern-bot/internal/indicators"
	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/patterns"
)

// TradeSignal is a directional trade proposal built from a single pattern
type TradeSignal struct {
	Type         patterns.PatternType `json:"type"`
	Signal       patterns.Signal      `json:"signal"`
	Price        float64              `json:"price"`
	StopLoss     float64              `json:"stop_loss"`
	TakeProfit   float64              `json:"take_profit"`
	PositionSize float64              `json:"position_size"`
	RiskReward   float64              `json:"risk_reward"`
	Date         time.Time            `json:"date"`
	Level        float64              `json:"level"`
}

// IsBuy reports whether the signal opens a long position
func (s *TradeSignal) IsBuy() bool {
	return s.Signal == patterns.Buy
}

// Config configures the pattern strategy
type Config struct {
	RiskPercentage float64       // Percent of balance risked per trade
	MaxSignalAge   time.Duration // Patterns older than this relative to the last bar are ignored
}

// DefaultConfig returns 1% risk and a three hour signal age limit
func DefaultConfig() Config {
	return Config{
		RiskPercentage: 1.0,
		MaxSignalAge:   3 * time.Hour,
	}
}

// PatternStrategy generates signals from break-and-retest and liquidity
// sweep setups. Candlestick patterns never produce signals.
type PatternStrategy struct {
	config Config
	logger *logging.Logger
}

// NewPatternStrategy creates a strategy, filling zero config fields with
// defaults
func NewPatternStrategy(config Config) *PatternStrategy {
	def := DefaultConfig()
	if config.RiskPercentage <= 0 {
		config.RiskPercentage = def.RiskPercentage
	}
	if config.MaxSignalAge <= 0 {
		config.MaxSignalAge = def.MaxSignalAge
	}
	return &PatternStrategy{
		config: config,
		logger: logging.WithComponent("strategy"),
	}
}

// Name returns the strategy name
func (s *PatternStrategy) Name() string {
	return fmt.Sprintf("PatternStrategy-%.1f%%", s.config.RiskPercentage)
}

// Config returns the effective configuration
func (s *PatternStrategy) Config() Config {
	return s.config
}

// GenerateTradeSignal returns a signal for the newest actionable pattern in
// series, or nil when there is none or it is older than MaxSignalAge
// relative to the last bar.
func (s *PatternStrategy) GenerateTradeSignal(series *indicators.Series, levels []market.LiquidityLevel, balance float64) *TradeSignal {
	last, ok := series.Last()
	if !ok {
		return nil
	}

	candidates := append(patterns.ScanBreakRetestSignals(series), patterns.ScanLiquiditySweepSignals(series, levels)...)
	if len(candidates) == 0 {
		return nil
	}

	// newest first; ties keep break-retest ahead of sweeps
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Timestamp.After(candidates[j].Timestamp)
	})
	latest := candidates[0]

	if last.Timestamp.Sub(latest.Timestamp) > s.config.MaxSignalAge {
		s.logger.Debug("Latest pattern is stale", "type", latest.Type, "age", last.Timestamp.Sub(latest.Timestamp).String())
		return nil
	}

	size, err := PositionSize(balance, s.config.RiskPercentage, latest.Price, latest.StopLoss)
	if err != nil {
		if !errors.Is(err, ErrZeroRiskDistance) && !errors.Is(err, ErrInvalidBalance) {
			s.logger.Warn("Position sizing failed", "error", err)
		}
		size = 0
	}

	buy := latest.Signal == patterns.Buy
	tp := TakeProfit(buy, latest.Price, latest.StopLoss)
	signal := &TradeSignal{
		Type:         latest.Type,
		Signal:       latest.Signal,
		Price:        latest.Price,
		StopLoss:     latest.StopLoss,
		TakeProfit:   tp,
		PositionSize: size,
		RiskReward:   RiskReward(latest.Price, latest.StopLoss, tp),
		Date:         latest.Timestamp,
		Level:        latest.Level,
	}

	s.logger.Debug("Trade signal generated",
		"type", signal.Type,
		"signal", signal.Signal,
		"price", signal.Price,
		"stop_loss", signal.StopLoss,
	)
	return signal
}

// GenerateSignal computes indicators over window and delegates to
// GenerateTradeSignal. It satisfies the backtest engine's signal source.
func (s *PatternStrategy) GenerateSignal(window []market.Bar, levels []market.LiquidityLevel, balance float64) (*TradeSignal, error) {
	if len(window) == 0 {
		return nil, nil
	}
	series, err := indicators.Compute(window)
	if err != nil {
		return nil, fmt.Errorf("failed to compute indicators: %w", err)
	}
	return s.GenerateTradeSignal(series, levels, balance), nil
}
