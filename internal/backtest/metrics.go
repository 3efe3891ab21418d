package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// tradingDaysPerYear annualizes the Sharpe ratio of per-bar returns
const tradingDaysPerYear = 252

// InfFloat is a float64 whose infinities encode as the JSON strings
// "Infinity" and "-Infinity"
type InfFloat float64

// MarshalJSON implements json.Marshaler
func (f InfFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return nil, fmt.Errorf("cannot encode NaN")
	}
	return json.Marshal(v)
}

// UnmarshalJSON implements json.Unmarshaler
func (f *InfFloat) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "Infinity", "+Infinity", "inf":
			*f = InfFloat(math.Inf(1))
		case "-Infinity", "-inf":
			*f = InfFloat(math.Inf(-1))
		default:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("invalid float %q", s)
			}
			*f = InfFloat(v)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = InfFloat(v)
	return nil
}

// PerformanceMetrics summarizes a backtest. Rates and drawdown are
// fractions; holding time is in hours.
type PerformanceMetrics struct {
	TotalTrades      int      `json:"total_trades"`
	WinningTrades    int      `json:"winning_trades"`
	LosingTrades     int      `json:"losing_trades"`
	WinRate          float64  `json:"win_rate"`
	ProfitFactor     InfFloat `json:"profit_factor"`
	AverageProfit    float64  `json:"average_profit"`
	AverageLoss      float64  `json:"average_loss"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	SharpeRatio      float64  `json:"sharpe_ratio"`
	TotalProfit      float64  `json:"total_profit"`
	ReturnPercentage float64  `json:"return_percentage"`
	AvgHoldingTime   float64  `json:"avg_holding_time"`
}

// ComputeMetrics reduces closed trades and the equity curve into
// performance metrics. Trades with positive profit are winners, the rest
// losers; AverageLoss is therefore zero or negative.
func ComputeMetrics(trades []Trade, initialBalance, finalBalance float64, equityCurve []EquityPoint) PerformanceMetrics {
	m := PerformanceMetrics{
		TotalTrades: len(trades),
		MaxDrawdown: MaxDrawdown(equityCurve),
		SharpeRatio: SharpeRatio(equityCurve),
	}
	if initialBalance != 0 {
		m.ReturnPercentage = (finalBalance - initialBalance) / initialBalance * 100
	}
	if len(trades) == 0 {
		return m
	}

	var grossProfit, grossLoss float64
	var holding time.Duration
	for _, t := range trades {
		if t.Profit > 0 {
			m.WinningTrades++
			grossProfit += t.Profit
		} else {
			m.LosingTrades++
			grossLoss += t.Profit
		}
		holding += t.HoldingTime()
	}

	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageProfit = grossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = grossLoss / float64(m.LosingTrades)
	}
	m.TotalProfit = grossProfit + grossLoss
	m.ProfitFactor = profitFactor(grossProfit, math.Abs(grossLoss), m.WinningTrades, m.LosingTrades)
	m.AvgHoldingTime = holding.Hours() / float64(m.TotalTrades)

	return m
}

// profitFactor is +Inf only when every trade won. Losers that all broke
// even leave the factor finite but unbounded.
func profitFactor(grossProfit, grossLoss float64, winners, losers int) InfFloat {
	switch {
	case winners > 0 && losers == 0:
		return InfFloat(math.Inf(1))
	case grossLoss > 0:
		return InfFloat(grossProfit / grossLoss)
	case winners > 0:
		return InfFloat(math.MaxFloat64)
	}
	return 0
}

// MaxDrawdown returns the largest peak-to-trough decline of the curve as a
// fraction in [0, 1]. Points before the first positive peak are ignored.
func MaxDrawdown(curve []EquityPoint) float64 {
	maxDD := 0.0
	peak := math.Inf(-1)
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - p.Equity) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return math.Min(maxDD, 1)
}

// SharpeRatio returns the annualized mean over population standard
// deviation of per-point equity returns, assuming daily points. Returns
// from a zero equity are skipped.
func SharpeRatio(curve []EquityPoint) float64 {
	returns := make([]float64, 0, len(curve))
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}
