package backtest

import (
	"time"

	"crypto-pattern-bot/internal/patterns"
)

// PositionType is the direction of a position
type PositionType string

const (
	Long  PositionType = "long"
	Short PositionType = "short"
)

// Exit reasons recorded on closed trades
const (
	ExitStopLoss    = "stop_loss"
	ExitTakeProfit  = "take_profit"
	ExitEndOfPeriod = "end_of_period"
)

// Trade is a closed round trip. Profit is gross of commission; Commission
// covers both the entry and the exit fill.
type Trade struct {
	EntryDate  time.Time            `json:"entry_date"`
	ExitDate   time.Time            `json:"exit_date"`
	EntryPrice float64              `json:"entry_price"`
	ExitPrice  float64              `json:"exit_price"`
	Type       PositionType         `json:"type"`
	Size       float64              `json:"size"`
	Profit     float64              `json:"profit"`
	Commission float64              `json:"commission"`
	Result     string               `json:"result"`
	Pattern    patterns.PatternType `json:"pattern,omitempty"`
}

// NetProfit returns profit after commission
func (t Trade) NetProfit() float64 {
	return t.Profit - t.Commission
}

// HoldingTime returns how long the position was open
func (t Trade) HoldingTime() time.Duration {
	return t.ExitDate.Sub(t.EntryDate)
}

// position is the single open position tracked by the engine
type position struct {
	typ             PositionType
	entryDate       time.Time
	entryPrice      float64
	stopLoss        float64
	takeProfit      float64
	size            float64
	entryCommission float64
	pattern         patterns.PatternType
}

// markToMarket returns the account value with the position valued at price
func (p *position) markToMarket(balance, price float64) float64 {
	if p == nil {
		return balance
	}
	if p.typ == Long {
		return balance + p.size*price
	}
	return balance + p.size*(p.entryPrice-price)
}

// checkExit tests the close against the stop first, then the target. The
// exit is filled at the level that was crossed.
func (p *position) checkExit(close float64) (float64, string, bool) {
	switch p.typ {
	case Long:
		if close <= p.stopLoss {
			return p.stopLoss, ExitStopLoss, true
		}
		if close >= p.takeProfit {
			return p.takeProfit, ExitTakeProfit, true
		}
	case Short:
		if close >= p.stopLoss {
			return p.stopLoss, ExitStopLoss, true
		}
		if close <= p.takeProfit {
			return p.takeProfit, ExitTakeProfit, true
		}
	}
	return 0, "", false
}

// profit returns the gross profit of closing at price
func (p *position) profit(price float64) float64 {
	if p.typ == Long {
		return p.size * (price - p.entryPrice)
	}
	return p.size * (p.entryPrice - price)
}
