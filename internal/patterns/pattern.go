package patterns

import (
	"errors"
	"fmt"
	"math"
	"time"

	"crypto-pattern-bot/internal/market"
)

// ErrInvalidPattern is returned by Validate when a pattern breaks its
// family's field contract
var ErrInvalidPattern = errors.New("invalid pattern")

// Kind identifies a pattern family
type Kind string

const (
	KindCandlestick    Kind = "candlestick"
	KindBreakRetest    Kind = "break_retest"
	KindLiquiditySweep Kind = "liquidity_sweep"
)

// PatternType represents a concrete pattern
type PatternType string

const (
	// Candlestick patterns
	Doji                  PatternType = "doji"
	HammerBullish         PatternType = "hammer_bullish"
	InvertedHammerBullish PatternType = "inverted_hammer_bullish"
	ShootingStar          PatternType = "shooting_star"
	HangingMan            PatternType = "hanging_man"
	EngulfingBullish      PatternType = "engulfing_bullish"
	EngulfingBearish      PatternType = "engulfing_bearish"
	MorningStar           PatternType = "morning_star"
	EveningStar           PatternType = "evening_star"
	ThreeWhiteSoldiers    PatternType = "three_white_soldiers"
	ThreeBlackCrows       PatternType = "three_black_crows"

	// Level patterns
	ResistanceBreakRetest PatternType = "resistance_break_retest"
	SupportBreakRetest    PatternType = "support_break_retest"
	LiquiditySweep        PatternType = "liquidity_sweep"
)

// Direction is the bias of a pattern
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Signal is the trade side a pattern suggests
type Signal string

const (
	Buy  Signal = "buy"
	Sell Signal = "sell"
)

// Outcome records how a historical pattern played out
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

const (
	breakRetestStrength  = 4.0
	liquiditySweepBase   = 3.0
	minCandlestickWeight = 1.0
	maxCandlestickWeight = 5.0
)

var candlestickStrength = map[PatternType]float64{
	Doji:                  1,
	HammerBullish:         2,
	InvertedHammerBullish: 2,
	ShootingStar:          3,
	HangingMan:            3,
	EngulfingBullish:      4,
	EngulfingBearish:      4,
	MorningStar:           5,
	EveningStar:           5,
	ThreeWhiteSoldiers:    5,
	ThreeBlackCrows:       5,
}

// Pattern is a detected pattern. Timestamp, Index, Price and Strength are
// set for every family. Subtype and Level belong to level patterns; Signal
// and StopLoss are set only on patterns produced by the signal scans.
type Pattern struct {
	Kind      Kind        `json:"kind"`
	Type      PatternType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Index     int         `json:"candle_idx"`
	Price     float64     `json:"price"`
	Strength  float64     `json:"strength"`

	Subtype       Direction `json:"subtype,omitempty"`
	Level         float64   `json:"level,omitempty"`
	BreakoutIndex int       `json:"breakout_idx,omitempty"`
	StopLoss      float64   `json:"stop_loss,omitempty"`
	Signal        Signal    `json:"signal,omitempty"`
	Probability   float64   `json:"probability,omitempty"`
	Outcome       Outcome   `json:"outcome,omitempty"`
}

// NewCandlestickPattern builds a candlestick pattern at bar idx with the
// fixed weight of its type
func NewCandlestickPattern(t PatternType, bar market.Bar, idx int) Pattern {
	return Pattern{
		Kind:      KindCandlestick,
		Type:      t,
		Timestamp: bar.Timestamp,
		Index:     idx,
		Price:     bar.Close,
		Strength:  candlestickStrength[t],
	}
}

// NewBreakRetestPattern builds a confirmed break-and-retest of level, where
// idx is the retest bar
func NewBreakRetestPattern(t PatternType, subtype Direction, bar market.Bar, idx, breakoutIdx int, level float64) Pattern {
	return Pattern{
		Kind:          KindBreakRetest,
		Type:          t,
		Timestamp:     bar.Timestamp,
		Index:         idx,
		Price:         bar.Close,
		Strength:      breakRetestStrength,
		Subtype:       subtype,
		Level:         level,
		BreakoutIndex: breakoutIdx,
	}
}

// NewLiquiditySweepPattern builds a sweep of level at bar idx. Strength is
// 3 plus half the level's strength.
func NewLiquiditySweepPattern(subtype Direction, bar market.Bar, idx int, level market.LiquidityLevel) Pattern {
	return Pattern{
		Kind:      KindLiquiditySweep,
		Type:      LiquiditySweep,
		Timestamp: bar.Timestamp,
		Index:     idx,
		Price:     bar.Close,
		Strength:  liquiditySweepBase + math.Max(level.Strength, 0)/2,
		Subtype:   subtype,
		Level:     level.Price,
	}
}

// WithSignal returns a copy of p carrying a trade side and stop loss
func (p Pattern) WithSignal(signal Signal, stopLoss float64) Pattern {
	p.Signal = signal
	p.StopLoss = stopLoss
	return p
}

// IsActionable reports whether the pattern carries a trade side
func (p Pattern) IsActionable() bool {
	return p.Signal != ""
}

// Validate checks the field contract of p's family
func (p Pattern) Validate() error {
	if p.Timestamp.IsZero() {
		return fmt.Errorf("%w: %s has no timestamp", ErrInvalidPattern, p.Type)
	}

	switch p.Kind {
	case KindCandlestick:
		want, ok := candlestickStrength[p.Type]
		if !ok {
			return fmt.Errorf("%w: %s is not a candlestick type", ErrInvalidPattern, p.Type)
		}
		if p.Strength != want || p.Strength < minCandlestickWeight || p.Strength > maxCandlestickWeight {
			return fmt.Errorf("%w: %s strength %.2f", ErrInvalidPattern, p.Type, p.Strength)
		}
		if p.Subtype != "" || p.Level != 0 || p.IsActionable() {
			return fmt.Errorf("%w: candlestick %s carries level fields", ErrInvalidPattern, p.Type)
		}

	case KindBreakRetest:
		if p.Type != ResistanceBreakRetest && p.Type != SupportBreakRetest {
			return fmt.Errorf("%w: %s is not a break-retest type", ErrInvalidPattern, p.Type)
		}
		if p.Subtype != Bullish && p.Subtype != Bearish {
			return fmt.Errorf("%w: %s missing subtype", ErrInvalidPattern, p.Type)
		}
		if p.Level <= 0 {
			return fmt.Errorf("%w: %s missing level", ErrInvalidPattern, p.Type)
		}

	case KindLiquiditySweep:
		if p.Type != LiquiditySweep {
			return fmt.Errorf("%w: %s is not a liquidity sweep type", ErrInvalidPattern, p.Type)
		}
		if p.Subtype != Bullish && p.Subtype != Bearish {
			return fmt.Errorf("%w: %s missing subtype", ErrInvalidPattern, p.Type)
		}
		if p.Strength < liquiditySweepBase {
			return fmt.Errorf("%w: sweep strength %.2f below %.0f", ErrInvalidPattern, p.Strength, liquiditySweepBase)
		}

	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPattern, p.Kind)
	}

	if p.IsActionable() {
		if p.Signal != Buy && p.Signal != Sell {
			return fmt.Errorf("%w: unknown signal %q", ErrInvalidPattern, p.Signal)
		}
		if math.IsNaN(p.StopLoss) || math.IsInf(p.StopLoss, 0) {
			return fmt.Errorf("%w: %s stop loss not finite", ErrInvalidPattern, p.Type)
		}
	}
	return nil
}
