// Package market holds the OHLCV and liquidity-level types shared by the
// indicator engine, the pattern detector and the backtester.
package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedBar is returned when a bar has impossible prices
var ErrMalformedBar = errors.New("malformed bar")

// Bar is one OHLCV observation
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Body returns the absolute candle body size
func (b Bar) Body() float64 {
	return math.Abs(b.Close - b.Open)
}

// Range returns high minus low
func (b Bar) Range() float64 {
	return b.High - b.Low
}

// UpperWick returns the distance from the top of the body to the high
func (b Bar) UpperWick() float64 {
	return b.High - math.Max(b.Open, b.Close)
}

// LowerWick returns the distance from the bottom of the body to the low
func (b Bar) LowerWick() float64 {
	return math.Min(b.Open, b.Close) - b.Low
}

// IsBullish reports whether the bar closed above its open
func (b Bar) IsBullish() bool {
	return b.Close > b.Open
}

// IsBearish reports whether the bar closed below its open
func (b Bar) IsBearish() bool {
	return b.Close < b.Open
}

// Validate checks that the bar's prices are finite, non-negative and consistent.
// Gaps between bars are tolerated and never checked here.
func (b Bar) Validate() error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at %s", ErrMalformedBar, b.Timestamp.Format(time.RFC3339))
		}
	}
	if b.Open < 0 || b.High < 0 || b.Low < 0 || b.Close < 0 {
		return fmt.Errorf("%w: negative price at %s", ErrMalformedBar, b.Timestamp.Format(time.RFC3339))
	}
	if b.High < b.Low {
		return fmt.Errorf("%w: high %.8f below low %.8f at %s", ErrMalformedBar, b.High, b.Low, b.Timestamp.Format(time.RFC3339))
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: negative volume at %s", ErrMalformedBar, b.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Closes extracts the close column
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high column
func Highs(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low column
func Lows(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volume column
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

// Source delivers a finite, time-ordered bar sequence for a symbol and
// interval. An empty slice means the source had nothing to give.
type Source interface {
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]Bar, error)
}
