// Package indicators augments a bar series with the technical indicators and
// pivot levels the pattern detector works from.
package indicators

import (
	"fmt"
	"math"

	"crypto-pattern-bot/internal/market"

	"github.com/markcheno/go-talib"
)

const (
	EMAFastPeriod   = 20
	EMAMidPeriod    = 50
	EMASlowPeriod   = 100
	RSIPeriod       = 14
	BBPeriod        = 20
	BBDeviation     = 2.0
	MACDFastPeriod  = 12
	MACDSlowPeriod  = 26
	MACDSignalPer   = 9
	ATRPeriod       = 14
	VolumeSMAPeriod = 20

	// PivotWindow is the number of bars compared on each side of a pivot
	PivotWindow = 10
)

// Series is a bar sequence with per-bar indicator columns. Every column has
// len(Bars) entries; NaN marks a value that is not available for that bar.
type Series struct {
	Bars []market.Bar

	EMA20  []float64
	EMA50  []float64
	EMA100 []float64
	RSI    []float64

	BBUpper  []float64
	BBMiddle []float64
	BBLower  []float64

	MACD       []float64
	MACDSignal []float64
	MACDHist   []float64

	ATR       []float64
	VolumeSMA []float64

	// Support and Resistance are sparse: NaN except at pivot bars
	Support    []float64
	Resistance []float64
}

// Len returns the number of bars in the series
func (s *Series) Len() int {
	return len(s.Bars)
}

// SupportAt returns the support level at bar i, if bar i is a pivot low
func (s *Series) SupportAt(i int) (float64, bool) {
	return valueAt(s.Support, i)
}

// ResistanceAt returns the resistance level at bar i, if bar i is a pivot high
func (s *Series) ResistanceAt(i int) (float64, bool) {
	return valueAt(s.Resistance, i)
}

// ATRAt returns the ATR at bar i, or 0 while ATR is still warming up
func (s *Series) ATRAt(i int) float64 {
	if v, ok := valueAt(s.ATR, i); ok {
		return v
	}
	return 0
}

// Last returns the final bar of the series
func (s *Series) Last() (market.Bar, bool) {
	if len(s.Bars) == 0 {
		return market.Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

func valueAt(col []float64, i int) (float64, bool) {
	if i < 0 || i >= len(col) || math.IsNaN(col[i]) {
		return 0, false
	}
	return col[i], true
}

// Compute derives every indicator column for bars. It never mutates its
// input and returns the same result for the same bars. An empty input yields
// an empty series.
func Compute(bars []market.Bar) (*Series, error) {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
	}

	n := len(bars)
	s := &Series{Bars: append([]market.Bar(nil), bars...)}
	if n == 0 {
		return s, nil
	}

	closes := market.Closes(bars)
	highs := market.Highs(bars)
	lows := market.Lows(bars)
	volumes := market.Volumes(bars)

	// ========================================================================
	// MOVING AVERAGES
	// ========================================================================
	s.EMA20 = ema(closes, EMAFastPeriod)
	s.EMA50 = ema(closes, EMAMidPeriod)
	s.EMA100 = ema(closes, EMASlowPeriod)
	s.VolumeSMA = sma(volumes, VolumeSMAPeriod)

	// ========================================================================
	// OSCILLATORS
	// ========================================================================
	s.RSI = nanSeries(n)
	if n > RSIPeriod {
		s.RSI = maskWarmup(talib.Rsi(closes, RSIPeriod), RSIPeriod)
	}

	macdLookback := MACDSlowPeriod - 1 + MACDSignalPer - 1
	s.MACD, s.MACDSignal, s.MACDHist = nanSeries(n), nanSeries(n), nanSeries(n)
	if n > macdLookback {
		macd, signal, hist := talib.Macd(closes, MACDFastPeriod, MACDSlowPeriod, MACDSignalPer)
		s.MACD = maskWarmup(macd, macdLookback)
		s.MACDSignal = maskWarmup(signal, macdLookback)
		s.MACDHist = maskWarmup(hist, macdLookback)
	}

	// ========================================================================
	// VOLATILITY
	// ========================================================================
	s.BBUpper, s.BBMiddle, s.BBLower = nanSeries(n), nanSeries(n), nanSeries(n)
	if n >= BBPeriod {
		upper, middle, lower := talib.BBands(closes, BBPeriod, BBDeviation, BBDeviation, talib.SMA)
		s.BBUpper = maskWarmup(upper, BBPeriod-1)
		s.BBMiddle = maskWarmup(middle, BBPeriod-1)
		s.BBLower = maskWarmup(lower, BBPeriod-1)
	}

	s.ATR = nanSeries(n)
	if n > ATRPeriod {
		s.ATR = maskWarmup(talib.Atr(highs, lows, closes, ATRPeriod), ATRPeriod)
	}

	// ========================================================================
	// PIVOTS
	// ========================================================================
	s.Support, s.Resistance = FindPivots(highs, lows, PivotWindow)

	return s, nil
}

// FindPivots marks bar i as support when its low is <= every low within
// window bars on both sides, and as resistance when its high is >= every
// high in the same span. Bars closer than window to either end are never
// marked. A bar that would qualify as both (a flat span) is marked as
// neither.
func FindPivots(highs, lows []float64, window int) (support, resistance []float64) {
	n := len(lows)
	support = nanSeries(n)
	resistance = nanSeries(n)

	for i := window; i < n-window; i++ {
		isLow, isHigh := true, true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if lows[j] < lows[i] {
				isLow = false
			}
			if highs[j] > highs[i] {
				isHigh = false
			}
			if !isLow && !isHigh {
				break
			}
		}
		if isLow && isHigh {
			continue
		}
		if isLow {
			support[i] = lows[i]
		}
		if isHigh {
			resistance[i] = highs[i]
		}
	}
	return support, resistance
}

func ema(in []float64, period int) []float64 {
	if len(in) < period {
		return nanSeries(len(in))
	}
	return maskWarmup(talib.Ema(in, period), period-1)
}

func sma(in []float64, period int) []float64 {
	if len(in) < period {
		return nanSeries(len(in))
	}
	return maskWarmup(talib.Sma(in, period), period-1)
}

// maskWarmup replaces the first lookback slots, which talib leaves at zero,
// with NaN
func maskWarmup(values []float64, lookback int) []float64 {
	for i := 0; i < lookback && i < len(values); i++ {
		values[i] = math.NaN()
	}
	return values
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
