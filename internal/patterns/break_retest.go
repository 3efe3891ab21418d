package patterns

import (
	"crypto-pattern-bot/internal/indicators"
)

const signalLookback = 5

// DetectBreakRetestPatterns looks at every pivot in series. Starting three
// bars after the pivot, it searches up to the twentieth bar for a close at
// least 0.5% through the level, then up to 15 further bars for a bar that
// trades back into the level while closing on the breakout side. Only the
// first breakout of each level is examined, so a level yields at most one
// pattern.
func (pd *PatternDetector) DetectBreakRetestPatterns(series *indicators.Series) []Pattern {
	var patterns []Pattern
	n := series.Len()
	bars := series.Bars

	for idx := 0; idx < n; idx++ {
		if level, ok := series.ResistanceAt(idx); ok {
			breakout := pd.findBreakout(series, idx, func(close float64) bool {
				return close > level*(1+pd.breakoutPercent)
			})
			if breakout >= 0 {
				if j := pd.findRetest(series, breakout, level, func(close float64) bool { return close > level }); j >= 0 {
					patterns = append(patterns, NewBreakRetestPattern(ResistanceBreakRetest, Bullish, bars[j], j, breakout, level))
				}
			}
		}

		if level, ok := series.SupportAt(idx); ok {
			breakout := pd.findBreakout(series, idx, func(close float64) bool {
				return close < level*(1-pd.breakoutPercent)
			})
			if breakout >= 0 {
				if j := pd.findRetest(series, breakout, level, func(close float64) bool { return close < level }); j >= 0 {
					patterns = append(patterns, NewBreakRetestPattern(SupportBreakRetest, Bearish, bars[j], j, breakout, level))
				}
			}
		}
	}

	return patterns
}

func (pd *PatternDetector) findBreakout(series *indicators.Series, pivot int, through func(close float64) bool) int {
	end := min(pivot+pd.breakoutWindow, series.Len())
	for i := pivot + pd.pivotGap; i < end; i++ {
		if through(series.Bars[i].Close) {
			return i
		}
	}
	return -1
}

func (pd *PatternDetector) findRetest(series *indicators.Series, breakout int, level float64, holds func(close float64) bool) int {
	end := min(breakout+pd.retestWindow, series.Len())
	for j := breakout + 1; j < end; j++ {
		b := series.Bars[j]
		if b.Low <= level && level <= b.High && holds(b.Close) {
			return j
		}
	}
	return -1
}

// ScanBreakRetestSignals is the short-horizon break-and-retest scan used for
// trade signals. For each bar i it takes the pivot five bars back; if one of
// the closes at i-4..i-2 went through the level and bar i trades back into
// it, a pattern is emitted at i. A retested resistance is a buy with the
// stop one ATR below the previous low; a retested support is a sell with the
// stop one ATR above the previous high.
func ScanBreakRetestSignals(series *indicators.Series) []Pattern {
	var patterns []Pattern
	bars := series.Bars

	for i := signalLookback; i < series.Len(); i++ {
		pivot := i - signalLookback
		b := bars[i]
		atr := series.ATRAt(i)

		if level, ok := series.ResistanceAt(pivot); ok {
			if anyClose(series, pivot+1, i-1, func(c float64) bool { return c > level }) &&
				b.Low <= level && level <= b.High {
				p := NewBreakRetestPattern(ResistanceBreakRetest, Bullish, b, i, 0, level)
				patterns = append(patterns, p.WithSignal(Buy, bars[i-1].Low-atr))
			}
		}

		if level, ok := series.SupportAt(pivot); ok {
			if anyClose(series, pivot+1, i-1, func(c float64) bool { return c < level }) &&
				b.Low <= level && level <= b.High {
				p := NewBreakRetestPattern(SupportBreakRetest, Bearish, b, i, 0, level)
				patterns = append(patterns, p.WithSignal(Sell, bars[i-1].High+atr))
			}
		}
	}

	return patterns
}

// anyClose reports whether any close in [from, to) satisfies cond
func anyClose(series *indicators.Series, from, to int, cond func(float64) bool) bool {
	for k := from; k < to; k++ {
		if cond(series.Bars[k].Close) {
			return true
		}
	}
	return false
}
