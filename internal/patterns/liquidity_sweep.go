package patterns

import (
	"crypto-pattern-bot/internal/indicators"
	"crypto-pattern-bot/internal/market"
)

// DetectLiquiditySweeps checks every bar from the fourth onward against
// every level. A bullish sweep has the previous low above the level, the
// current low below it and the close back above it. The bearish case
// mirrors it on highs.
func (pd *PatternDetector) DetectLiquiditySweeps(bars []market.Bar, levels []market.LiquidityLevel) []Pattern {
	var patterns []Pattern

	if len(bars) == 0 || len(levels) == 0 {
		return patterns
	}

	for i := 3; i < len(bars); i++ {
		prev, c := bars[i-1], bars[i]
		for _, level := range levels {
			price := level.Price
			switch {
			case prev.Low > price && c.Low < price && c.Close > price:
				patterns = append(patterns, NewLiquiditySweepPattern(Bullish, c, i, level))
			case prev.High < price && c.High > price && c.Close < price:
				patterns = append(patterns, NewLiquiditySweepPattern(Bearish, c, i, level))
			}
		}
	}

	return patterns
}

// ScanLiquiditySweepSignals is the sweep scan used for trade signals. A
// bullish sweep takes out a level lying between the current and previous
// lows and closes back above it; the stop sits one ATR under the sweep low.
// The bearish case mirrors it on highs.
func ScanLiquiditySweepSignals(series *indicators.Series, levels []market.LiquidityLevel) []Pattern {
	var patterns []Pattern

	if series.Len() == 0 || len(levels) == 0 {
		return patterns
	}

	bars := series.Bars
	for i := signalLookback; i < series.Len(); i++ {
		prev, c := bars[i-1], bars[i]
		atr := series.ATRAt(i)
		for _, level := range levels {
			price := level.Price
			switch {
			case c.Low < price && price < prev.Low && c.Close > price:
				p := NewLiquiditySweepPattern(Bullish, c, i, level)
				patterns = append(patterns, p.WithSignal(Buy, c.Low-atr))
			case c.High > price && price > prev.High && c.Close < price:
				p := NewLiquiditySweepPattern(Bearish, c, i, level)
				patterns = append(patterns, p.WithSignal(Sell, c.High+atr))
			}
		}
	}

	return patterns
}
