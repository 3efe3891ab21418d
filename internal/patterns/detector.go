// Package patterns scans an indicator series for candlestick shapes,
// break-and-retest setups around pivots, and sweeps of liquidity levels.
package patterns

import (
	"crypto-pattern-bot/internal/indicators"
	"crypto-pattern-bot/internal/market"
)

// PatternDetector holds the ratios that define each candlestick shape
type PatternDetector struct {
	dojiBodyRatio   float64 // body below this fraction of the average range is a doji
	longWickRatio   float64 // long wick is at least this many bodies
	shortWickRatio  float64 // short wick is under this fraction of the body
	starBodyRatio   float64 // star middle body below this fraction of the average body
	breakoutPercent float64 // close-through distance that counts as a breakout
	breakoutWindow  int     // bars after a pivot searched for a breakout
	retestWindow    int     // bars after a breakout searched for a retest
	pivotGap        int     // bars after a pivot before a breakout may start
}

// NewPatternDetector creates a detector with the standard thresholds
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{
		dojiBodyRatio:   0.1,
		longWickRatio:   2.0,
		shortWickRatio:  0.3,
		starBodyRatio:   0.3,
		breakoutPercent: 0.005,
		breakoutWindow:  20,
		retestWindow:    15,
		pivotGap:        3,
	}
}

var defaultDetector = NewPatternDetector()

// DetectPatterns runs the candlestick, break-and-retest and liquidity sweep
// passes over series and returns their results in that order. Overlapping
// detections across passes are kept.
func DetectPatterns(series *indicators.Series, levels []market.LiquidityLevel) []Pattern {
	return defaultDetector.DetectPatterns(series, levels)
}

// DetectPatterns runs every detection pass
func (pd *PatternDetector) DetectPatterns(series *indicators.Series, levels []market.LiquidityLevel) []Pattern {
	if series == nil || series.Len() == 0 {
		return nil
	}

	var patterns []Pattern
	patterns = append(patterns, pd.DetectCandlestickPatterns(series.Bars)...)
	patterns = append(patterns, pd.DetectBreakRetestPatterns(series)...)
	patterns = append(patterns, pd.DetectLiquiditySweeps(series.Bars, levels)...)
	return patterns
}
