package market

import (
	"sort"
	"time"
)

const (
	liquidityVolumeWindow = 10
	liquiditySpikeFactor  = 1.5
	maxLiquidityLevels    = 10
)

// LiquidityLevel is a price where unusually high volume traded
type LiquidityLevel struct {
	Price     float64   `json:"price"`
	Strength  float64   `json:"strength"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// LiquidityLevelsFromBars derives liquidity levels from relative volume.
// A bar whose volume exceeds 1.5x the rolling 10-bar volume mean (including
// itself) becomes a candidate at its close price. Candidates are ranked by
// volume over the mean volume of the whole series and the top 10 are kept.
func LiquidityLevelsFromBars(bars []Bar) []LiquidityLevel {
	if len(bars) < liquidityVolumeWindow {
		return nil
	}

	total := 0.0
	for _, b := range bars {
		total += b.Volume
	}
	meanVolume := total / float64(len(bars))
	if meanVolume <= 0 {
		return nil
	}

	var levels []LiquidityLevel
	windowSum := 0.0
	for i, b := range bars {
		windowSum += b.Volume
		if i >= liquidityVolumeWindow {
			windowSum -= bars[i-liquidityVolumeWindow].Volume
		}
		if i < liquidityVolumeWindow-1 {
			continue
		}

		rolling := windowSum / liquidityVolumeWindow
		if b.Volume > rolling*liquiditySpikeFactor {
			levels = append(levels, LiquidityLevel{
				Price:     b.Close,
				Strength:  b.Volume / meanVolume,
				Volume:    b.Volume,
				Timestamp: b.Timestamp,
			})
		}
	}

	sort.SliceStable(levels, func(i, j int) bool {
		return levels[i].Strength > levels[j].Strength
	})
	if len(levels) > maxLiquidityLevels {
		levels = levels[:maxLiquidityLevels]
	}
	return levels
}

// LevelsBefore returns the levels observed strictly before t
func LevelsBefore(levels []LiquidityLevel, t time.Time) []LiquidityLevel {
	out := make([]LiquidityLevel, 0, len(levels))
	for _, l := range levels {
		if l.Timestamp.Before(t) {
			out = append(out, l)
		}
	}
	return out
}
