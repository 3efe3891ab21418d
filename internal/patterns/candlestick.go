package patterns

import (
	"crypto-pattern-bot/internal/market"
)

// DetectCandlestickPatterns checks every bar from the fourth onward against
// each candlestick shape. Average body and range are taken over the whole
// input, and a bar may match several shapes.
func (pd *PatternDetector) DetectCandlestickPatterns(bars []market.Bar) []Pattern {
	var patterns []Pattern

	if len(bars) < 4 {
		return patterns
	}

	avgBody, avgRange := averageBodyAndRange(bars)

	for i := 3; i < len(bars); i++ {
		c1, c2, c3 := bars[i-2], bars[i-1], bars[i]

		add := func(t PatternType) {
			patterns = append(patterns, NewCandlestickPattern(t, c3, i))
		}

		// Single candle
		if pd.isDoji(c3, avgRange) {
			add(Doji)
		}
		if pd.isHammer(c3, avgRange) {
			add(HammerBullish)
		}
		if pd.isInvertedHammer(c3, avgRange) {
			add(InvertedHammerBullish)
		}
		if pd.isShootingStar(c3, avgRange) {
			add(ShootingStar)
		}
		if pd.isHangingMan(c3, avgRange) {
			add(HangingMan)
		}

		// Two candle
		if pd.isBullishEngulfing(c2, c3) {
			add(EngulfingBullish)
		}
		if pd.isBearishEngulfing(c2, c3) {
			add(EngulfingBearish)
		}

		// Three candle
		if pd.isMorningStar(c1, c2, c3, avgBody) {
			add(MorningStar)
		}
		if pd.isEveningStar(c1, c2, c3, avgBody) {
			add(EveningStar)
		}
		if pd.isThreeWhiteSoldiers(c1, c2, c3) {
			add(ThreeWhiteSoldiers)
		}
		if pd.isThreeBlackCrows(c1, c2, c3) {
			add(ThreeBlackCrows)
		}
	}

	return patterns
}

func averageBodyAndRange(bars []market.Bar) (avgBody, avgRange float64) {
	for _, b := range bars {
		avgBody += b.Body()
		avgRange += b.Range()
	}
	n := float64(len(bars))
	return avgBody / n, avgRange / n
}

func (pd *PatternDetector) isDoji(c market.Bar, avgRange float64) bool {
	return c.Body() < pd.dojiBodyRatio*avgRange
}

func (pd *PatternDetector) hasSignificantBody(c market.Bar, avgRange float64) bool {
	return c.Body() > pd.dojiBodyRatio*avgRange
}

// isHammer: bullish body, lower wick reaching two bodies below the open,
// almost no upper wick
func (pd *PatternDetector) isHammer(c market.Bar, avgRange float64) bool {
	body := c.Body()
	return c.IsBullish() &&
		pd.hasSignificantBody(c, avgRange) &&
		c.Low < c.Open-pd.longWickRatio*body &&
		c.UpperWick() < pd.shortWickRatio*body
}

func (pd *PatternDetector) isInvertedHammer(c market.Bar, avgRange float64) bool {
	body := c.Body()
	return c.IsBullish() &&
		pd.hasSignificantBody(c, avgRange) &&
		c.High > c.Close+pd.longWickRatio*body &&
		c.LowerWick() < pd.shortWickRatio*body
}

func (pd *PatternDetector) isShootingStar(c market.Bar, avgRange float64) bool {
	body := c.Body()
	return c.IsBearish() &&
		pd.hasSignificantBody(c, avgRange) &&
		c.High > c.Open+pd.longWickRatio*body &&
		c.LowerWick() < pd.shortWickRatio*body
}

func (pd *PatternDetector) isHangingMan(c market.Bar, avgRange float64) bool {
	body := c.Body()
	return c.IsBearish() &&
		pd.hasSignificantBody(c, avgRange) &&
		c.Low < c.Close-pd.longWickRatio*body &&
		c.UpperWick() < pd.shortWickRatio*body
}

func (pd *PatternDetector) isBullishEngulfing(prev, c market.Bar) bool {
	return prev.IsBearish() && c.IsBullish() &&
		c.Open < prev.Close &&
		c.Close > prev.Open
}

func (pd *PatternDetector) isBearishEngulfing(prev, c market.Bar) bool {
	return prev.IsBullish() && c.IsBearish() &&
		c.Open > prev.Close &&
		c.Close < prev.Open
}

// isMorningStar: bearish candle, small star, bullish candle closing above
// the first candle's midpoint
func (pd *PatternDetector) isMorningStar(c1, c2, c3 market.Bar, avgBody float64) bool {
	return c1.IsBearish() &&
		c2.Body() < pd.starBodyRatio*avgBody &&
		c3.IsBullish() &&
		c3.Close > (c1.Open+c1.Close)/2
}

func (pd *PatternDetector) isEveningStar(c1, c2, c3 market.Bar, avgBody float64) bool {
	return c1.IsBullish() &&
		c2.Body() < pd.starBodyRatio*avgBody &&
		c3.IsBearish() &&
		c3.Close < (c1.Open+c1.Close)/2
}

func (pd *PatternDetector) isThreeWhiteSoldiers(c1, c2, c3 market.Bar) bool {
	return c1.IsBullish() && c2.IsBullish() && c3.IsBullish() &&
		c2.Close > c1.Close && c3.Close > c2.Close &&
		c2.Open > c1.Open && c3.Open > c2.Open
}

func (pd *PatternDetector) isThreeBlackCrows(c1, c2, c3 market.Bar) bool {
	return c1.IsBearish() && c2.IsBearish() && c3.IsBearish() &&
		c2.Close < c1.Close && c3.Close < c2.Close &&
		c2.Open < c1.Open && c3.Open < c2.Open
}

// DirectionOf returns the bias a candlestick type implies, or "" for doji
func DirectionOf(t PatternType) Direction {
	switch t {
	case HammerBullish, InvertedHammerBullish, EngulfingBullish, MorningStar, ThreeWhiteSoldiers:
		return Bullish
	case ShootingStar, HangingMan, EngulfingBearish, EveningStar, ThreeBlackCrows:
		return Bearish
	}
	return ""
}
