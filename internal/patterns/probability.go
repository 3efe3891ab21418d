package patterns

import "math"

const (
	baseProbability = 0.3
	maxProbability  = 0.7
)

// StrengthProbability is the prior used when no history exists for a type
func StrengthProbability(strength float64) float64 {
	return math.Min(baseProbability+strength/10, maxProbability)
}

// CalculatePatternProbability returns a copy of patterns with Probability
// set. With no history every pattern gets its strength prior. Otherwise each
// type gets its empirical success rate among historical patterns that carry
// an outcome, and types never seen with an outcome keep the strength prior.
func CalculatePatternProbability(patterns, history []Pattern) []Pattern {
	if len(patterns) == 0 {
		return nil
	}

	out := make([]Pattern, len(patterns))
	copy(out, patterns)

	rates := successRates(history)
	for i := range out {
		if rate, ok := rates[out[i].Type]; ok {
			out[i].Probability = rate
		} else {
			out[i].Probability = StrengthProbability(out[i].Strength)
		}
	}
	return out
}

func successRates(history []Pattern) map[PatternType]float64 {
	total := make(map[PatternType]int)
	wins := make(map[PatternType]int)
	for _, h := range history {
		if h.Outcome == "" {
			continue
		}
		total[h.Type]++
		if h.Outcome == OutcomeSuccess {
			wins[h.Type]++
		}
	}

	rates := make(map[PatternType]float64, len(total))
	for t, n := range total {
		rates[t] = float64(wins[t]) / float64(n)
	}
	return rates
}
