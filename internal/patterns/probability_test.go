package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbabilityWithoutHistory(t *testing.T) {
	in := []Pattern{
		{Type: Doji, Strength: 1},
		{Type: EngulfingBullish, Strength: 4},
		{Type: LiquiditySweep, Strength: 6},
	}

	out := CalculatePatternProbability(in, nil)
	require.Len(t, out, 3)
	assert.InDelta(t, 0.4, out[0].Probability, 1e-9)
	assert.InDelta(t, 0.7, out[1].Probability, 1e-9)
	assert.InDelta(t, 0.7, out[2].Probability, 1e-9)
	assert.Zero(t, in[0].Probability)
}

func TestProbabilityFromHistory(t *testing.T) {
	history := []Pattern{
		{Type: Doji, Outcome: OutcomeSuccess},
		{Type: Doji, Outcome: OutcomeFailure},
		{Type: Doji, Outcome: OutcomeFailure},
		{Type: Doji, Outcome: OutcomeSuccess},
		{Type: Doji},
		{Type: MorningStar},
	}
	in := []Pattern{
		{Type: Doji, Strength: 1},
		{Type: MorningStar, Strength: 5},
	}

	out := CalculatePatternProbability(in, history)
	assert.InDelta(t, 0.5, out[0].Probability, 1e-9)
	// morning star history has no outcomes, so the strength prior applies
	assert.InDelta(t, 0.7, out[1].Probability, 1e-9)
}

func TestProbabilityEmptyInput(t *testing.T) {
	assert.Nil(t, CalculatePatternProbability(nil, nil))
}
