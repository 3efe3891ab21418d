package strategy

import (
	"fmt"
	"math"
)

// RewardMultiple is the fixed reward-to-risk extension used for targets
const RewardMultiple = 2.0

// PositionSize returns the quantity whose loss at stopLoss equals
// riskPercentage percent of balance. A zero distance between entry and stop
// returns ErrZeroRiskDistance.
func PositionSize(balance, riskPercentage, entry, stopLoss float64) (float64, error) {
	if balance <= 0 {
		return 0, fmt.Errorf("%w: %.2f", ErrInvalidBalance, balance)
	}
	risk := math.Abs(entry - stopLoss)
	if risk == 0 || math.IsNaN(risk) {
		return 0, ErrZeroRiskDistance
	}
	return balance * (riskPercentage / 100) / risk, nil
}

// TakeProfit extends the stop distance RewardMultiple times beyond entry in
// the trade's direction
func TakeProfit(buy bool, entry, stopLoss float64) float64 {
	risk := math.Abs(entry - stopLoss)
	if buy {
		return entry + risk*RewardMultiple
	}
	return entry - risk*RewardMultiple
}

// RiskReward returns reward over risk for a trade, or 0 when there is no
// risk distance
func RiskReward(entry, stopLoss, takeProfit float64) float64 {
	risk := math.Abs(entry - stopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / risk
}
