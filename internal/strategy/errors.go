package strategy

import "errors"

var (
	// ErrZeroRiskDistance is returned when the entry price equals the stop
	// loss, so no position can be sized against it
	ErrZeroRiskDistance = errors.New("zero risk distance between entry and stop loss")

	// ErrInvalidBalance is returned when sizing against a non-positive balance
	ErrInvalidBalance = errors.New("balance must be positive")
)
