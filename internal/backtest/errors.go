package backtest

import "errors"

var (
	// ErrEmptyInput is returned when a backtest is started without any bars
	ErrEmptyInput = errors.New("no bars to backtest")

	// ErrSerialization wraps failures saving or loading a result
	ErrSerialization = errors.New("backtest result serialization failed")

	// ErrInvalidConfig is returned by Config.Validate
	ErrInvalidConfig = errors.New("invalid backtest config")
)
