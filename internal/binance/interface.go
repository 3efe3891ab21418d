package binance

import (
	"context"
	"errors"

	"crypto-pattern-bot/internal/market"
)

var (
	// ErrInvalidInterval is returned for interval strings Binance does not serve
	ErrInvalidInterval = errors.New("invalid kline interval")

	// ErrInvalidSymbol is returned when no symbol is given
	ErrInvalidSymbol = errors.New("symbol is required")
)

// MaxKlineLimit is the largest page the klines endpoint returns
const MaxKlineLimit = 1000

// KlineSource defines the kline operations shared by the REST and mock clients
type KlineSource interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	GetBars(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error)
}

// Ensure both Client and MockClient implement KlineSource and market.Source
var (
	_ KlineSource   = (*Client)(nil)
	_ KlineSource   = (*MockClient)(nil)
	_ market.Source = (*Client)(nil)
	_ market.Source = (*MockClient)(nil)
)

// validateRequest checks the arguments shared by every kline request and
// clamps limit into [1, MaxKlineLimit]
func validateRequest(symbol, interval string, limit int) (int, error) {
	if symbol == "" {
		return 0, ErrInvalidSymbol
	}
	if _, err := IntervalDuration(interval); err != nil {
		return 0, err
	}
	if limit <= 0 {
		limit = 500
	}
	return min(limit, MaxKlineLimit), nil
}
