package binance

import (
	"time"

	"crypto-pattern-bot/config"
	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/metrics"
)

// NewSource returns the mock client in mock mode and the REST client
// otherwise
func NewSource(cfg config.BinanceConfig, m *metrics.Registry) KlineSource {
	if cfg.MockMode {
		logging.WithComponent("binance").Info("Using simulated market data", "seed", cfg.MockSeed)
		return NewMockClient(cfg.MockSeed).WithMetrics(m)
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	return NewClient(cfg.BaseURL, cfg.RequestsPerSecond, timeout).WithMetrics(m)
}
