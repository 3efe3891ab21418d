package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"crypto-pattern-bot/internal/logging"
)

// RequestGuard throttles REST calls with a token bucket and stops calling
// the API while it keeps failing
type RequestGuard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// GuardConfig configures a RequestGuard
type GuardConfig struct {
	RequestsPerSecond   float64
	Burst               int
	ConsecutiveFailures uint32        // Failures in a row that open the circuit
	OpenTimeout         time.Duration // Time the circuit stays open before probing
}

// DefaultGuardConfig stays well under Binance's 1200 weight per minute
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		RequestsPerSecond:   10,
		Burst:               5,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// NewRequestGuard creates a guard named for log output
func NewRequestGuard(name string, cfg GuardConfig) *RequestGuard {
	def := DefaultGuardConfig()
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = def.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = def.ConsecutiveFailures
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	logger := logging.WithComponent("binance")
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &RequestGuard{
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Do waits for a rate limit token and runs fn through the circuit breaker
func (g *RequestGuard) Do(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return g.breaker.Execute(fn)
}

// State returns the circuit breaker state name
func (g *RequestGuard) State() string {
	return g.breaker.State().String()
}
