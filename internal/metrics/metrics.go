// Package metrics holds the Prometheus collectors shared by the API, the
// backtest engine and the market data clients.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every collector exported by the service
type Registry struct {
	// Backtest metrics
	BacktestRuns     *prometheus.CounterVec
	BacktestDuration prometheus.Histogram
	BacktestTrades   *prometheus.CounterVec
	SignalsGenerated *prometheus.CounterVec

	// Market data metrics
	MarketRequests *prometheus.CounterVec
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewRegistry creates the collectors and registers them with reg. Passing
// prometheus.NewRegistry() keeps tests isolated from the global registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		BacktestRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_backtest_runs_total",
				Help: "Backtest runs by outcome",
			},
			[]string{"status"},
		),
		BacktestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pattern_backtest_duration_seconds",
				Help:    "Wall time of a backtest run",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		BacktestTrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_backtest_trades_total",
				Help: "Closed backtest trades by exit reason",
			},
			[]string{"result"},
		),
		SignalsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_signals_total",
				Help: "Trade signals produced by pattern type",
			},
			[]string{"type"},
		),
		MarketRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_market_requests_total",
				Help: "Market data requests by source and status",
			},
			[]string{"source", "status"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_cache_hits_total",
				Help: "Cache hits by cache type",
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_cache_misses_total",
				Help: "Cache misses by cache type",
			},
			[]string{"cache"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pattern_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		r.BacktestRuns,
		r.BacktestDuration,
		r.BacktestTrades,
		r.SignalsGenerated,
		r.MarketRequests,
		r.CacheHits,
		r.CacheMisses,
		r.HTTPRequests,
		r.HTTPDuration,
	)

	return r
}

// ObserveBacktest records one finished run. Safe on a nil registry.
func (r *Registry) ObserveBacktest(status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.BacktestRuns.WithLabelValues(status).Inc()
	r.BacktestDuration.Observe(elapsed.Seconds())
}

// RecordTrade counts a closed trade. Safe on a nil registry.
func (r *Registry) RecordTrade(result string) {
	if r == nil {
		return
	}
	r.BacktestTrades.WithLabelValues(result).Inc()
}

// RecordSignal counts a generated signal. Safe on a nil registry.
func (r *Registry) RecordSignal(patternType string) {
	if r == nil {
		return
	}
	r.SignalsGenerated.WithLabelValues(patternType).Inc()
}

// RecordMarketRequest counts a market data request. Safe on a nil registry.
func (r *Registry) RecordMarketRequest(source, status string) {
	if r == nil {
		return
	}
	r.MarketRequests.WithLabelValues(source, status).Inc()
}

// RecordCache counts a cache lookup. Safe on a nil registry.
func (r *Registry) RecordCache(cache string, hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.CacheHits.WithLabelValues(cache).Inc()
	} else {
		r.CacheMisses.WithLabelValues(cache).Inc()
	}
}

// ObserveHTTP records one served request. Safe on a nil registry.
func (r *Registry) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequests.WithLabelValues(method, route, status).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
