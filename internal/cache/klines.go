package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/metrics"
)

// PrefixKlines formats the cache key of a bar request
const PrefixKlines = "klines:%s:%s:%d"

// DefaultKlineTTL keeps fetched bars for one minute
const DefaultKlineTTL = time.Minute

// KlinesKey generates the cache key for a bar request
func KlinesKey(symbol, interval string, limit int) string {
	return fmt.Sprintf(PrefixKlines, symbol, interval, limit)
}

// CachedSource is a read-through cache in front of a market.Source. Cache
// failures fall through to the source and never fail a request.
type CachedSource struct {
	store   Store
	source  market.Source
	ttl     time.Duration
	metrics *metrics.Registry
	logger  *logging.Logger
}

var _ market.Source = (*CachedSource)(nil)

// NewCachedSource wraps source. A zero ttl uses DefaultKlineTTL.
func NewCachedSource(store Store, source market.Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultKlineTTL
	}
	return &CachedSource{
		store:  store,
		source: source,
		ttl:    ttl,
		logger: logging.WithComponent("cache"),
	}
}

// WithMetrics attaches a Prometheus registry
func (c *CachedSource) WithMetrics(m *metrics.Registry) *CachedSource {
	c.metrics = m
	return c
}

// GetBars returns cached bars when present and fetches and stores them
// otherwise. Empty results are not cached.
func (c *CachedSource) GetBars(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error) {
	key := KlinesKey(symbol, interval, limit)

	if data, err := c.store.Get(ctx, key); err == nil {
		var bars []market.Bar
		if err := json.Unmarshal([]byte(data), &bars); err == nil {
			c.metrics.RecordCache("klines", true)
			return bars, nil
		}
		logging.CacheContext("get", key).Warn("Discarding undecodable cache entry")
	} else if !errors.Is(err, ErrCacheMiss) {
		logging.CacheContext("get", key).WithError(err).Debug("Cache read failed")
	}
	c.metrics.RecordCache("klines", false)

	bars, err := c.source.GetBars(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	if err := c.store.Set(ctx, key, bars, c.ttl); err != nil {
		logging.CacheContext("set", key).WithError(err).Debug("Cache write failed")
	}
	return bars, nil
}
