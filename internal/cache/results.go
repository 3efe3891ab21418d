package cache

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/metrics"
)

// PrefixBacktestResult formats the cache key of a stored result
const PrefixBacktestResult = "backtest:%s"

// DefaultResultTTL keeps results for a day
const DefaultResultTTL = 24 * time.Hour

// BacktestResultKey generates the cache key for a result id
func BacktestResultKey(id string) string {
	return fmt.Sprintf(PrefixBacktestResult, id)
}

// ResultCache stores backtest results by id
type ResultCache struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.Registry
}

// NewResultCache creates a result cache. A zero ttl uses DefaultResultTTL.
func NewResultCache(store Store, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultCache{store: store, ttl: ttl}
}

// WithMetrics attaches a Prometheus registry
func (rc *ResultCache) WithMetrics(m *metrics.Registry) *ResultCache {
	rc.metrics = m
	return rc
}

// Put stores r under its id
func (rc *ResultCache) Put(ctx context.Context, r *backtest.Result) error {
	if r.ID == "" {
		return fmt.Errorf("result has no id")
	}
	var buf bytes.Buffer
	if err := backtest.Encode(&buf, r); err != nil {
		return err
	}
	return rc.store.Set(ctx, BacktestResultKey(r.ID), buf.Bytes(), rc.ttl)
}

// Get loads the result stored under id. A missing result returns
// ErrCacheMiss.
func (rc *ResultCache) Get(ctx context.Context, id string) (*backtest.Result, error) {
	data, err := rc.store.Get(ctx, BacktestResultKey(id))
	if err != nil {
		rc.metrics.RecordCache("backtest", false)
		return nil, err
	}
	r, err := backtest.Decode(strings.NewReader(data))
	if err != nil {
		rc.metrics.RecordCache("backtest", false)
		return nil, err
	}
	rc.metrics.RecordCache("backtest", true)
	return r, nil
}

// Delete evicts the result stored under id
func (rc *ResultCache) Delete(ctx context.Context, id string) error {
	return rc.store.Delete(ctx, BacktestResultKey(id))
}
