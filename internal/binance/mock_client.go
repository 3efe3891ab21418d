package binance

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/metrics"
)

// basePrices seeds the simulated walk with realistic price levels
var basePrices = map[string]float64{
	"BTCUSDT":  104500.00,
	"ETHUSDT":  3900.00,
	"BNBUSDT":  710.00,
	"SOLUSDT":  220.00,
	"XRPUSDT":  2.35,
	"ADAUSDT":  1.05,
	"DOGEUSDT": 0.40,
	"AVAXUSDT": 50.00,
	"LINKUSDT": 28.00,
	"LTCUSDT":  115.00,
}

// MockClient provides simulated market data for offline runs and tests.
// The same seed, symbol, interval and limit always produce the same
// prices and volumes.
type MockClient struct {
	seed    int64
	now     func() time.Time
	metrics *metrics.Registry
}

// NewMockClient creates a mock client
func NewMockClient(seed int64) *MockClient {
	return &MockClient{
		seed: seed,
		now:  time.Now,
	}
}

// WithClock pins the end of the generated series, making timestamps
// reproducible as well
func (mc *MockClient) WithClock(now func() time.Time) *MockClient {
	mc.now = now
	return mc
}

// WithMetrics attaches a Prometheus registry to the client
func (mc *MockClient) WithMetrics(m *metrics.Registry) *MockClient {
	mc.metrics = m
	return mc
}

// GetKlines returns simulated candlestick data ending at the current
// interval boundary
func (mc *MockClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	limit, err := validateRequest(symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	intervalDuration, _ := IntervalDuration(interval)

	basePrice, ok := basePrices[symbol]
	if !ok {
		basePrice = 100.0
	}

	rng := rand.New(rand.NewSource(mc.seed ^ symbolHash(symbol, interval)))
	end := mc.now().UTC().Truncate(intervalDuration)
	klines := make([]Kline, limit)

	// Generate historical klines working forwards from the oldest bar
	currentPrice := basePrice
	for i := 0; i < limit; i++ {
		openTime := end.Add(-time.Duration(limit-i) * intervalDuration)
		closeTime := openTime.Add(intervalDuration - time.Millisecond)

		volatility := 0.02
		open := currentPrice
		change := (rng.Float64() - 0.5) * volatility * 2
		close := open * (1 + change)

		high := math.Max(open, close) * (1 + rng.Float64()*volatility*0.5)
		low := math.Min(open, close) * (1 - rng.Float64()*volatility*0.5)

		volume := 1000 + rng.Float64()*5000
		// occasional volume spikes give the series liquidity levels
		if rng.Float64() < 0.05 {
			volume *= 3
		}

		klines[i] = Kline{
			OpenTime:                 openTime.UnixMilli(),
			Open:                     open,
			High:                     high,
			Low:                      low,
			Close:                    close,
			Volume:                   volume,
			CloseTime:                closeTime.UnixMilli(),
			QuoteAssetVolume:         volume * close,
			NumberOfTrades:           int(100 + rng.Float64()*1000),
			TakerBuyBaseAssetVolume:  volume * 0.5,
			TakerBuyQuoteAssetVolume: volume * close * 0.5,
		}

		currentPrice = close
	}

	mc.metrics.RecordMarketRequest("mock", "ok")
	return klines, nil
}

// GetBars returns simulated bars. It implements market.Source.
func (mc *MockClient) GetBars(ctx context.Context, symbol, interval string, limit int) ([]market.Bar, error) {
	klines, err := mc.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	return ToBars(klines), nil
}

func symbolHash(symbol, interval string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte{0})
	h.Write([]byte(interval))
	return int64(h.Sum64())
}
