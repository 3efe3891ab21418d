package binance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const klinesBody = `[
  [1704067200000, "100.5", "101.0", "99.5", "100.8", "1234.5", 1704070799999, "124000.1", 42, "600.2", "60000.3", "0"],
  [1704070800000, "100.8", "102.0", "100.1", "101.9", "999.0", 1704074399999, "101000.0", 17, "500.0", "50000.0", "0"]
]`

func TestClient_GetKlines(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, klinesBody)
	}))
	defer server.Close()

	client := NewClient(server.URL, 100, time.Second)
	klines, err := client.GetKlines(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "symbol=BTCUSDT")
	assert.Contains(t, gotQuery, "interval=1h")
	assert.Contains(t, gotQuery, "limit=2")

	require.Len(t, klines, 2)
	assert.Equal(t, int64(1704067200000), klines[0].OpenTime)
	assert.Equal(t, 100.5, klines[0].Open)
	assert.Equal(t, 101.0, klines[0].High)
	assert.Equal(t, 99.5, klines[0].Low)
	assert.Equal(t, 100.8, klines[0].Close)
	assert.Equal(t, 1234.5, klines[0].Volume)
	assert.Equal(t, 42, klines[0].NumberOfTrades)
}

func TestClient_GetBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, klinesBody)
	}))
	defer server.Close()

	bars, err := NewClient(server.URL, 100, time.Second).GetBars(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), bars[0].Timestamp)
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), bars[1].Timestamp)
	assert.Equal(t, 101.9, bars[1].Close)
	for _, b := range bars {
		assert.NoError(t, b.Validate())
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 100, time.Second).GetKlines(context.Background(), "NOPE", "1h", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid symbol")
}

func TestClient_MalformedKline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[1704067200000, "abc"]]`)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 100, time.Second).GetKlines(context.Background(), "BTCUSDT", "1h", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error parsing kline 0")
}

func TestClient_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 1000, time.Second)
	for i := 0; i < 5; i++ {
		_, err := client.GetKlines(context.Background(), "BTCUSDT", "1h", 1)
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.BreakerState())

	_, err := client.GetKlines(context.Background(), "BTCUSDT", "1h", 1)
	require.Error(t, err)
	assert.Equal(t, int32(5), calls.Load(), "open circuit must not reach the server")
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, klinesBody)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(server.URL, 100, time.Second).GetKlines(ctx, "BTCUSDT", "1h", 2)
	assert.Error(t, err)
}

func TestValidateRequest(t *testing.T) {
	_, err := validateRequest("", "1h", 10)
	assert.ErrorIs(t, err, ErrInvalidSymbol)

	_, err = validateRequest("BTCUSDT", "7m", 10)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	limit, err := validateRequest("BTCUSDT", "1h", 5000)
	require.NoError(t, err)
	assert.Equal(t, MaxKlineLimit, limit)

	limit, err = validateRequest("BTCUSDT", "1h", 0)
	require.NoError(t, err)
	assert.Equal(t, 500, limit)
}

func TestParseKline_ShortRow(t *testing.T) {
	_, err := parseKline([]interface{}{1.0, "2"})
	assert.Error(t, err)
}

func TestMockClient_Deterministic(t *testing.T) {
	anchor := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	clock := func() time.Time { return anchor }

	a, err := NewMockClient(42).WithClock(clock).GetBars(context.Background(), "BTCUSDT", "1h", 200)
	require.NoError(t, err)
	b, err := NewMockClient(42).WithClock(clock).GetBars(context.Background(), "BTCUSDT", "1h", 200)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := NewMockClient(43).WithClock(clock).GetBars(context.Background(), "BTCUSDT", "1h", 200)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	require.Len(t, a, 200)
	assert.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), a[len(a)-1].Timestamp)
	for i, bar := range a {
		require.NoError(t, bar.Validate(), "bar %d", i)
		assert.GreaterOrEqual(t, bar.High, math.Max(bar.Open, bar.Close))
		assert.LessOrEqual(t, bar.Low, math.Min(bar.Open, bar.Close))
		if i > 0 {
			assert.Equal(t, time.Hour, bar.Timestamp.Sub(a[i-1].Timestamp))
		}
	}
}

func TestMockClient_Errors(t *testing.T) {
	mock := NewMockClient(1)
	_, err := mock.GetKlines(context.Background(), "", "1h", 10)
	assert.True(t, errors.Is(err, ErrInvalidSymbol))

	_, err = mock.GetKlines(context.Background(), "BTCUSDT", "2m", 10)
	assert.True(t, errors.Is(err, ErrInvalidInterval))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = mock.GetKlines(ctx, "BTCUSDT", "1h", 10)
	assert.ErrorIs(t, err, context.Canceled)
}
