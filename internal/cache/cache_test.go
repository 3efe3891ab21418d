package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-pattern-bot/config"
	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/market"
)

// memStore is an in-memory Store
type memStore struct {
	mu       sync.Mutex
	data     map[string]string
	ttls     map[string]time.Duration
	getCalls int
	setCalls int
	getErr   error
	setErr   error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	if m.setErr != nil {
		return m.setErr
	}
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	m.data[key] = data
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// countingSource returns fixed bars and counts calls
type countingSource struct {
	bars  []market.Bar
	err   error
	calls int
}

func (s *countingSource) GetBars(context.Context, string, string, int) ([]market.Bar, error) {
	s.calls++
	return s.bars, s.err
}

func sampleBars() []market.Bar {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []market.Bar{
		{Timestamp: t0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Timestamp: t0.Add(time.Hour), Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 12},
	}
}

func TestCachedSource_ReadThrough(t *testing.T) {
	store := newMemStore()
	source := &countingSource{bars: sampleBars()}
	cached := NewCachedSource(store, source, 5*time.Minute)

	first, err := cached.GetBars(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	second, err := cached.GetBars(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
	assert.Equal(t, sampleBars(), first)
	assert.Equal(t, first, second)
	assert.Equal(t, 5*time.Minute, store.ttls[KlinesKey("BTCUSDT", "1h", 2)])

	// a different limit is a different key
	_, err = cached.GetBars(context.Background(), "BTCUSDT", "1h", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestCachedSource_StoreFailureFallsThrough(t *testing.T) {
	store := newMemStore()
	store.getErr = ErrUnavailable
	store.setErr = ErrUnavailable
	source := &countingSource{bars: sampleBars()}

	bars, err := NewCachedSource(store, source, 0).GetBars(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 1, source.calls)
}

func TestCachedSource_DoesNotCacheEmptyOrErrors(t *testing.T) {
	store := newMemStore()
	source := &countingSource{}
	cached := NewCachedSource(store, source, 0)

	bars, err := cached.GetBars(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Zero(t, store.setCalls)

	source.err = errors.New("down")
	_, err = cached.GetBars(context.Background(), "BTCUSDT", "1h", 2)
	assert.Error(t, err)
	assert.Zero(t, store.setCalls)
}

func TestCachedSource_CorruptEntryRefetches(t *testing.T) {
	store := newMemStore()
	store.data[KlinesKey("BTCUSDT", "1h", 2)] = "{broken"
	source := &countingSource{bars: sampleBars()}

	bars, err := NewCachedSource(store, source, 0).GetBars(context.Background(), "BTCUSDT", "1h", 2)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	assert.Equal(t, 1, source.calls)
}

func TestResultCache_PutGet(t *testing.T) {
	store := newMemStore()
	rc := NewResultCache(store, 0)

	result := &backtest.Result{
		ID:             "abc",
		InitialBalance: 100,
		FinalBalance:   110,
		Trades:         []backtest.Trade{},
		EquityCurve:    []backtest.EquityPoint{},
	}
	require.NoError(t, rc.Put(context.Background(), result))
	assert.Equal(t, DefaultResultTTL, store.ttls[BacktestResultKey("abc")])

	loaded, err := rc.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", loaded.ID)
	assert.Equal(t, 110.0, loaded.FinalBalance)

	_, err = rc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.Error(t, rc.Put(context.Background(), &backtest.Result{}))

	require.NoError(t, rc.Delete(context.Background(), "abc"))
	_, err = rc.Get(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestCacheService_GetSetDelete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")
	mock.ExpectSet("k", `{"a":1}`, time.Minute).SetVal("OK")
	mock.ExpectGet("k").SetVal(`{"a":1}`)
	mock.ExpectGet("missing").RedisNil()
	mock.ExpectDel("k").SetVal(1)

	cs := NewCacheServiceWithClient(client, config.RedisConfig{Enabled: true, Address: "mock"})
	require.True(t, cs.IsHealthy())

	require.NoError(t, cs.Set(context.Background(), "k", map[string]int{"a": 1}, time.Minute))
	v, err := cs.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, v)

	_, err = cs.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, cs.Delete(context.Background(), "k"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheService_OpensAfterRepeatedFailures(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectPing().SetVal("PONG")
	for i := 0; i < 3; i++ {
		mock.ExpectGet("k").SetErr(errors.New("connection reset"))
	}

	cs := NewCacheServiceWithClient(client, config.RedisConfig{Enabled: true})
	for i := 0; i < 3; i++ {
		_, err := cs.Get(context.Background(), "k")
		require.Error(t, err)
	}
	assert.False(t, cs.IsHealthy())
	assert.Equal(t, 3, cs.GetStats().FailureCount)

	_, err := cs.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCacheService_DegradedWhenPingFails(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectPing().SetErr(errors.New("refused"))

	cs := NewCacheServiceWithClient(client, config.RedisConfig{Enabled: true})
	assert.False(t, cs.IsHealthy())

	err := cs.Set(context.Background(), "k", "v", time.Second)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewCacheService_Disabled(t *testing.T) {
	_, err := NewCacheService(config.RedisConfig{})
	assert.Error(t, err)
}
