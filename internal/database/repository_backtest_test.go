package database

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-pattern-bot/config"
	"crypto-pattern-bot/internal/backtest"
)

func TestBacktestRow_RoundTrip(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	result := &backtest.Result{
		Metrics: backtest.PerformanceMetrics{
			TotalTrades:   1,
			WinningTrades: 1,
			WinRate:       1,
			ProfitFactor:  backtest.InfFloat(math.Inf(1)),
		},
		EquityCurve: []backtest.EquityPoint{{Date: t0, Equity: 100}, {Date: t0.Add(time.Hour), Equity: 101}},
	}

	row, err := encodeBacktestRow(result)
	require.NoError(t, err)
	assert.Contains(t, string(row.metrics), `"profit_factor":"Infinity"`)

	var decoded backtest.Result
	require.NoError(t, row.decodeInto(&decoded))
	assert.Equal(t, result.Metrics, decoded.Metrics)
	assert.Equal(t, result.EquityCurve, decoded.EquityCurve)
}

func TestBacktestRow_NilCurveEncodesEmptyArray(t *testing.T) {
	row, err := encodeBacktestRow(&backtest.Result{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(row.equityCurve))
}

func TestBacktestRow_DecodeErrors(t *testing.T) {
	var r backtest.Result
	assert.Error(t, backtestRow{metrics: []byte("{"), equityCurve: []byte("[]")}.decodeInto(&r))
	assert.Error(t, backtestRow{metrics: []byte("{}"), equityCurve: []byte("nope")}.decodeInto(&r))
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(pgx.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", notFound(pgx.ErrNoRows)), ErrNotFound)

	other := errors.New("boom")
	assert.Equal(t, other, notFound(other))
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "patterns", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=patterns sslmode=disable", dsn)
}

func TestParseID(t *testing.T) {
	id, err := parseID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NoError(t, err)
	assert.Equal(t, byte(0x6b), id[0])

	_, err = parseID("not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
}
