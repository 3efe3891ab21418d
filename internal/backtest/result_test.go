package backtest

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-pattern-bot/internal/patterns"
	"crypto-pattern-bot/internal/strategy"
)

func sampleResult(t *testing.T) *Result {
	t.Helper()
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{
		hour(50): signal(patterns.Buy, 100, 95, 110),
		hour(53): signal(patterns.Sell, 111, 115, 103),
	}}
	result, err := NewEngine(DefaultConfig(), gen).Run(closesToBars(flatThen(100, 105, 111, 111, 113, 109)), nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	result.Symbol = "BTCUSDT"
	result.Interval = "1h"
	return result
}

func TestResult_SaveLoadRoundTrip(t *testing.T) {
	result := sampleResult(t)
	path := filepath.Join(t.TempDir(), "result.json")

	require.NoError(t, SaveResult(path, result))
	loaded, err := LoadResult(path)
	require.NoError(t, err)

	assert.Equal(t, result.Trades, loaded.Trades)
	assert.Equal(t, result.EquityCurve, loaded.EquityCurve)
	assert.Equal(t, result.Metrics, loaded.Metrics)
	assert.Equal(t, result.FinalBalance, loaded.FinalBalance)
	assert.Equal(t, result.ID, loaded.ID)

	// metrics recomputed from the loaded trades match the stored ones
	stored := loaded.Metrics
	assert.Equal(t, stored, loaded.RecomputeMetrics())
}

func TestResult_InfiniteProfitFactorRoundTrip(t *testing.T) {
	result := &Result{
		InitialBalance: 100,
		FinalBalance:   110,
		Trades:         tradesWithProfits(10),
		EquityCurve:    curve(100, 110),
	}
	result.RecomputeMetrics()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, result))
	assert.Contains(t, buf.String(), `"profit_factor": "Infinity"`)

	loaded, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, result.Metrics, loaded.Metrics)
}

func TestLoadResult_Errors(t *testing.T) {
	_, err := LoadResult(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, ErrSerialization)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = LoadResult(path)
	assert.ErrorIs(t, err, ErrSerialization)

	err = SaveResult(filepath.Join(t.TempDir(), "no", "such", "dir.json"), &Result{})
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestDecode_EmptyCollections(t *testing.T) {
	r, err := Decode(strings.NewReader(`{"initial_balance": 5}`))
	require.NoError(t, err)
	assert.NotNil(t, r.Trades)
	assert.NotNil(t, r.EquityCurve)
}

func TestResult_EquityReplays(t *testing.T) {
	result := sampleResult(t)

	first := slices.Collect(result.Equity())
	second := slices.Collect(result.Equity())
	assert.Equal(t, result.EquityCurve, first)
	assert.Equal(t, first, second)

	count := 0
	for range result.Equity() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	PrintResults(&buf, sampleResult(t))
	out := buf.String()
	assert.Contains(t, out, "=== BACKTEST RESULTS ===")
	assert.Contains(t, out, "Symbol: BTCUSDT 1h")
	assert.Contains(t, out, "Total Trades: 2")
	assert.Contains(t, out, "=== PATTERN PERFORMANCE ===")
	assert.Contains(t, out, "liquidity_sweep: 2 trades")
}

func TestWriteTradesCSV(t *testing.T) {
	result := sampleResult(t)
	var buf bytes.Buffer
	require.NoError(t, WriteTradesCSV(&buf, result.Trades))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, tradeCSVHeader, rows[0])
	assert.Equal(t, "long", rows[1][2])
	assert.Equal(t, "take_profit", rows[1][10])
	assert.Equal(t, "short", rows[2][2])
	assert.Equal(t, "2024-01-03T02:00:00Z", rows[1][0])
}

func TestStatsByPeriod(t *testing.T) {
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 12, 0, 0, 0, time.UTC) }
	trades := []Trade{
		{ExitDate: day(time.January, 1), Type: Long, Profit: 10},
		{ExitDate: day(time.January, 1), Type: Short, Profit: -4},
		{ExitDate: day(time.January, 9), Type: Long, Profit: 6},
		{ExitDate: day(time.February, 2), Type: Short, Profit: 2},
	}

	daily := StatsByPeriod(trades, Day)
	require.Len(t, daily, 3)
	assert.Equal(t, "2024-01-01", daily[0].Period)
	assert.Equal(t, 2, daily[0].TradeCount)
	assert.Equal(t, 1, daily[0].LongCount)
	assert.Equal(t, 1, daily[0].ShortCount)
	assert.InDelta(t, 6.0, daily[0].TotalProfit, 1e-12)
	assert.InDelta(t, 3.0, daily[0].AverageProfit, 1e-12)
	assert.InDelta(t, 0.5, daily[0].WinRate, 1e-12)

	weekly := StatsByPeriod(trades, Week)
	require.Len(t, weekly, 3)
	assert.Equal(t, "2024-W01", weekly[0].Period)
	assert.Equal(t, "2024-W02", weekly[1].Period)

	monthly := StatsByPeriod(trades, Month)
	require.Len(t, monthly, 2)
	assert.Equal(t, "2024-01", monthly[0].Period)
	assert.Equal(t, 3, monthly[0].TradeCount)
	assert.Equal(t, "2024-02", monthly[1].Period)

	assert.Empty(t, StatsByPeriod(nil, Day))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("week")
	require.NoError(t, err)
	assert.Equal(t, Week, p)

	_, err = ParsePeriod("year")
	assert.Error(t, err)
}

func TestPatternStats(t *testing.T) {
	trades := []Trade{
		{Pattern: patterns.LiquiditySweep, Profit: 10, Commission: 1},
		{Pattern: patterns.LiquiditySweep, Profit: -5, Commission: 1},
		{Pattern: patterns.ResistanceBreakRetest, Profit: 20},
	}
	stats := PatternStats(trades)
	require.Len(t, stats, 2)

	assert.Equal(t, patterns.LiquiditySweep, stats[0].PatternType)
	assert.Equal(t, 2, stats[0].TotalTrades)
	assert.InDelta(t, 50.0, stats[0].WinRate, 1e-12)
	assert.InDelta(t, 3.0, stats[0].NetProfit, 1e-12)
	assert.InDelta(t, 9.0, stats[0].AvgProfit, 1e-12)
	assert.InDelta(t, -6.0, stats[0].AvgLoss, 1e-12)

	assert.Equal(t, patterns.ResistanceBreakRetest, stats[1].PatternType)
	assert.InDelta(t, 100.0, stats[1].WinRate, 1e-12)
}
