package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-pattern-bot/config"
	"crypto-pattern-bot/internal/auth"
	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/binance"
	"crypto-pattern-bot/internal/market"
)

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	c := newCLI()
	c.newSource = func(cfg config.BinanceConfig) market.Source {
		require.True(t, cfg.MockMode, "tests must not reach the network")
		return binance.NewMockClient(cfg.MockSeed).WithClock(func() time.Time { return fixedNow })
	}

	root := c.rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func missingConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "config.json")
}

func TestRunSavesResultAndCSV(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "result.json")
	csvPath := filepath.Join(dir, "trades.csv")

	out, err := execute(t, missingConfig(t), "run", "--mock", "--symbol", "ethusdt", "--limit", "200",
		"--commission", "0", "--out", outPath, "--csv", csvPath, "--period", "week")
	require.NoError(t, err)

	assert.Contains(t, out, "=== BACKTEST RESULTS ===")
	assert.Contains(t, out, "Symbol: ETHUSDT 1h")
	assert.Contains(t, out, "=== STATS BY WEEK ===")
	assert.Contains(t, out, "Result saved to "+outPath)

	saved, err := backtest.LoadResult(outPath)
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", saved.Symbol)
	assert.Len(t, saved.EquityCurve, 150)
	for _, tr := range saved.Trades {
		assert.Zero(t, tr.Commission)
	}

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "entry_date,exit_date,type,pattern"))
}

func TestRunIsDeterministicWithMockClock(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.json")
	b := filepath.Join(dir, "b.json")

	_, err := execute(t, missingConfig(t), "run", "--mock", "--limit", "150", "--out", a)
	require.NoError(t, err)
	_, err = execute(t, missingConfig(t), "run", "--mock", "--limit", "150", "--out", b)
	require.NoError(t, err)

	ra, err := backtest.LoadResult(a)
	require.NoError(t, err)
	rb, err := backtest.LoadResult(b)
	require.NoError(t, err)
	assert.Equal(t, ra.FinalBalance, rb.FinalBalance)
	assert.Equal(t, ra.Trades, rb.Trades)
}

func TestRunRejectsUnknownPeriod(t *testing.T) {
	_, err := execute(t, missingConfig(t), "run", "--mock", "--period", "year")
	assert.Error(t, err)
}

func TestRunRejectsBadInterval(t *testing.T) {
	_, err := execute(t, missingConfig(t), "run", "--mock", "--interval", "7m")
	assert.ErrorIs(t, err, binance.ErrInvalidInterval)
}

func TestShowPrintsSavedResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	_, err := execute(t, missingConfig(t), "run", "--mock", "--limit", "120", "--out", path)
	require.NoError(t, err)

	out, err := execute(t, missingConfig(t), "show", path, "--period", "day")
	require.NoError(t, err)
	assert.Contains(t, out, "=== BACKTEST RESULTS ===")
	assert.Contains(t, out, "=== STATS BY DAY ===")

	_, err = execute(t, missingConfig(t), "show", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, missingConfig(t), "show")
	assert.Error(t, err)
}

func TestPatternsCommand(t *testing.T) {
	out, err := execute(t, missingConfig(t), "patterns", "--mock", "--limit", "150", "--last", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "BTCUSDT 1h: 150 bars")
}

func TestTokenCommand(t *testing.T) {
	_, err := execute(t, missingConfig(t), "token")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auth":{"jwt_secret":"s3cret"}}`), 0o644))

	out, err := execute(t, path, "token", "--subject", "ci")
	require.NoError(t, err)

	claims, err := auth.NewJWTManager("s3cret", time.Hour).ValidateAccessToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ci", claims.Subject)
}

func TestScanCommand(t *testing.T) {
	out, err := execute(t, missingConfig(t), "scan", "--mock", "--symbols", "BTCUSDT,ETHUSDT", "--limit", "200", "--backtest")
	require.NoError(t, err)

	assert.Contains(t, out, "Scanned 2 symbols")
	assert.Contains(t, out, "SYMBOL")
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "ETHUSDT")
}

func TestInitConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.json")

	out, err := execute(t, missingConfig(t), "init-config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Sample configuration written to "+path)

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.BinanceConfig.MockMode)

	_, err = execute(t, missingConfig(t), "init-config", path)
	assert.Error(t, err)

	_, err = execute(t, missingConfig(t), "init-config", path, "--force")
	assert.NoError(t, err)
}
