package backtest

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/metrics"
	"crypto-pattern-bot/internal/patterns"
	"crypto-pattern-bot/internal/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// scriptedGenerator returns a fixed signal when the window ends at a
// scripted bar time
type scriptedGenerator struct {
	signals map[time.Time]*strategy.TradeSignal
	calls   int
}

func (g *scriptedGenerator) GenerateSignal(window []market.Bar, _ []market.LiquidityLevel, _ float64) (*strategy.TradeSignal, error) {
	g.calls++
	last := window[len(window)-1]
	if s, ok := g.signals[last.Timestamp]; ok {
		return s, nil
	}
	return nil, nil
}

// funcGenerator adapts a function to SignalGenerator
type funcGenerator func(window []market.Bar, levels []market.LiquidityLevel, balance float64) (*strategy.TradeSignal, error)

func (f funcGenerator) GenerateSignal(window []market.Bar, levels []market.LiquidityLevel, balance float64) (*strategy.TradeSignal, error) {
	return f(window, levels, balance)
}

func hour(i int) time.Time {
	return t0.Add(time.Duration(i) * time.Hour)
}

// closesToBars builds hourly bars whose open, high, low and close all equal
// the given close
func closesToBars(closes []float64) []market.Bar {
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Timestamp: hour(i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return bars
}

// flatThen returns 50 closes at 100 followed by tail
func flatThen(tail ...float64) []float64 {
	closes := make([]float64, 50, 50+len(tail))
	for i := range closes {
		closes[i] = 100
	}
	return append(closes, tail...)
}

func signal(sig patterns.Signal, price, stop, tp float64) *strategy.TradeSignal {
	return &strategy.TradeSignal{
		Type:         patterns.LiquiditySweep,
		Signal:       sig,
		Price:        price,
		StopLoss:     stop,
		TakeProfit:   tp,
		PositionSize: 1,
		RiskReward:   strategy.RiskReward(price, stop, tp),
	}
}

func zeroCommission() Config {
	config := DefaultConfig()
	config.CommissionRate = 0
	return config
}

func netSum(trades []Trade) float64 {
	sum := 0.0
	for _, t := range trades {
		sum += t.NetProfit()
	}
	return sum
}

func TestRun_EmptyInput(t *testing.T) {
	_, err := NewEngine(DefaultConfig(), nil).Run(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRun_MalformedBar(t *testing.T) {
	bars := closesToBars(flatThen(100))
	bars[10].Low = bars[10].High + 1
	_, err := NewEngine(DefaultConfig(), nil).Run(bars, nil)
	assert.ErrorIs(t, err, market.ErrMalformedBar)
}

func TestRun_InvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.CommissionRate = -0.1
	_, err := NewEngine(config, nil).Run(closesToBars(flatThen(100)), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRun_InsufficientData(t *testing.T) {
	gen := &scriptedGenerator{}
	result, err := NewEngine(DefaultConfig(), gen).Run(closesToBars(make([]float64, 30)), nil)
	require.NoError(t, err)

	assert.True(t, result.InsufficientData)
	assert.Empty(t, result.Trades)
	assert.Empty(t, result.EquityCurve)
	assert.Equal(t, result.InitialBalance, result.FinalBalance)
	assert.Zero(t, gen.calls)
}

func TestRun_ExactlyWarmupBarsIsInsufficient(t *testing.T) {
	result, err := NewEngine(DefaultConfig(), &scriptedGenerator{}).Run(closesToBars(flatThen()), nil)
	require.NoError(t, err)
	assert.True(t, result.InsufficientData)
}

// Rising prices with no pivots and no liquidity levels never produce a signal
func TestRun_RisingSeriesHasNoTrades(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = float64(i) * 10
	}
	result, err := RunBacktest(closesToBars(closes), nil, 10000, 0.001)
	require.NoError(t, err)

	assert.False(t, result.InsufficientData)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 10000.0, result.FinalBalance)
	assert.Len(t, result.EquityCurve, 10)
	assert.Equal(t, 10, result.BarsProcessed)
	for p := range result.Equity() {
		assert.Equal(t, 10000.0, p.Equity)
	}
}

func TestRun_LongTakeProfit(t *testing.T) {
	bars := closesToBars(flatThen(100, 105, 111, 111))
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{
		hour(50): signal(patterns.Buy, 100, 95, 110),
	}}

	result, err := NewEngine(zeroCommission(), gen).Run(bars, nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, Long, trade.Type)
	assert.Equal(t, ExitTakeProfit, trade.Result)
	assert.Equal(t, hour(50), trade.EntryDate)
	assert.Equal(t, hour(52), trade.ExitDate)
	assert.InDelta(t, 100.0, trade.EntryPrice, 1e-9)
	assert.InDelta(t, 110.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 40.0, trade.Size, 1e-9)
	assert.InDelta(t, 400.0, trade.Profit, 1e-9)
	assert.Equal(t, patterns.LiquiditySweep, trade.Pattern)

	assert.InDelta(t, 10400.0, result.FinalBalance, 1e-9)
	assert.InDelta(t, 400.0, result.ProfitLoss, 1e-9)
	assert.InDelta(t, 4.0, result.ProfitLossPercent, 1e-9)

	// equity is marked to market while the position is open
	require.Len(t, result.EquityCurve, 4)
	assert.InDelta(t, 10000.0, result.EquityCurve[0].Equity, 1e-9)
	assert.InDelta(t, 10200.0, result.EquityCurve[1].Equity, 1e-9)
	assert.InDelta(t, 10440.0, result.EquityCurve[2].Equity, 1e-9)
	assert.InDelta(t, 10400.0, result.EquityCurve[3].Equity, 1e-9)

	assert.Equal(t, 1, result.Metrics.TotalTrades)
	assert.True(t, math.IsInf(float64(result.Metrics.ProfitFactor), 1))
}

func TestRun_ShortTakeProfitWithCommission(t *testing.T) {
	bars := closesToBars(flatThen(100, 95, 89))
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{
		hour(50): signal(patterns.Sell, 100, 105, 90),
	}}

	result, err := NewEngine(DefaultConfig(), gen).Run(bars, nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, Short, trade.Type)
	assert.Equal(t, ExitTakeProfit, trade.Result)
	assert.InDelta(t, 90.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 40.0, trade.Size, 1e-9)
	assert.InDelta(t, 400.0, trade.Profit, 1e-9)
	assert.InDelta(t, 7.6, trade.Commission, 1e-9)
	assert.InDelta(t, 10392.4, result.FinalBalance, 1e-9)
}

func TestRun_StopCheckedBeforeTarget(t *testing.T) {
	// an inverted buy signal: the close sits at or below the stop and at or
	// above the target at the same time
	bars := closesToBars(flatThen(100, 100))
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{
		hour(50): signal(patterns.Buy, 100, 105, 95),
	}}

	result, err := NewEngine(zeroCommission(), gen).Run(bars, nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitStopLoss, result.Trades[0].Result)
	assert.InDelta(t, 105.0, result.Trades[0].ExitPrice, 1e-9)
}

func TestRun_LongStopLoss(t *testing.T) {
	bars := closesToBars(flatThen(100, 97, 94, 100))
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{
		hour(50): signal(patterns.Buy, 100, 95, 110),
	}}

	result, err := NewEngine(zeroCommission(), gen).Run(bars, nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitStopLoss, result.Trades[0].Result)
	assert.InDelta(t, 95.0, result.Trades[0].ExitPrice, 1e-9)
	assert.InDelta(t, -200.0, result.Trades[0].Profit, 1e-9)
	assert.InDelta(t, 9800.0, result.FinalBalance, 1e-9)
}

func TestRun_ForcedCloseAtEndOfPeriod(t *testing.T) {
	bars := closesToBars(flatThen(100, 101, 102))
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{
		hour(50): signal(patterns.Buy, 100, 95, 110),
	}}

	result, err := NewEngine(zeroCommission(), gen).Run(bars, nil)
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, ExitEndOfPeriod, trade.Result)
	assert.Equal(t, hour(52), trade.ExitDate)
	assert.InDelta(t, 102.0, trade.ExitPrice, 1e-9)
	assert.InDelta(t, 80.0, trade.Profit, 1e-9)
	assert.InDelta(t, 10080.0, result.FinalBalance, 1e-9)
}

func TestRun_ZeroSizeSignalSkipped(t *testing.T) {
	s := signal(patterns.Buy, 100, 95, 110)
	s.PositionSize = 0
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{hour(50): s}}

	result, err := NewEngine(DefaultConfig(), gen).Run(closesToBars(flatThen(100, 120)), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 10000.0, result.FinalBalance)
}

func TestRun_ZeroRiskDistanceSkipped(t *testing.T) {
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{
		hour(50): signal(patterns.Buy, 100, 100, 110),
	}}

	result, err := NewEngine(DefaultConfig(), gen).Run(closesToBars(flatThen(100, 120)), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
}

func TestRun_UnaffordableSignalSkipped(t *testing.T) {
	// risking 2% over a 0.01 stop distance needs 20000 units at 100
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{
		hour(50): signal(patterns.Buy, 100, 99.99, 100.02),
	}}

	result, err := NewEngine(DefaultConfig(), gen).Run(closesToBars(flatThen(100, 120)), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Equal(t, 10000.0, result.FinalBalance)
}

func TestRun_SameBarReentry(t *testing.T) {
	bars := closesToBars(flatThen(100, 111, 111, 111))
	always := funcGenerator(func(window []market.Bar, _ []market.LiquidityLevel, _ float64) (*strategy.TradeSignal, error) {
		c := window[len(window)-1].Close
		return signal(patterns.Buy, c, c-5, c+10), nil
	})

	result, err := NewEngine(zeroCommission(), always).Run(bars, nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, ExitTakeProfit, result.Trades[0].Result)
	assert.Equal(t, hour(51), result.Trades[1].EntryDate)

	config := zeroCommission()
	config.DisableSameBarReentry = true
	result, err = NewEngine(config, always).Run(bars, nil)
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, hour(52), result.Trades[1].EntryDate)
}

func TestRun_GeneratorErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	gen := funcGenerator(func([]market.Bar, []market.LiquidityLevel, float64) (*strategy.TradeSignal, error) {
		return nil, boom
	})
	_, err := NewEngine(DefaultConfig(), gen).Run(closesToBars(flatThen(100)), nil)
	assert.ErrorIs(t, err, boom)
}

func TestRun_WindowAndLevelsHandedToGenerator(t *testing.T) {
	levels := []market.LiquidityLevel{
		{Price: 90, Timestamp: hour(10)},
		{Price: 95, Timestamp: hour(51)},
	}
	var windows []int
	var levelCounts []int
	gen := funcGenerator(func(window []market.Bar, lv []market.LiquidityLevel, _ float64) (*strategy.TradeSignal, error) {
		windows = append(windows, len(window))
		levelCounts = append(levelCounts, len(lv))
		return nil, nil
	})

	_, err := NewEngine(DefaultConfig(), gen).Run(closesToBars(flatThen(100, 100, 100)), levels)
	require.NoError(t, err)

	assert.Equal(t, []int{30, 30, 30}, windows)
	// the level stamped at bar 51 is only visible from bar 52
	assert.Equal(t, []int{1, 1, 2}, levelCounts)
}

func randomWalk(rng *rand.Rand, n int) []market.Bar {
	bars := make([]market.Bar, n)
	price := 100.0
	for i := range bars {
		open := price
		price *= 1 + rng.NormFloat64()*0.01
		high := math.Max(open, price) * (1 + rng.Float64()*0.005)
		low := math.Min(open, price) * (1 - rng.Float64()*0.005)
		bars[i] = market.Bar{Timestamp: hour(i), Open: open, High: high, Low: low, Close: price, Volume: 500 + rng.Float64()*1000}
	}
	return bars
}

func TestRun_AccountingIdentityAndSinglePosition(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		bars := randomWalk(rng, 400)
		gen := funcGenerator(func(window []market.Bar, _ []market.LiquidityLevel, _ float64) (*strategy.TradeSignal, error) {
			if rng.Float64() > 0.3 {
				return nil, nil
			}
			c := window[len(window)-1].Close
			dist := c * (0.005 + rng.Float64()*0.03)
			if rng.Intn(2) == 0 {
				return signal(patterns.Buy, c, c-dist, c+2*dist), nil
			}
			return signal(patterns.Sell, c, c+dist, c-2*dist), nil
		})

		result, err := NewEngine(DefaultConfig(), gen).Run(bars, nil)
		require.NoError(t, err)

		assert.InDelta(t, result.InitialBalance+netSum(result.Trades), result.FinalBalance, 1e-6, "seed %d", seed)
		assert.Len(t, result.EquityCurve, len(bars)-50)

		for i, trade := range result.Trades {
			assert.False(t, trade.EntryDate.Before(hour(50)), "seed %d trade %d", seed, i)
			assert.False(t, trade.ExitDate.Before(trade.EntryDate), "seed %d trade %d", seed, i)
			if i > 0 {
				assert.False(t, trade.EntryDate.Before(result.Trades[i-1].ExitDate), "seed %d trade %d overlaps", seed, i)
			}
		}

		m := result.Metrics
		assert.Equal(t, m.TotalTrades, m.WinningTrades+m.LosingTrades)
		assert.GreaterOrEqual(t, m.MaxDrawdown, 0.0)
		assert.LessOrEqual(t, m.MaxDrawdown, 1.0)
	}
}

func TestRun_PatternStrategyEndToEnd(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	bars := randomWalk(rng, 300)
	levels := market.LiquidityLevelsFromBars(bars)

	result, err := RunBacktest(bars, levels, 10000, 0.001)
	require.NoError(t, err)
	assert.InDelta(t, 10000+netSum(result.Trades), result.FinalBalance, 1e-6)
	for _, trade := range result.Trades {
		assert.Contains(t, []patterns.PatternType{patterns.ResistanceBreakRetest, patterns.SupportBreakRetest, patterns.LiquiditySweep}, trade.Pattern)
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	reg := metrics.NewRegistry(prometheus.NewRegistry())
	gen := &scriptedGenerator{signals: map[time.Time]*strategy.TradeSignal{
		hour(50): signal(patterns.Buy, 100, 95, 110),
	}}

	_, err := NewEngine(zeroCommission(), gen).WithMetrics(reg).Run(closesToBars(flatThen(100, 111)), nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.BacktestRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.BacktestTrades.WithLabelValues(ExitTakeProfit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.SignalsGenerated.WithLabelValues(string(patterns.LiquiditySweep))))
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(Config{}, nil)
	assert.Equal(t, DefaultConfig().InitialBalance, e.Config().InitialBalance)
	assert.Equal(t, 2.0, e.Config().RiskPercentage)
	assert.Equal(t, 50, e.Config().WarmupBars)
	assert.Equal(t, 30, e.Config().SignalWindow)
	assert.Zero(t, e.Config().CommissionRate)
	assert.False(t, e.Config().DisableSameBarReentry)
}
