package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crypto-pattern-bot/internal/binance"
	"crypto-pattern-bot/internal/indicators"
	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/patterns"
	"crypto-pattern-bot/internal/strategy"
)

const marketTimeout = 30 * time.Second

// marketQuery is the symbol, interval and limit shared by market endpoints
type marketQuery struct {
	Symbol   string
	Interval string
	Limit    int
}

// parseMarketQuery reads and validates the market query parameters,
// writing a 400 and returning false on bad input
func (s *Server) parseMarketQuery(c *gin.Context) (marketQuery, bool) {
	q := marketQuery{
		Symbol:   strings.ToUpper(strings.TrimSpace(c.DefaultQuery("symbol", s.deps.Backtest.Symbol))),
		Interval: c.DefaultQuery("interval", s.deps.Backtest.Interval),
	}

	if q.Symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return q, false
	}
	if _, err := binance.IntervalDuration(q.Interval); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid interval: "+q.Interval)
		return q, false
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(s.deps.Backtest.Limit)))
	if err != nil || limit < 1 || limit > binance.MaxKlineLimit {
		errorResponse(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", binance.MaxKlineLimit))
		return q, false
	}
	q.Limit = limit
	return q, true
}

// fetchBars loads bars for q, writing a 502 and returning false when the
// source fails
func (s *Server) fetchBars(c *gin.Context, q marketQuery) ([]market.Bar, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), marketTimeout)
	defer cancel()

	bars, err := s.deps.Source.GetBars(ctx, q.Symbol, q.Interval, q.Limit)
	if err != nil {
		logging.FromContext(c.Request.Context()).Warn("Failed to fetch bars", "symbol", q.Symbol, "interval", q.Interval, "error", err)
		errorResponse(c, http.StatusBadGateway, "failed to fetch klines: "+err.Error())
		return nil, false
	}
	return bars, true
}

// analyze computes indicators and liquidity levels for bars
func analyze(c *gin.Context, bars []market.Bar) (*indicators.Series, []market.LiquidityLevel, bool) {
	series, err := indicators.Compute(bars)
	if err != nil {
		errorResponse(c, http.StatusUnprocessableEntity, "malformed market data: "+err.Error())
		return nil, nil, false
	}
	return series, market.LiquidityLevelsFromBars(bars), true
}

// handleGetKlines returns raw bars for a symbol
func (s *Server) handleGetKlines(c *gin.Context) {
	q, ok := s.parseMarketQuery(c)
	if !ok {
		return
	}
	bars, ok := s.fetchBars(c, q)
	if !ok {
		return
	}

	successResponse(c, gin.H{
		"symbol":   q.Symbol,
		"interval": q.Interval,
		"bars":     bars,
	})
}

// handleGetPatterns runs every detection pass over the latest bars and
// attaches strength-based probabilities
func (s *Server) handleGetPatterns(c *gin.Context) {
	q, ok := s.parseMarketQuery(c)
	if !ok {
		return
	}
	bars, ok := s.fetchBars(c, q)
	if !ok {
		return
	}
	if len(bars) == 0 {
		errorResponse(c, http.StatusUnprocessableEntity, "no market data returned for "+q.Symbol)
		return
	}
	series, levels, ok := analyze(c, bars)
	if !ok {
		return
	}

	detected := patterns.CalculatePatternProbability(patterns.DetectPatterns(series, levels), nil)
	if detected == nil {
		detected = []patterns.Pattern{}
	}

	successResponse(c, gin.H{
		"symbol":   q.Symbol,
		"interval": q.Interval,
		"bars":     len(bars),
		"levels":   levels,
		"patterns": detected,
	})
}

// handleGetSignal returns the latest trade signal, or null when no fresh
// actionable pattern exists
func (s *Server) handleGetSignal(c *gin.Context) {
	q, ok := s.parseMarketQuery(c)
	if !ok {
		return
	}

	balance := s.deps.Backtest.InitialBalance
	if raw := c.Query("balance"); raw != "" {
		b, err := strconv.ParseFloat(raw, 64)
		if err != nil || b <= 0 {
			errorResponse(c, http.StatusBadRequest, "balance must be a positive number")
			return
		}
		balance = b
	}

	bars, ok := s.fetchBars(c, q)
	if !ok {
		return
	}
	series, levels, ok := analyze(c, bars)
	if !ok {
		return
	}

	strat := strategy.NewPatternStrategy(strategy.Config{
		RiskPercentage: s.deps.Strategy.RiskPercentage,
		MaxSignalAge:   time.Duration(s.deps.Strategy.MaxSignalAge) * time.Second,
	})
	signal := strat.GenerateTradeSignal(series, levels, balance)
	if signal != nil {
		s.deps.Metrics.RecordSignal(string(signal.Type))
		s.deps.Events.PublishSignal(q.Symbol, string(signal.Type), string(signal.Signal), signal.Price, signal.StopLoss)
	}

	successResponse(c, gin.H{
		"symbol":   q.Symbol,
		"interval": q.Interval,
		"strategy": strat.Name(),
		"signal":   signal,
	})
}
