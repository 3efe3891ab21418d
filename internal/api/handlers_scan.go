package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/binance"
	"crypto-pattern-bot/internal/scanner"
	"crypto-pattern-bot/internal/strategy"
)

// handleScan evaluates several symbols concurrently. Symbols come from the
// comma separated symbols parameter or the configured watch list.
func (s *Server) handleScan(c *gin.Context) {
	symbols := s.deps.Scanner.Symbols
	if raw := c.Query("symbols"); raw != "" {
		symbols = strings.Split(raw, ",")
	}
	if len(symbols) > s.deps.Scanner.MaxSymbols {
		errorResponse(c, http.StatusBadRequest, fmt.Sprintf("at most %d symbols per scan", s.deps.Scanner.MaxSymbols))
		return
	}

	interval := c.DefaultQuery("interval", s.deps.Backtest.Interval)
	if _, err := binance.IntervalDuration(interval); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid interval: "+interval)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(s.deps.Backtest.Limit)))
	if err != nil || limit < 1 || limit > binance.MaxKlineLimit {
		errorResponse(c, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", binance.MaxKlineLimit))
		return
	}
	withBacktest, err := strconv.ParseBool(c.DefaultQuery("backtest", "false"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "backtest must be true or false")
		return
	}

	bt := backtest.DefaultConfig()
	bt.InitialBalance = s.deps.Backtest.InitialBalance
	bt.CommissionRate = s.deps.Backtest.CommissionRate
	bt.RiskPercentage = s.deps.Backtest.RiskPercentage
	if s.deps.Backtest.WarmupBars > 0 {
		bt.WarmupBars = s.deps.Backtest.WarmupBars
	}
	if s.deps.Backtest.SignalWindow > 0 {
		bt.SignalWindow = s.deps.Backtest.SignalWindow
	}

	sc := scanner.NewScanner(s.deps.Source, scanner.Config{
		Interval:     interval,
		Limit:        limit,
		WorkerCount:  s.deps.Scanner.WorkerCount,
		Timeout:      time.Duration(s.deps.Scanner.Timeout) * time.Second,
		WithBacktest: withBacktest,
		Backtest:     bt,
		Strategy: strategy.Config{
			RiskPercentage: s.deps.Strategy.RiskPercentage,
			MaxSignalAge:   time.Duration(s.deps.Strategy.MaxSignalAge) * time.Second,
		},
	}).WithMetrics(s.deps.Metrics)

	result, err := sc.Scan(c.Request.Context(), symbols)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		errorResponse(c, status, err.Error())
		return
	}

	for _, r := range result.Results {
		if r.Signal != nil {
			s.deps.Events.PublishSignal(r.Symbol, string(r.Signal.Type), string(r.Signal.Signal), r.Signal.Price, r.Signal.StopLoss)
		}
	}
	s.lastScan.Store(result)
	successResponse(c, result)
}

// handleGetLastScan returns the most recent scan run by this server
func (s *Server) handleGetLastScan(c *gin.Context) {
	result := s.lastScan.Load()
	if result == nil {
		errorResponse(c, http.StatusNotFound, "no scan has run yet")
		return
	}
	successResponse(c, result)
}
