package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/binance"
	"crypto-pattern-bot/internal/database"
	"crypto-pattern-bot/internal/market"
)

const (
	storageTimeout   = 10 * time.Second
	defaultListLimit = 20
	maxListLimit     = 100
	storageDisabled  = "backtest storage is not configured"
	backtestNotFound = "backtest not found"
)

// BacktestRequest is the body of POST /api/backtests. Zero fields take the
// configured defaults.
type BacktestRequest struct {
	Symbol         string  `json:"symbol"`
	Interval       string  `json:"interval"`
	Limit          int     `json:"limit"`
	InitialBalance float64 `json:"initial_balance"`
	CommissionRate float64 `json:"commission_rate"`
	RiskPercentage float64 `json:"risk_percentage"`
}

// withDefaults fills zero fields from the server's backtest defaults
func (s *Server) withDefaults(req BacktestRequest) BacktestRequest {
	d := s.deps.Backtest
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		req.Symbol = d.Symbol
	}
	if req.Interval == "" {
		req.Interval = d.Interval
	}
	if req.Limit == 0 {
		req.Limit = d.Limit
	}
	if req.InitialBalance == 0 {
		req.InitialBalance = d.InitialBalance
	}
	if req.CommissionRate == 0 {
		req.CommissionRate = d.CommissionRate
	}
	if req.RiskPercentage == 0 {
		req.RiskPercentage = d.RiskPercentage
	}
	return req
}

// handleRunBacktest fetches bars, runs a backtest, and stores the result
func (s *Server) handleRunBacktest(c *gin.Context) {
	var req BacktestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	req = s.withDefaults(req)

	if _, err := binance.IntervalDuration(req.Interval); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid interval: "+req.Interval)
		return
	}
	if req.Limit < 1 || req.Limit > binance.MaxKlineLimit {
		errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}

	bars, ok := s.fetchBars(c, marketQuery{Symbol: req.Symbol, Interval: req.Interval, Limit: req.Limit})
	if !ok {
		return
	}

	cfg := backtest.DefaultConfig()
	cfg.InitialBalance = req.InitialBalance
	cfg.CommissionRate = req.CommissionRate
	cfg.RiskPercentage = req.RiskPercentage
	if s.deps.Backtest.WarmupBars > 0 {
		cfg.WarmupBars = s.deps.Backtest.WarmupBars
	}
	if s.deps.Backtest.SignalWindow > 0 {
		cfg.SignalWindow = s.deps.Backtest.SignalWindow
	}

	s.deps.Events.PublishBacktestStarted(req.Symbol, req.Interval, len(bars))

	engine := backtest.NewEngine(cfg, nil).WithMetrics(s.deps.Metrics)
	result, err := engine.Run(bars, market.LiquidityLevelsFromBars(bars))
	if err != nil {
		s.deps.Events.PublishBacktestFailed(req.Symbol, err)
		switch {
		case errors.Is(err, backtest.ErrEmptyInput):
			errorResponse(c, http.StatusUnprocessableEntity, "no market data returned for "+req.Symbol)
		case errors.Is(err, backtest.ErrInvalidConfig):
			errorResponse(c, http.StatusBadRequest, err.Error())
		default:
			errorResponse(c, http.StatusUnprocessableEntity, "backtest failed: "+err.Error())
		}
		return
	}
	result.Symbol = req.Symbol
	result.Interval = req.Interval

	s.deps.Events.PublishBacktestCompleted(result.ID, result.Symbol, len(result.Trades), result.FinalBalance, result.ProfitLossPercent)

	if err := s.persist(c.Request.Context(), result); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   true,
			"message": "failed to save backtest: " + err.Error(),
			"data":    result,
		})
		return
	}

	successResponse(c, result)
}

// persist writes result to the database and cache when configured. Only a
// database failure is returned; cache failures are logged.
func (s *Server) persist(ctx context.Context, result *backtest.Result) error {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	if s.deps.Results != nil {
		if err := s.deps.Results.Put(ctx, result); err != nil {
			s.logger.Warn("Failed to cache backtest result", "id", result.ID, "error", err)
		}
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.SaveBacktestResult(ctx, result); err != nil {
			s.logger.Error("Failed to save backtest result", "id", result.ID, "error", err)
			return err
		}
	}
	return nil
}

// loadResult finds a result in the cache, then the database. It writes the
// error response and returns false when the result cannot be served.
func (s *Server) loadResult(c *gin.Context, id string) (*backtest.Result, bool) {
	if s.deps.Results == nil && s.deps.Store == nil {
		errorResponse(c, http.StatusServiceUnavailable, storageDisabled)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	if s.deps.Results != nil {
		if r, err := s.deps.Results.Get(ctx, id); err == nil {
			return r, true
		}
	}

	if s.deps.Store == nil {
		errorResponse(c, http.StatusNotFound, backtestNotFound)
		return nil, false
	}

	r, err := s.deps.Store.GetBacktestResult(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, backtestNotFound)
		} else {
			errorResponse(c, http.StatusInternalServerError, "failed to load backtest: "+err.Error())
		}
		return nil, false
	}

	if s.deps.Results != nil {
		if err := s.deps.Results.Put(ctx, r); err != nil {
			s.logger.Debug("Failed to warm result cache", "id", id, "error", err)
		}
	}
	return r, true
}

// handleListBacktests returns stored run summaries, newest first
func (s *Server) handleListBacktests(c *gin.Context) {
	if s.deps.Store == nil {
		errorResponse(c, http.StatusServiceUnavailable, storageDisabled)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 1 || limit > maxListLimit {
		errorResponse(c, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	summaries, err := s.deps.Store.GetBacktestResults(ctx, limit)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to list backtests: "+err.Error())
		return
	}
	if summaries == nil {
		summaries = []database.BacktestSummary{}
	}
	successResponse(c, summaries)
}

// handleGetBacktest returns a full result
func (s *Server) handleGetBacktest(c *gin.Context) {
	r, ok := s.loadResult(c, c.Param("id"))
	if !ok {
		return
	}
	successResponse(c, r)
}

// handleGetBacktestTrades returns the trades of a run
func (s *Server) handleGetBacktestTrades(c *gin.Context) {
	id := c.Param("id")

	if s.deps.Store == nil {
		r, ok := s.loadResult(c, id)
		if !ok {
			return
		}
		successResponse(c, r.Trades)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	trades, err := s.deps.Store.GetBacktestTrades(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, backtestNotFound)
		} else {
			errorResponse(c, http.StatusInternalServerError, "failed to load trades: "+err.Error())
		}
		return
	}
	successResponse(c, trades)
}

// handleGetBacktestStats groups a run's trades by pattern and by period
func (s *Server) handleGetBacktestStats(c *gin.Context) {
	period, err := backtest.ParsePeriod(c.DefaultQuery("period", string(backtest.Day)))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	r, ok := s.loadResult(c, c.Param("id"))
	if !ok {
		return
	}

	successResponse(c, gin.H{
		"id":       r.ID,
		"period":   period,
		"patterns": backtest.PatternStats(r.Trades),
		"periods":  backtest.StatsByPeriod(r.Trades, period),
	})
}

// handleDeleteBacktest removes a run from the database and cache
func (s *Server) handleDeleteBacktest(c *gin.Context) {
	if s.deps.Store == nil {
		errorResponse(c, http.StatusServiceUnavailable, storageDisabled)
		return
	}

	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	if err := s.deps.Store.DeleteBacktestResult(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, backtestNotFound)
		} else {
			errorResponse(c, http.StatusInternalServerError, "failed to delete backtest: "+err.Error())
		}
		return
	}

	if s.deps.Results != nil {
		if err := s.deps.Results.Delete(ctx, id); err != nil {
			s.logger.Debug("Failed to evict cached result", "id", id, "error", err)
		}
	}

	successResponse(c, gin.H{"id": id, "deleted": true})
}
