// Package api exposes market data, pattern detection, live signals and
// backtest runs over HTTP and websockets.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"crypto-pattern-bot/config"
	"crypto-pattern-bot/internal/auth"
	"crypto-pattern-bot/internal/backtest"
	"crypto-pattern-bot/internal/database"
	"crypto-pattern-bot/internal/events"
	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/metrics"
	"crypto-pattern-bot/internal/scanner"
)

// BacktestStore persists backtest results. *database.Repository implements
// it.
type BacktestStore interface {
	SaveBacktestResult(ctx context.Context, result *backtest.Result) error
	GetBacktestResult(ctx context.Context, id string) (*backtest.Result, error)
	GetBacktestResults(ctx context.Context, limit int) ([]database.BacktestSummary, error)
	GetBacktestTrades(ctx context.Context, id string) ([]backtest.Trade, error)
	DeleteBacktestResult(ctx context.Context, id string) error
}

// ResultCache holds recently computed results. *cache.ResultCache
// implements it.
type ResultCache interface {
	Put(ctx context.Context, r *backtest.Result) error
	Get(ctx context.Context, id string) (*backtest.Result, error)
	Delete(ctx context.Context, id string) error
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies are the collaborators the server is built from. Only Source
// is required.
type Dependencies struct {
	Source   market.Source
	Store    BacktestStore // nil when the database is disabled
	Results  ResultCache   // nil when redis is disabled
	Events   *events.EventBus
	Metrics  *metrics.Registry
	Gatherer prometheus.Gatherer
	JWT      *auth.JWTManager // nil when auth is disabled
	Backtest config.BacktestConfig
	Strategy config.StrategyConfig
	Scanner  config.ScannerConfig
}

// RateLimiter limits requests per client key with a token bucket each
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter allows perMinute requests per key, bursting up to the
// same amount
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    perMinute,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	limiter, ok := r.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = limiter
	}
	r.mu.Unlock()
	return limiter.Allow()
}

// Middleware rejects requests over the limit with 429, keyed by client IP
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.ServerConfig
	deps       Dependencies
	hub        *WSHub
	limiter    *RateLimiter
	lastScan   atomic.Pointer[scanner.ScanResult]
	logger     *logging.Logger
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	applyRequestDefaults(&deps.Backtest)
	applyScannerDefaults(&deps.Scanner)

	router := gin.New()

	s := &Server{
		router:  router,
		config:  cfg,
		deps:    deps,
		hub:     NewWSHub(),
		limiter: NewRateLimiter(cfg.BacktestsPerMin),
		logger:  logging.WithComponent("api"),
	}

	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	corsConfig := cors.DefaultConfig()
	origins := parseOrigins(cfg.AllowedOrigins)
	if len(origins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}
	router.Use(cors.New(corsConfig))

	go s.hub.Run()
	if deps.Events != nil {
		deps.Events.SubscribeAll(s.hub.BroadcastEvent)
	}

	s.setupRoutes()
	return s
}

// applyRequestDefaults fills request defaults the handlers rely on
func applyRequestDefaults(bc *config.BacktestConfig) {
	if bc.Symbol == "" {
		bc.Symbol = "BTCUSDT"
	}
	if bc.Interval == "" {
		bc.Interval = "1h"
	}
	if bc.Limit == 0 {
		bc.Limit = 500
	}
	def := backtest.DefaultConfig()
	if bc.InitialBalance == 0 {
		bc.InitialBalance = def.InitialBalance
	}
	if bc.CommissionRate == 0 {
		bc.CommissionRate = def.CommissionRate
	}
	if bc.RiskPercentage == 0 {
		bc.RiskPercentage = def.RiskPercentage
	}
}

func applyScannerDefaults(sc *config.ScannerConfig) {
	if len(sc.Symbols) == 0 {
		sc.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	}
	if sc.MaxSymbols == 0 {
		sc.MaxSymbols = 20
	}
}

// parseOrigins splits a comma separated origin list. "*" means any origin
// and yields nil.
func parseOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil
		}
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	api := s.router.Group("/api")
	ws := s.router.Group("/ws")
	if s.deps.JWT != nil {
		api.Use(auth.Middleware(s.deps.JWT))
		ws.Use(auth.Middleware(s.deps.JWT))
	}

	// Market data and live analysis
	api.GET("/klines", s.handleGetKlines)
	api.GET("/patterns", s.handleGetPatterns)
	api.GET("/signal", s.handleGetSignal)

	// Backtests
	api.POST("/backtests", s.limiter.Middleware(), s.handleRunBacktest)
	api.GET("/backtests", s.handleListBacktests)
	api.GET("/backtests/:id", s.handleGetBacktest)
	api.DELETE("/backtests/:id", s.handleDeleteBacktest)
	api.GET("/backtests/:id/trades", s.handleGetBacktestTrades)
	api.GET("/backtests/:id/stats", s.handleGetBacktestStats)

	// Multi-symbol scans
	api.GET("/scan", s.limiter.Middleware(), s.handleScan)
	api.GET("/scan/last", s.handleGetLastScan)

	ws.GET("/events", s.handleEventsSocket)
	ws.GET("/backtests/:id/equity", s.handleEquitySocket)
}

// requestLogger logs every request and records its latency by route
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx, _ := logging.WithTraceContext(c.Request.Context())
		traceID := logging.TraceIDFromContext(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Trace-ID", traceID)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		s.deps.Metrics.ObserveHTTP(c.Request.Method, route, fmt.Sprint(status), elapsed)

		l := logging.APIContext(c.Request.Method, route, status).WithTraceID(traceID).WithDuration(elapsed)
		if status >= http.StatusInternalServerError {
			l.Error("Request failed")
		} else {
			l.Debug("Request handled")
		}
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{
		"status":   "healthy",
		"database": "disabled",
		"time":     time.Now().UTC().Format(time.RFC3339),
	}

	if hc, ok := s.deps.Store.(healthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			body["status"] = "unhealthy"
			body["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "healthy"
	}

	c.JSON(http.StatusOK, body)
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
