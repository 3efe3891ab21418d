package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"crypto-pattern-bot/config"
	"crypto-pattern-bot/internal/api"
	"crypto-pattern-bot/internal/auth"
	"crypto-pattern-bot/internal/binance"
	"crypto-pattern-bot/internal/cache"
	"crypto-pattern-bot/internal/database"
	"crypto-pattern-bot/internal/events"
	"crypto-pattern-bot/internal/logging"
	"crypto-pattern-bot/internal/market"
	"crypto-pattern-bot/internal/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Failed to load configuration", "error", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	registry := metrics.NewRegistry(prometheus.DefaultRegisterer)
	eventBus := events.NewEventBus()

	// Market data
	klines := binance.NewSource(cfg.BinanceConfig, registry)
	var source market.Source = klines

	deps := api.Dependencies{
		Events:   eventBus,
		Metrics:  registry,
		Backtest: cfg.BacktestConfig,
		Strategy: cfg.StrategyConfig,
		Scanner:  cfg.ScannerConfig,
	}

	// Redis cache (optional)
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Fatal("Failed to create Redis cache", "error", err)
		}
		ttl := time.Duration(cfg.RedisConfig.KlineTTL) * time.Second
		source = cache.NewCachedSource(cacheService, klines, ttl).WithMetrics(registry)
		deps.Results = cache.NewResultCache(cacheService, cache.DefaultResultTTL).WithMetrics(registry)
		logger.Info("Redis cache enabled", "address", cfg.RedisConfig.Address)
	}
	deps.Source = source

	// PostgreSQL (optional)
	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		db, err = database.NewDB(ctx, cfg.DatabaseConfig)
		if err != nil {
			cancel()
			logger.Fatal("Failed to connect to database", "error", err)
		}
		if err := db.RunMigrations(ctx); err != nil {
			cancel()
			logger.Fatal("Failed to run migrations", "error", err)
		}
		cancel()
		deps.Store = database.NewRepository(db)
		logger.Info("Database enabled", "host", cfg.DatabaseConfig.Host, "database", cfg.DatabaseConfig.Database)
	}

	// JWT auth (optional)
	if cfg.AuthConfig.Enabled {
		deps.JWT = auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.AccessTokenDuration)
		logger.Info("JWT authentication enabled")
	}

	server := api.NewServer(cfg.ServerConfig, deps)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Web server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down web server", "error", err)
	}
	if cacheService != nil {
		if err := cacheService.Close(); err != nil {
			logger.Warn("Error closing Redis connection", "error", err)
		}
	}
	if db != nil {
		db.Close()
	}

	logger.Info("Shutdown complete")
}
