package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"crypto-pattern-bot/config"
	"crypto-pattern-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// DSN builds a keyword/value connection string from cfg
func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.DatabaseContext("connect", "").Info("Connected to PostgreSQL", "database", cfg.Database)
	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.DatabaseContext("close", "").Info("Database connection closed")
	}
}

// migrations creates the backtest tables. Metrics and the equity curve are
// stored as JSONB; trades get their own rows so they can be paged.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS backtest_results (
		id UUID PRIMARY KEY,
		symbol VARCHAR(20) NOT NULL DEFAULT '',
		interval VARCHAR(10) NOT NULL DEFAULT '',
		initial_balance DOUBLE PRECISION NOT NULL,
		final_balance DOUBLE PRECISION NOT NULL,
		profit_loss DOUBLE PRECISION NOT NULL,
		profit_loss_percent DOUBLE PRECISION NOT NULL,
		insufficient_data BOOLEAN NOT NULL DEFAULT FALSE,
		bars_processed INT NOT NULL DEFAULT 0,
		metrics JSONB NOT NULL,
		equity_curve JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_results_symbol ON backtest_results(symbol)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_results_created_at ON backtest_results(created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS backtest_trades (
		id BIGSERIAL PRIMARY KEY,
		backtest_result_id UUID NOT NULL REFERENCES backtest_results(id) ON DELETE CASCADE,
		seq INT NOT NULL,
		entry_date TIMESTAMPTZ NOT NULL,
		exit_date TIMESTAMPTZ NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		exit_price DOUBLE PRECISION NOT NULL,
		type VARCHAR(10) NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		profit DOUBLE PRECISION NOT NULL,
		commission DOUBLE PRECISION NOT NULL,
		result VARCHAR(20) NOT NULL,
		pattern VARCHAR(40) NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_backtest_trades_result ON backtest_trades(backtest_result_id, seq)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logger := logging.DatabaseContext("migrate", "")
	logger.Info("Running database migrations")

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	logger.Info("Database migrations completed", "count", len(migrations))
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
