package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	BinanceConfig  BinanceConfig  `json:"binance"`
	BacktestConfig BacktestConfig `json:"backtest"`
	StrategyConfig StrategyConfig `json:"strategy"`
	ScannerConfig  ScannerConfig  `json:"scanner"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	ServerConfig   ServerConfig   `json:"server"`
	AuthConfig     AuthConfig     `json:"auth"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

type BinanceConfig struct {
	BaseURL           string  `json:"base_url"`
	MockMode          bool    `json:"mock_mode"` // Use simulated bars instead of the REST API
	RequestsPerSecond float64 `json:"requests_per_second"`
	RequestTimeout    int     `json:"request_timeout"` // Seconds
	MockSeed          int64   `json:"mock_seed"`
}

// BacktestConfig holds defaults for backtest runs
type BacktestConfig struct {
	Symbol         string  `json:"symbol"`
	Interval       string  `json:"interval"`
	Limit          int     `json:"limit"`
	InitialBalance float64 `json:"initial_balance"`
	CommissionRate float64 `json:"commission_rate"`
	RiskPercentage float64 `json:"risk_percentage"` // Percent of balance risked per trade
	WarmupBars     int     `json:"warmup_bars"`
	SignalWindow   int     `json:"signal_window"`
}

// StrategyConfig holds live signal generation settings
type StrategyConfig struct {
	RiskPercentage float64 `json:"risk_percentage"`
	MaxSignalAge   int     `json:"max_signal_age"` // Seconds
}

// ScannerConfig holds multi-symbol scan settings
type ScannerConfig struct {
	Symbols     []string `json:"symbols"` // Scanned when a request names none
	WorkerCount int      `json:"worker_count"`
	Timeout     int      `json:"timeout"` // Seconds
	MaxSymbols  int      `json:"max_symbols"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`   // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`      // Seconds
	WriteTimeout    int    `json:"write_timeout"`     // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`  // Seconds
	BacktestsPerMin int    `json:"backtests_per_min"` // Per-client limit on POST /api/backtests
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	KlineTTL int    `json:"kline_ttl"` // Seconds
}

// Load reads config.json (if present) and applies .env and environment overrides
func Load() (*Config, error) {
	return LoadFile("config.json")
}

// LoadFile is Load with an explicit config file path
func LoadFile(filename string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := loadFromFile(filename)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the backtester cannot run with
func (c *Config) Validate() error {
	if c.BacktestConfig.InitialBalance <= 0 {
		return fmt.Errorf("backtest.initial_balance must be positive, got %v", c.BacktestConfig.InitialBalance)
	}
	if c.BacktestConfig.CommissionRate < 0 || c.BacktestConfig.CommissionRate >= 1 {
		return fmt.Errorf("backtest.commission_rate must be in [0, 1), got %v", c.BacktestConfig.CommissionRate)
	}
	if c.BacktestConfig.RiskPercentage <= 0 || c.BacktestConfig.RiskPercentage > 100 {
		return fmt.Errorf("backtest.risk_percentage must be in (0, 100], got %v", c.BacktestConfig.RiskPercentage)
	}
	if c.StrategyConfig.RiskPercentage <= 0 || c.StrategyConfig.RiskPercentage > 100 {
		return fmt.Errorf("strategy.risk_percentage must be in (0, 100], got %v", c.StrategyConfig.RiskPercentage)
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required when auth is enabled")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.BinanceConfig.BaseURL == "" {
		cfg.BinanceConfig.BaseURL = "https://api.binance.com"
	}
	if cfg.BinanceConfig.RequestsPerSecond == 0 {
		cfg.BinanceConfig.RequestsPerSecond = 10
	}
	if cfg.BinanceConfig.RequestTimeout == 0 {
		cfg.BinanceConfig.RequestTimeout = 10
	}
	if cfg.BinanceConfig.MockSeed == 0 {
		cfg.BinanceConfig.MockSeed = 42
	}

	if cfg.BacktestConfig.Symbol == "" {
		cfg.BacktestConfig.Symbol = "BTCUSDT"
	}
	if cfg.BacktestConfig.Interval == "" {
		cfg.BacktestConfig.Interval = "1h"
	}
	if cfg.BacktestConfig.Limit == 0 {
		cfg.BacktestConfig.Limit = 500
	}
	if cfg.BacktestConfig.InitialBalance == 0 {
		cfg.BacktestConfig.InitialBalance = 10000
	}
	if cfg.BacktestConfig.CommissionRate == 0 {
		cfg.BacktestConfig.CommissionRate = 0.001
	}
	if cfg.BacktestConfig.RiskPercentage == 0 {
		cfg.BacktestConfig.RiskPercentage = 2.0
	}
	if cfg.BacktestConfig.WarmupBars == 0 {
		cfg.BacktestConfig.WarmupBars = 50
	}
	if cfg.BacktestConfig.SignalWindow == 0 {
		cfg.BacktestConfig.SignalWindow = 30
	}

	if cfg.StrategyConfig.RiskPercentage == 0 {
		cfg.StrategyConfig.RiskPercentage = 1.0
	}
	if cfg.StrategyConfig.MaxSignalAge == 0 {
		cfg.StrategyConfig.MaxSignalAge = 10800
	}

	if len(cfg.ScannerConfig.Symbols) == 0 {
		cfg.ScannerConfig.Symbols = []string{"BTCUSDT", "ETHUSDT", "BNBUSDT", "SOLUSDT", "XRPUSDT"}
	}
	if cfg.ScannerConfig.WorkerCount == 0 {
		cfg.ScannerConfig.WorkerCount = 4
	}
	if cfg.ScannerConfig.Timeout == 0 {
		cfg.ScannerConfig.Timeout = 120
	}
	if cfg.ScannerConfig.MaxSymbols == 0 {
		cfg.ScannerConfig.MaxSymbols = 20
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "INFO"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}

	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ReadTimeout == 0 {
		cfg.ServerConfig.ReadTimeout = 30
	}
	if cfg.ServerConfig.WriteTimeout == 0 {
		cfg.ServerConfig.WriteTimeout = 60
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
	if cfg.ServerConfig.BacktestsPerMin == 0 {
		cfg.ServerConfig.BacktestsPerMin = 30
	}

	if cfg.AuthConfig.AccessTokenDuration == 0 {
		cfg.AuthConfig.AccessTokenDuration = 15 * time.Minute
	}

	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.Database == "" {
		cfg.DatabaseConfig.Database = "pattern_backtests"
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.RedisConfig.KlineTTL == 0 {
		cfg.RedisConfig.KlineTTL = 60
	}
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Binance config
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.MockMode = getEnvBoolOrDefault("MOCK_MODE", cfg.BinanceConfig.MockMode)
	cfg.BinanceConfig.RequestsPerSecond = getEnvFloatOrDefault("BINANCE_REQUESTS_PER_SECOND", cfg.BinanceConfig.RequestsPerSecond)

	// Backtest config
	cfg.BacktestConfig.Symbol = getEnvOrDefault("BACKTEST_SYMBOL", cfg.BacktestConfig.Symbol)
	cfg.BacktestConfig.Interval = getEnvOrDefault("BACKTEST_INTERVAL", cfg.BacktestConfig.Interval)
	cfg.BacktestConfig.Limit = getEnvIntOrDefault("BACKTEST_LIMIT", cfg.BacktestConfig.Limit)
	cfg.BacktestConfig.InitialBalance = getEnvFloatOrDefault("BACKTEST_INITIAL_BALANCE", cfg.BacktestConfig.InitialBalance)
	cfg.BacktestConfig.CommissionRate = getEnvFloatOrDefault("BACKTEST_COMMISSION_RATE", cfg.BacktestConfig.CommissionRate)
	cfg.BacktestConfig.RiskPercentage = getEnvFloatOrDefault("BACKTEST_RISK_PERCENTAGE", cfg.BacktestConfig.RiskPercentage)

	// Strategy config
	cfg.StrategyConfig.RiskPercentage = getEnvFloatOrDefault("STRATEGY_RISK_PERCENTAGE", cfg.StrategyConfig.RiskPercentage)
	cfg.StrategyConfig.MaxSignalAge = getEnvIntOrDefault("STRATEGY_MAX_SIGNAL_AGE", cfg.StrategyConfig.MaxSignalAge)

	// Scanner config
	if symbols := os.Getenv("SCANNER_SYMBOLS"); symbols != "" {
		cfg.ScannerConfig.Symbols = strings.Split(symbols, ",")
	}
	cfg.ScannerConfig.WorkerCount = getEnvIntOrDefault("SCANNER_WORKER_COUNT", cfg.ScannerConfig.WorkerCount)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.BacktestsPerMin = getEnvIntOrDefault("SERVER_BACKTESTS_PER_MIN", cfg.ServerConfig.BacktestsPerMin)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{}
	applyDefaults(&config)
	config.BinanceConfig.MockMode = true
	config.LoggingConfig.JSONFormat = true
	config.DatabaseConfig.User = "postgres"

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
