package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	Env string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External APIs
	Tushare   TushareConfig
	Eastmoney EastmoneyConfig

	// Analysis engine
	Analysis AnalysisConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// TushareConfig holds Tushare Pro API configuration
type TushareConfig struct {
	Token   string
	BaseURL string

	// Provider rate limit (requests per window)
	RateLimit  int
	RateWindow time.Duration
}

// EastmoneyConfig holds Eastmoney quote/kline API configuration
type EastmoneyConfig struct {
	QuoteURL string
	KlineURL string
}

// AnalysisConfig holds thresholds and limits for the fundamental analysis engine.
// Defaults mirror the daily-review rules; all of them are tunable per environment.
type AnalysisConfig struct {
	// DivergenceClassifier
	NearHighProximity    float64 // price/high_52w at or above this counts as "near high"
	ModerateGrowthCutoff float64 // netprofit_yoy (%) below this near a high is a moderate divergence

	// IndustryRanker
	Metric          string  // roe | profit_yoy | gross_margin
	Top20Percentile float64 // percentile at or above this marks a quality stock

	// Risk flagging
	SurgeThreshold     float64 // pct_change_today (%) above this counts as a surge
	SteepDeclineCutoff float64 // netprofit_yoy (%) below this counts as a steep decline

	// PriceRangeResolver
	MinTradingDays int // minimum close prices required in the 52-week window

	// IndicatorFetcher
	MaxPeriods  int // quarterly records fetched per ticker
	MaxAttempts int // attempts for rate-limited fetches (1 initial + retries)

	// Orchestrator
	Workers        int           // concurrent per-ticker pipelines
	FetchTimeout   time.Duration // timeout per external call
	BatchDeadline  time.Duration // overall deadline for one batch run
	PriceSource    string        // db | eastmoney
	InitialBackoff time.Duration // first retry delay after a rate limit
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Tushare: TushareConfig{
			Token:      getEnv("TUSHARE_TOKEN", ""),
			BaseURL:    getEnv("TUSHARE_BASE_URL", "https://api.tushare.pro"),
			RateLimit:  getEnvAsInt("TUSHARE_RATE_LIMIT", 190),
			RateWindow: getEnvAsDuration("TUSHARE_RATE_WINDOW", "1m"),
		},

		Eastmoney: EastmoneyConfig{
			QuoteURL: getEnv("EASTMONEY_QUOTE_URL", "https://push2.eastmoney.com/api/qt/ulist.np/get"),
			KlineURL: getEnv("EASTMONEY_KLINE_URL", "https://push2his.eastmoney.com/api/qt/stock/kline/get"),
		},

		Analysis: AnalysisConfig{
			NearHighProximity:    getEnvAsFloat("ANALYSIS_NEAR_HIGH_PROXIMITY", 0.95),
			ModerateGrowthCutoff: getEnvAsFloat("ANALYSIS_MODERATE_GROWTH_CUTOFF", 10),
			Metric:               getEnv("ANALYSIS_METRIC", "roe"),
			Top20Percentile:      getEnvAsFloat("ANALYSIS_TOP20_PERCENTILE", 80),
			SurgeThreshold:       getEnvAsFloat("ANALYSIS_SURGE_THRESHOLD", 5),
			SteepDeclineCutoff:   getEnvAsFloat("ANALYSIS_STEEP_DECLINE_CUTOFF", -20),
			MinTradingDays:       getEnvAsInt("ANALYSIS_MIN_TRADING_DAYS", 60),
			MaxPeriods:           getEnvAsInt("ANALYSIS_MAX_PERIODS", 8),
			MaxAttempts:          getEnvAsInt("ANALYSIS_MAX_ATTEMPTS", 3),
			Workers:              getEnvAsInt("ANALYSIS_WORKERS", 4),
			FetchTimeout:         getEnvAsDuration("ANALYSIS_FETCH_TIMEOUT", "10s"),
			BatchDeadline:        getEnvAsDuration("ANALYSIS_BATCH_DEADLINE", "5m"),
			PriceSource:          getEnv("ANALYSIS_PRICE_SOURCE", "db"),
			InitialBackoff:       getEnvAsDuration("ANALYSIS_INITIAL_BACKOFF", "1s"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Analysis.PriceSource != "db" && c.Analysis.PriceSource != "eastmoney" {
		return fmt.Errorf("ANALYSIS_PRICE_SOURCE must be one of: db, eastmoney")
	}

	// Database is only required when it is the price source
	if c.Analysis.PriceSource == "db" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when ANALYSIS_PRICE_SOURCE=db")
	}

	if c.Analysis.Workers < 1 {
		return fmt.Errorf("ANALYSIS_WORKERS must be at least 1")
	}

	if c.Analysis.NearHighProximity <= 0 || c.Analysis.NearHighProximity > 1 {
		return fmt.Errorf("ANALYSIS_NEAR_HIGH_PROXIMITY must be in (0, 1]")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
