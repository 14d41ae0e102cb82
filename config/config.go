package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradingArena/internal/adapters/logger"
)

// Price source kinds.
const (
	PriceSourceSynthetic = "synthetic"
	PriceSourceBinance   = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Transport
	HTTPAddr string

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // std or zap

	// Session policy
	StartingCapital  float64
	MinNotional      float64 // Smallest accepted spend or sale proceeds
	MinTokens        float64 // Smallest accepted token amount per sell
	FractionMin      float64 // Lower bound of the sampled buy/sell fraction
	FractionMax      float64
	SessionDuration  time.Duration // Auto-expiry countdown armed on roster load
	ExpiryRetryDelay time.Duration // Re-arm delay after a failed expiry settlement

	// Pricing gate
	PriceTimeout  time.Duration
	PriceMaxTries int
	PriceSource   string

	// Synthetic feed
	SyntheticStartPrice float64
	SyntheticVolatility float64 // Max relative move per tick
	RandomSeed          int64   // 0 seeds from the clock

	// Binance API (public price endpoints work without keys)
	APIKey    string
	SecretKey string
	IsTestnet bool
	Symbol    string

	// Optional roster auto-loaded at startup
	RosterFile string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8000")

	cfg.DBPath = getEnv("DB_PATH", "./data/arena.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "std"))
	if cfg.LogFormat != "std" && cfg.LogFormat != "zap" {
		errs = append(errs, "LOG_FORMAT must be std or zap")
	}

	// Session policy
	cfg.StartingCapital, err = getEnvAsFloatRequired("STARTING_CAPITAL", 1000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STARTING_CAPITAL: %v", err))
	} else if cfg.StartingCapital <= 0 {
		errs = append(errs, "STARTING_CAPITAL must be positive")
	}

	cfg.MinNotional, err = getEnvAsFloatRequired("MIN_NOTIONAL", 0.01)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_NOTIONAL: %v", err))
	} else if cfg.MinNotional < 0 {
		errs = append(errs, "MIN_NOTIONAL cannot be negative")
	}

	cfg.MinTokens, err = getEnvAsFloatRequired("MIN_TOKENS", 0.000001)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_TOKENS: %v", err))
	} else if cfg.MinTokens < 0 {
		errs = append(errs, "MIN_TOKENS cannot be negative")
	}

	cfg.FractionMin, err = getEnvAsFloatRequired("FRACTION_MIN", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FRACTION_MIN: %v", err))
	}
	cfg.FractionMax, err = getEnvAsFloatRequired("FRACTION_MAX", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FRACTION_MAX: %v", err))
	}
	if cfg.FractionMin <= 0 || cfg.FractionMax > 1 || cfg.FractionMin > cfg.FractionMax {
		errs = append(errs, "fractions must satisfy 0 < FRACTION_MIN <= FRACTION_MAX <= 1")
	}

	sessionSeconds, err := getEnvAsIntRequired("SESSION_DURATION_SECONDS", 600)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SESSION_DURATION_SECONDS: %v", err))
	} else if sessionSeconds <= 0 {
		errs = append(errs, "SESSION_DURATION_SECONDS must be positive")
	}
	cfg.SessionDuration = time.Duration(sessionSeconds) * time.Second

	retrySeconds := getEnvAsInt("EXPIRY_RETRY_SECONDS", 5)
	if retrySeconds <= 0 {
		errs = append(errs, "EXPIRY_RETRY_SECONDS must be positive")
	}
	cfg.ExpiryRetryDelay = time.Duration(retrySeconds) * time.Second

	// Pricing gate
	timeoutSeconds := getEnvAsInt("PRICE_TIMEOUT_SECONDS", 5)
	if timeoutSeconds <= 0 {
		errs = append(errs, "PRICE_TIMEOUT_SECONDS must be positive")
	}
	cfg.PriceTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.PriceMaxTries = getEnvAsInt("PRICE_MAX_TRIES", 3)
	if cfg.PriceMaxTries <= 0 {
		errs = append(errs, "PRICE_MAX_TRIES must be positive")
	}

	cfg.PriceSource = strings.ToLower(getEnv("PRICE_SOURCE", PriceSourceSynthetic))
	if cfg.PriceSource != PriceSourceSynthetic && cfg.PriceSource != PriceSourceBinance {
		errs = append(errs, "PRICE_SOURCE must be synthetic or binance")
	}

	cfg.SyntheticStartPrice, err = getEnvAsFloatRequired("SYNTHETIC_START_PRICE", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYNTHETIC_START_PRICE: %v", err))
	} else if cfg.SyntheticStartPrice <= 0 {
		errs = append(errs, "SYNTHETIC_START_PRICE must be positive")
	}

	cfg.SyntheticVolatility, err = getEnvAsFloatRequired("SYNTHETIC_VOLATILITY", 0.02)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYNTHETIC_VOLATILITY: %v", err))
	} else if cfg.SyntheticVolatility < 0 || cfg.SyntheticVolatility >= 1 {
		errs = append(errs, "SYNTHETIC_VOLATILITY must be in [0, 1)")
	}

	cfg.RandomSeed, err = getEnvAsInt64Required("RANDOM_SEED", 0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RANDOM_SEED: %v", err))
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.PriceSource == PriceSourceBinance && cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set for the binance price source")
	}

	cfg.RosterFile = getEnv("ROSTER_FILE", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
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

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Set but invalid is an error, unlike getEnvAsInt
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsInt64Required(key string, defaultValue int64) (int64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
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
