package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"stocksim/internal/adapters/logger"
)

// Config holds all simulator configuration.
type Config struct {
	// Ledger
	SeedCash decimal.Decimal // Starting (and reset) cash balance
	DBPath   string

	// Market data
	DataDir      string // Directory of per-ticker CSV price history
	OracleMode   string // "random" or "walk"
	OracleSeed   int64  // RNG seed for random sampling
	PriceTimeout time.Duration

	// Automatic exit policy, as fractions of the buy price
	TakeProfit decimal.Decimal // e.g. 0.05 for +5%
	StopLoss   decimal.Decimal // e.g. 0.05 for -5%

	// Trend advisor
	AdvisorShortPeriod int
	AdvisorLongPeriod  int

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	cfg.SeedCash, err = getEnvAsDecimal("SEED_CASH", "10000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SEED_CASH: %v", err))
	} else if cfg.SeedCash.IsNegative() {
		errs = append(errs, "SEED_CASH cannot be negative")
	}

	cfg.DBPath = getEnv("DB_PATH", "./data/portfolio.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	cfg.DataDir = getEnv("DATA_DIR", "./data/real_time")
	if cfg.DataDir == "" {
		errs = append(errs, "DATA_DIR must be set")
	}

	cfg.OracleMode = strings.ToLower(getEnv("ORACLE_MODE", "random"))
	if cfg.OracleMode != "random" && cfg.OracleMode != "walk" {
		errs = append(errs, "ORACLE_MODE must be 'random' or 'walk'")
	}
	cfg.OracleSeed = int64(getEnvAsInt("ORACLE_SEED", 1))

	priceTimeoutSeconds := getEnvAsInt("PRICE_TIMEOUT_SECONDS", 5)
	if priceTimeoutSeconds <= 0 {
		errs = append(errs, "PRICE_TIMEOUT_SECONDS must be positive")
	}
	cfg.PriceTimeout = time.Duration(priceTimeoutSeconds) * time.Second

	cfg.TakeProfit, err = getEnvAsDecimal("TAKE_PROFIT", "0.05")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT: %v", err))
	} else if cfg.TakeProfit.Sign() <= 0 || cfg.TakeProfit.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "TAKE_PROFIT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.StopLoss, err = getEnvAsDecimal("STOP_LOSS", "0.05")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS: %v", err))
	} else if cfg.StopLoss.Sign() <= 0 || cfg.StopLoss.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "STOP_LOSS must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.AdvisorShortPeriod = getEnvAsInt("ADVISOR_SHORT_PERIOD", 5)
	cfg.AdvisorLongPeriod = getEnvAsInt("ADVISOR_LONG_PERIOD", 20)
	if cfg.AdvisorShortPeriod <= 0 || cfg.AdvisorLongPeriod <= 0 {
		errs = append(errs, "advisor SMA periods must be positive")
	}
	if cfg.AdvisorShortPeriod >= cfg.AdvisorLongPeriod {
		errs = append(errs, "ADVISOR_SHORT_PERIOD must be less than ADVISOR_LONG_PERIOD")
	}

	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

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

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
