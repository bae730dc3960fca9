package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"smcbot/internal/adapters/logger"
	"smcbot/internal/ports"
	"smcbot/internal/risk"
	"smcbot/internal/strategy"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market
	Symbols       []string // Sorted, deduplicated, filtered by QuoteCurrency
	QuoteCurrency string
	Interval      string // Kline interval, e.g. "15m"
	WindowSize    int    // Candles kept per symbol

	// Trading Parameters
	Leverage       int
	MaxLeverage    int
	MarginPerTrade float64 // USD margin per entry
	MaxPositions   int
	DryRun         bool

	// Strategy Parameters
	SwingLength          int
	OBLookback           int
	OBMaxAgeBars         int // 0 keeps order blocks until invalidated
	ATRPeriod            int
	TPATRMult            float64
	SLATRMult            float64
	OBBufferATRMult      float64
	ConfirmationLookback int
	RequireFVGConfluence bool
	EnforceMinDistance   bool

	// Scheduling and exchange calls
	CycleInterval   time.Duration
	CallTimeout     time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RateLimit       time.Duration // Minimum spacing between REST calls
	BalanceCooldown time.Duration

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
	LogFile  string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Set but unparsable values are errors, never a silent default.
	intVar := func(key string, defaultValue int) int {
		v, err := getEnvAsIntRequired(key, defaultValue)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	floatVar := func(key string, defaultValue float64) float64 {
		v, err := getEnvAsFloatRequired(key, defaultValue)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}
	boolVar := func(key string, defaultValue bool) bool {
		v, err := getEnvAsBoolRequired(key, defaultValue)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
		}
		return v
	}

	// Trading mode first: API keys are only needed for live trading.
	cfg.DryRun = boolVar("DRY_RUN", true)

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = boolVar("IS_TESTNET", true) // Default to testnet for safety
	if !cfg.DryRun {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set when DRY_RUN=false")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set when DRY_RUN=false")
		}
	}

	// Market
	cfg.QuoteCurrency = strings.ToUpper(getEnv("QUOTE_CURRENCY", "USDT"))
	cfg.Symbols = parseSymbols(getEnv("SYMBOLS", "BTCUSDT,ETHUSDT,SOLUSDT"), cfg.QuoteCurrency)
	if len(cfg.Symbols) == 0 {
		errs = append(errs, fmt.Sprintf("SYMBOLS must contain at least one %s pair", cfg.QuoteCurrency))
	}

	cfg.Interval = getEnv("INTERVAL", "15m")
	if _, ok := intervalDurations[cfg.Interval]; !ok {
		errs = append(errs, fmt.Sprintf("INTERVAL %q is not a supported kline interval", cfg.Interval))
	}

	cfg.WindowSize, err = getEnvAsIntRequired("WINDOW_SIZE", 200)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WINDOW_SIZE: %v", err))
	}

	// Trading Parameters
	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	} else if cfg.Leverage <= 0 {
		errs = append(errs, "LEVERAGE must be positive")
	}

	cfg.MaxLeverage, err = getEnvAsIntRequired("MAX_LEVERAGE", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_LEVERAGE: %v", err))
	} else if cfg.MaxLeverage <= 0 {
		errs = append(errs, "MAX_LEVERAGE must be positive")
	}

	cfg.MarginPerTrade, err = getEnvAsFloatRequired("MARGIN_PER_TRADE", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARGIN_PER_TRADE: %v", err))
	} else if cfg.MarginPerTrade <= 0 {
		errs = append(errs, "MARGIN_PER_TRADE must be positive")
	}

	cfg.MaxPositions, err = getEnvAsIntRequired("MAX_POSITIONS", 3)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_POSITIONS: %v", err))
	} else if cfg.MaxPositions <= 0 {
		errs = append(errs, "MAX_POSITIONS must be positive")
	}

	// Strategy Parameters (using defaults if not set)
	cfg.SwingLength = intVar("SWING_LENGTH", 10)
	cfg.OBLookback = intVar("OB_LOOKBACK", 50)
	cfg.OBMaxAgeBars = intVar("OB_MAX_AGE_BARS", 0)
	cfg.ATRPeriod = intVar("ATR_PERIOD", 14)
	cfg.TPATRMult = floatVar("TP_ATR_MULT", 2.0)
	cfg.SLATRMult = floatVar("SL_ATR_MULT", 1.5)
	cfg.OBBufferATRMult = floatVar("OB_BUFFER_ATR_MULT", 0.2)
	cfg.ConfirmationLookback = intVar("CONFIRMATION_LOOKBACK", 30)
	cfg.RequireFVGConfluence = boolVar("REQUIRE_FVG_CONFLUENCE", false)
	cfg.EnforceMinDistance = boolVar("ENFORCE_MIN_DISTANCE", false)

	if cfg.SwingLength <= 0 || cfg.OBLookback <= 0 || cfg.ATRPeriod <= 0 || cfg.ConfirmationLookback <= 0 {
		errs = append(errs, "strategy periods (SWING_LENGTH, OB_LOOKBACK, ATR_PERIOD, CONFIRMATION_LOOKBACK) must be positive")
	}
	if cfg.OBMaxAgeBars < 0 {
		errs = append(errs, "OB_MAX_AGE_BARS cannot be negative")
	}
	if cfg.TPATRMult <= 0 || cfg.SLATRMult <= 0 || cfg.OBBufferATRMult <= 0 {
		errs = append(errs, "ATR multipliers (TP_ATR_MULT, SL_ATR_MULT, OB_BUFFER_ATR_MULT) must be positive")
	}
	if minWindow := 2*cfg.SwingLength + 1; cfg.WindowSize < minWindow || cfg.WindowSize <= cfg.ATRPeriod {
		errs = append(errs, fmt.Sprintf("WINDOW_SIZE (%d) must exceed both 2*SWING_LENGTH+1 (%d) and ATR_PERIOD (%d)", cfg.WindowSize, minWindow, cfg.ATRPeriod))
	}

	// Scheduling and exchange calls
	cycleSeconds := intVar("CYCLE_INTERVAL_SECONDS", 60)
	if cycleSeconds <= 0 {
		errs = append(errs, "CYCLE_INTERVAL_SECONDS must be positive")
	}
	cfg.CycleInterval = time.Duration(cycleSeconds) * time.Second

	timeoutSeconds := intVar("CALL_TIMEOUT_SECONDS", 10)
	if timeoutSeconds <= 0 {
		errs = append(errs, "CALL_TIMEOUT_SECONDS must be positive")
	}
	cfg.CallTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.MaxRetries = intVar("MAX_RETRIES", 3)
	if cfg.MaxRetries < 0 {
		errs = append(errs, "MAX_RETRIES cannot be negative")
	}

	retryMs := intVar("RETRY_BASE_DELAY_MS", 500)
	if retryMs <= 0 {
		errs = append(errs, "RETRY_BASE_DELAY_MS must be positive")
	}
	cfg.RetryBaseDelay = time.Duration(retryMs) * time.Millisecond

	rateMs := intVar("RATE_LIMIT_MS", 100)
	if rateMs < 0 {
		errs = append(errs, "RATE_LIMIT_MS cannot be negative")
	}
	cfg.RateLimit = time.Duration(rateMs) * time.Millisecond

	cooldownMinutes := intVar("BALANCE_COOLDOWN_MINUTES", 60)
	if cooldownMinutes < 0 {
		errs = append(errs, "BALANCE_COOLDOWN_MINUTES cannot be negative")
	}
	cfg.BalanceCooldown = time.Duration(cooldownMinutes) * time.Minute

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/smc_bot.db")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFile = getEnv("LOG_FILE", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w: %s", ports.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// RiskConfig returns the sizing parameters for the risk manager.
func (c *Config) RiskConfig() risk.RiskConfig {
	return risk.RiskConfig{
		MarginPerTrade:   c.MarginPerTrade,
		Leverage:         c.Leverage,
		MaxLeverage:      c.MaxLeverage,
		MaxOpenPositions: c.MaxPositions,
		BalanceCooldown:  c.BalanceCooldown,
	}
}

// StrategyConfig returns the entry rules, starting from the strategy defaults.
func (c *Config) StrategyConfig() strategy.Config {
	sc := strategy.DefaultConfig()
	sc.ATRPeriod = c.ATRPeriod
	sc.TPATRMult = c.TPATRMult
	sc.SLATRMult = c.SLATRMult
	sc.OBBufferATRMult = c.OBBufferATRMult
	sc.ConfirmationLookback = c.ConfirmationLookback
	sc.RequireFVGConfluence = c.RequireFVGConfluence
	sc.EnforceMinDistance = c.EnforceMinDistance
	return sc
}

// DetectorConfig returns the signal detector settings.
func (c *Config) DetectorConfig() strategy.DetectorConfig {
	dc := strategy.DefaultDetectorConfig()
	dc.SwingLength = c.SwingLength
	dc.OBLookback = c.OBLookback
	dc.OBMaxAgeBars = c.OBMaxAgeBars
	return dc
}

var intervalDurations = map[string]time.Duration{
	"1m": time.Minute, "3m": 3 * time.Minute, "5m": 5 * time.Minute, "15m": 15 * time.Minute,
	"30m": 30 * time.Minute, "1h": time.Hour, "2h": 2 * time.Hour, "4h": 4 * time.Hour,
	"6h": 6 * time.Hour, "8h": 8 * time.Hour, "12h": 12 * time.Hour, "1d": 24 * time.Hour,
}

// parseSymbols splits a comma list, keeps pairs quoted in quote, and returns
// them sorted without duplicates.
func parseSymbols(raw, quote string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] || !strings.HasSuffix(s, quote) || s == quote {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsInvalid reports whether err came from configuration validation.
func IsInvalid(err error) bool {
	return errors.Is(err, ports.ErrInvalidConfig)
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
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
		// Set but invalid
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

func getEnvAsBoolRequired(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue, fmt.Errorf("invalid boolean value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
