// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Broker credentials
	FeedBaseURL    string
	FeedWSURL      string
	FeedAPIKey     string
	FeedClientCode string
	FeedPassword   string
	FeedTOTPSecret string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string

	// Instances: comma-separated symbols, one pipeline per symbol
	Symbols  string
	Interval string

	// Strategy parameters
	Length         int
	Period         int
	Multiplier     float64
	FastMultiplier float64
	ScalpPeriod    int

	// Trading parameters
	InitialCapital float64
	RiskPerTrade   float64
	RewardMultiple float64
	UseScalpMode   bool
	UseLeverage    bool
	Leverage       float64
	SlippageBps    float64

	// Warmup history fetched at startup, in candles
	HistoryLimit int

	// Engine checkpoint interval in seconds
	SnapshotIntervalS int
}

// Load reads configuration from environment variables. Broker credentials
// are required; everything else has defaults.
func Load() *Config {
	return &Config{
		FeedBaseURL:    mustEnv("FEED_BASE_URL"),
		FeedWSURL:      mustEnv("FEED_WS_URL"),
		FeedAPIKey:     mustEnv("FEED_API_KEY"),
		FeedClientCode: mustEnv("FEED_CLIENT_CODE"),
		FeedPassword:   mustEnv("FEED_PASSWORD"),
		FeedTOTPSecret: mustEnv("FEED_TOTP_SECRET"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/trendcore.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		Symbols:  getEnv("SYMBOLS", "BTCUSDT"),
		Interval: getEnv("INTERVAL", "1h"),

		Length:         getEnvInt("STRAT_LENGTH", 6),
		Period:         getEnvInt("STRAT_PERIOD", 16),
		Multiplier:     getEnvFloat("STRAT_MULTIPLIER", 9.0),
		FastMultiplier: getEnvFloat("STRAT_FAST_MULTIPLIER", 5.1),
		ScalpPeriod:    getEnvInt("STRAT_SCALP_PERIOD", 10),

		InitialCapital: getEnvFloat("INITIAL_CAPITAL", 1000),
		RiskPerTrade:   getEnvFloat("RISK_PER_TRADE", 2.5),
		RewardMultiple: getEnvFloat("REWARD_MULTIPLE", 1.5),
		UseScalpMode:   getEnvBool("USE_SCALP_MODE", false),
		UseLeverage:    getEnvBool("USE_LEVERAGE", false),
		Leverage:       getEnvFloat("LEVERAGE", 1),
		SlippageBps:    getEnvFloat("SLIPPAGE_BPS", 0),

		HistoryLimit:      getEnvInt("HISTORY_LIMIT", 200),
		SnapshotIntervalS: getEnvInt("SNAPSHOT_INTERVAL_S", 60),
	}
}

// ParseSymbols splits the Symbols string into a cleaned slice.
func (c *Config) ParseSymbols() []string {
	parts := strings.Split(c.Symbols, ",")
	syms := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			syms = append(syms, p)
		}
	}
	return syms
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid int for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid float for %s: %q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}
