// Package config loads engine configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	ListenAddr string

	// StoreMode selects the persistence backend: "memory" or "postgres".
	StoreMode     string
	PostgresDSN   string
	ClickHouseDSN string

	// FeedMode selects the price source: "ws" or "simulated".
	FeedMode     string
	FeedEndpoint string
	FeedAppID    string
	SimSeed      int64

	// ProviderMode selects the strategy source: "http" or "stub".
	ProviderMode     string
	StrategyEndpoint string
	StrategyTimeout  time.Duration

	TickInterval     time.Duration
	PayoutMultiplier float64
	StopLossFraction float64
	WinProbability   float64
	PriceTimeout     time.Duration

	MetricsNamespace string
}

func Load() Config {
	return Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		StoreMode:        getEnv("STORE_MODE", "memory"),
		PostgresDSN:      getEnv("POSTGRES_DSN", ""),
		ClickHouseDSN:    getEnv("CLICKHOUSE_DSN", ""),
		FeedMode:         getEnv("FEED_MODE", "simulated"),
		FeedEndpoint:     getEnv("FEED_ENDPOINT", "wss://ws.derivws.com/websockets/v3"),
		FeedAppID:        getEnv("FEED_APP_ID", "1089"),
		SimSeed:          getInt64("SIM_SEED", time.Now().UnixNano()),
		ProviderMode:     getEnv("PROVIDER_MODE", "http"),
		StrategyEndpoint: getEnv("STRATEGY_ENDPOINT", "http://localhost:8090/generate"),
		StrategyTimeout:  getDuration("STRATEGY_TIMEOUT", 30*time.Second),
		TickInterval:     getDuration("TICK_INTERVAL", 1500*time.Millisecond),
		PayoutMultiplier: getFloat("PAYOUT_MULTIPLIER", 0.85),
		StopLossFraction: getFloat("STOP_LOSS_FRACTION", 0.05),
		WinProbability:   getFloat("WIN_PROBABILITY", 0.70),
		PriceTimeout:     getDuration("PRICE_TIMEOUT", 15*time.Second),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "tradesim"),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
