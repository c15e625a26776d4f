/*
Package config loads server settings.

ORDER OF PRECEDENCE (lowest first):
  1. Built-in defaults
  2. .env file in the working directory (optional)
  3. Process environment
  4. Command-line flags (-port, -db), applied by cmd/server

KEYS:
  PORT                   HTTP port (8080)
  DB_PATH                SQLite path, ":memory:" allowed (parking.db)
  REDIS_URL              Analytics cache; empty disables it ("")
  ANALYTICS_CACHE_TTL    Cached report lifetime (1m)
  EXPIRY_CHECK_INTERVAL  How often overdue reservations are ended (1m)
  ENABLE_METRICS         Serve /metrics (true)
  ALLOWED_ORIGINS        Comma-separated CORS origins
  USD_TO_INR_RATE        Profile currency conversion rate (83)
*/
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Server
	Port           int
	AllowedOrigins []string

	// Storage
	DBPath string

	// Analytics cache
	RedisURL          string
	AnalyticsCacheTTL time.Duration

	// Background jobs
	ExpiryCheckInterval time.Duration

	// Monitoring
	EnableMetrics bool

	// Presentation
	USDToINRRate decimal.Decimal
}

const (
	defaultOrigins = "http://localhost:5173,http://localhost:8080"
	defaultINRRate = "83"
)

// Load reads .env (if present) and then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() *Config {
	return &Config{
		Port:           getEnvAsInt("PORT", 8080),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", defaultOrigins),

		DBPath: getEnv("DB_PATH", "parking.db"),

		RedisURL:          getEnv("REDIS_URL", ""),
		AnalyticsCacheTTL: getEnvAsDuration("ANALYTICS_CACHE_TTL", "1m"),

		ExpiryCheckInterval: getEnvAsDuration("EXPIRY_CHECK_INTERVAL", "1m"),

		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),

		USDToINRRate: getEnvAsDecimal("USD_TO_INR_RATE", defaultINRRate),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil && duration > 0 {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	if value, err := decimal.NewFromString(getEnv(key, defaultValue)); err == nil && value.IsPositive() {
		return value
	}
	return decimal.RequireFromString(defaultValue)
}

func getEnvAsList(key string, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
