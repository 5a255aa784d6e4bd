package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer string // Issuer claim for access tokens

	SigningKeyFile string // Optional: path to a PKCS8 Ed25519 PEM; generated when absent
	SigningKeyID   string // Optional: kid advertised in the JWKS (default: "primary")
	DatabaseFile   string // Optional: path to SQLite database file (default: ./auth.db)
	PepperFile     string // Optional: path to password-hash pepper file (default: ./pepper)

	// Bootstrap seeds a first client registration and user into an empty
	// store, for dev and test environments. Both are skipped when unset.
	BootstrapClientID     string
	BootstrapClientSecret string
	BootstrapUsername     string
	BootstrapPassword     string

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	AuditRetention       time.Duration // Login audit retention (default: 90 days)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:         getEnvOrDefault("AUTH_ISSUER", "gatehouse-auth"),
		SigningKeyFile: os.Getenv("AUTH_SIGNING_KEY_FILE"),
		SigningKeyID:   getEnvOrDefault("AUTH_SIGNING_KEY_ID", "primary"),
		DatabaseFile:   getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:     getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		BootstrapClientID:     os.Getenv("AUTH_BOOTSTRAP_CLIENT_ID"),
		BootstrapClientSecret: os.Getenv("AUTH_BOOTSTRAP_CLIENT_SECRET"),
		BootstrapUsername:     os.Getenv("AUTH_BOOTSTRAP_USERNAME"),
		BootstrapPassword:     os.Getenv("AUTH_BOOTSTRAP_PASSWORD"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		AuditRetention:       getEnvDurationOrDefault("AUDIT_RETENTION", 90*24*time.Hour),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Integer values are read as minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
