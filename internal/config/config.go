package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	Port        int
	Environment string

	// Ledger
	LedgerRPCURL    string
	SignerRPCURL    string
	ContractAddress string

	// Confirmation
	ConfirmationTimeout time.Duration
	ReceiptPollInterval time.Duration
	AccountPollInterval time.Duration

	// Cache
	RedisURL     string
	CacheEnabled bool

	// Audit
	DatabaseURL  string
	AuditEnabled bool

	// Auth
	JWTSecret string

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	return &Config{
		// Server
		Port:        getEnvInt("PORT", 3002),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Ledger
		LedgerRPCURL:    getEnv("LEDGER_RPC_URL", "http://localhost:8545"),
		SignerRPCURL:    getEnv("SIGNER_RPC_URL", "http://localhost:8545"),
		ContractAddress: getEnv("CONTRACT_ADDRESS", ""),

		// Confirmation
		ConfirmationTimeout: getEnvDuration("CONFIRMATION_TIMEOUT", 2*time.Minute),
		ReceiptPollInterval: getEnvDuration("RECEIPT_POLL_INTERVAL", time.Second),
		AccountPollInterval: getEnvDuration("ACCOUNT_POLL_INTERVAL", 2*time.Second),

		// Cache
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		CacheEnabled: getEnvBool("CACHE_ENABLED", false),

		// Audit
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AuditEnabled: getEnvBool("AUDIT_ENABLED", true),

		// Auth
		JWTSecret: getEnv("JWT_SECRET", ""),

		// CORS
		AllowedOrigins: []string{getEnv("ALLOWED_ORIGIN", "http://localhost:3000")},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
