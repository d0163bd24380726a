package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != 3002 {
		t.Errorf("Port = %d, want 3002", cfg.Port)
	}
	if cfg.LedgerRPCURL != "http://localhost:8545" {
		t.Errorf("LedgerRPCURL = %s", cfg.LedgerRPCURL)
	}
	if cfg.ConfirmationTimeout != 2*time.Minute {
		t.Errorf("ConfirmationTimeout = %s, want 2m", cfg.ConfirmationTimeout)
	}
	if cfg.ReceiptPollInterval != time.Second {
		t.Errorf("ReceiptPollInterval = %s, want 1s", cfg.ReceiptPollInterval)
	}
	if cfg.CacheEnabled {
		t.Error("cache enabled by default")
	}
	if !cfg.AuditEnabled {
		t.Error("audit disabled by default")
	}
	if len(cfg.AllowedOrigins) != 1 {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CONTRACT_ADDRESS", "0x1000000000000000000000000000000000000001")
	t.Setenv("CONFIRMATION_TIMEOUT", "45s")
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.ContractAddress != "0x1000000000000000000000000000000000000001" {
		t.Errorf("ContractAddress = %s", cfg.ContractAddress)
	}
	if cfg.ConfirmationTimeout != 45*time.Second {
		t.Errorf("ConfirmationTimeout = %s, want 45s", cfg.ConfirmationTimeout)
	}
	if !cfg.CacheEnabled {
		t.Error("CACHE_ENABLED=true not honored")
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("JWTSecret = %s", cfg.JWTSecret)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("CONFIRMATION_TIMEOUT", "soon")
	t.Setenv("CACHE_ENABLED", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != 3002 {
		t.Errorf("Port = %d, want default 3002", cfg.Port)
	}
	if cfg.ConfirmationTimeout != 2*time.Minute {
		t.Errorf("ConfirmationTimeout = %s, want default 2m", cfg.ConfirmationTimeout)
	}
	if cfg.CacheEnabled {
		t.Error("malformed CACHE_ENABLED flipped the default")
	}
}
