package config

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", MemoryDatabaseURL)
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", testKeyHex)
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	for _, key := range []string{"HTTP_PORT", "JWT_EXPIRATION_HOURS", "FREE_MESSAGE_LIMIT", "STRIPE_SECRET_KEY", "STRIPE_PRICE_ID"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig(zap.NewNop())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("unexpected port %q", cfg.HTTPPort)
	}
	if cfg.TokenExpiration != 24*time.Hour {
		t.Fatalf("expected 24h token expiration, got %v", cfg.TokenExpiration)
	}
	if cfg.FreeMessageLimit != 20 {
		t.Fatalf("expected default free limit 20, got %d", cfg.FreeMessageLimit)
	}
	if !cfg.UsesMemoryStore() {
		t.Fatal("expected memory store")
	}
	if cfg.BillingEnabled() {
		t.Fatal("billing should be disabled without stripe keys")
	}
	if len(cfg.EncryptionKey) != 32 {
		t.Fatalf("expected 32 byte key, got %d", len(cfg.EncryptionKey))
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(zap.NewNop()); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadRejectsShortEncryptionKey(t *testing.T) {
	setRequired(t)
	t.Setenv("ENCRYPTION_KEY", "abcd")

	_, err := LoadConfig(zap.NewNop())
	if err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Fatalf("expected key length error, got %v", err)
	}
}

func TestLoadRejectsNonPositiveLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("FREE_MESSAGE_LIMIT", "0")

	if _, err := LoadConfig(zap.NewNop()); err == nil {
		t.Fatal("expected error for zero FREE_MESSAGE_LIMIT")
	}
}

func TestLoadParsesOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := LoadConfig(zap.NewNop())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
}
