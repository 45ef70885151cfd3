package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// MemoryDatabaseURL selects the in-process store instead of PostgreSQL.
const MemoryDatabaseURL = "memory://"

// Config holds application configuration values loaded from environment variables.
type Config struct {
	DatabaseURL          string
	MigrateOnStart       bool
	JWTSecret            string
	HTTPPort             string
	TokenExpiration      time.Duration
	GuestTokenExpiration time.Duration
	EncryptionKey        []byte // Raw key bytes (32 for AES-256)
	AllowedOrigins       []string

	FreeMessageLimit int
	PromptsFile      string // optional YAML override of the per-mode prompts

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIMaxTokens int

	StripeSecretKey     string
	StripePriceID       string
	StripeWebhookSecret string
	AppBaseURL          string // used for checkout success/cancel and portal return URLs
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded, using environment variables only", zap.Error(err))
	}

	cfg := &Config{
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		PromptsFile:         getEnv("PROMPTS_FILE", ""),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripePriceID:       getEnv("STRIPE_PRICE_ID", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		AppBaseURL:          strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:5173"), "/"),
		AllowedOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment variable is not set")
	}

	var err error
	if cfg.MigrateOnStart, err = getBool("MIGRATE_ON_START", false); err != nil {
		return nil, err
	}
	if cfg.TokenExpiration, err = getHours("JWT_EXPIRATION_HOURS", 24); err != nil {
		return nil, err
	}
	if cfg.GuestTokenExpiration, err = getHours("GUEST_TOKEN_EXPIRATION_HOURS", 24*30); err != nil {
		return nil, err
	}
	if cfg.FreeMessageLimit, err = getInt("FREE_MESSAGE_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.FreeMessageLimit <= 0 {
		return nil, fmt.Errorf("FREE_MESSAGE_LIMIT must be positive, got %d", cfg.FreeMessageLimit)
	}
	if cfg.OpenAIMaxTokens, err = getInt("OPENAI_MAX_TOKENS", 512); err != nil {
		return nil, err
	}

	// The key MUST be 64 hex characters for 32 bytes.
	encryptionKeyHex := getEnv("ENCRYPTION_KEY", "")
	if encryptionKeyHex == "" {
		return nil, errors.New("ENCRYPTION_KEY environment variable is not set")
	}
	cfg.EncryptionKey, err = hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ENCRYPTION_KEY from hex: %w", err)
	}
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be 32 bytes (64 hex characters) long, got %d bytes", len(cfg.EncryptionKey))
	}

	logger.Info("configuration loaded",
		zap.String("port", cfg.HTTPPort),
		zap.Bool("memory_store", cfg.UsesMemoryStore()),
		zap.Duration("token_expiration", cfg.TokenExpiration),
		zap.Int("free_message_limit", cfg.FreeMessageLimit),
		zap.String("openai_model", cfg.OpenAIModel),
		zap.Bool("billing_enabled", cfg.BillingEnabled()))

	return cfg, nil
}

// UsesMemoryStore reports whether DATABASE_URL selects the in-process store.
func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseURL == MemoryDatabaseURL
}

// BillingEnabled reports whether the payment provider is configured.
func (c *Config) BillingEnabled() bool {
	return c.StripeSecretKey != "" && c.StripePriceID != ""
}

// ClientConfig configures the terminal chat client.
type ClientConfig struct {
	APIURL     string
	StatePath  string // local key/value file
	LogPath    string
	AllowGuest bool
}

// LoadClientConfig reads the chat client's settings.
func LoadClientConfig() (*ClientConfig, error) {
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cfg := &ClientConfig{
		APIURL:    strings.TrimRight(getEnv("SOFTSPACE_API_URL", "http://localhost:8080"), "/"),
		StatePath: getEnv("SOFTSPACE_STATE_PATH", filepath.Join(home, ".softspace", "state.db")),
		LogPath:   getEnv("SOFTSPACE_LOG_PATH", filepath.Join(home, ".softspace", "client.log")),
	}
	if cfg.AllowGuest, err = getBool("SOFTSPACE_ALLOW_GUEST", true); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
// An empty variable counts as unset.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getHours(key string, fallback int) (time.Duration, error) {
	h, err := getInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(h) * time.Hour, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
