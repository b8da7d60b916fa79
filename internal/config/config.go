package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/payu-bridge/internal/payu"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	PayuPosID        string
	PayuSignatureKey string
	PayuClientID     string
	PayuClientSecret string
	PayuMode         string

	WebhookMaxBodyBytes int64
	OrderLockTTL        time.Duration
	RemoteCancelTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:         k.String("DATABASE_URL"),
		RedisURL:            k.String("REDIS_URL"),
		PayuPosID:           strings.TrimSpace(k.String("PAYU_POS_ID")),
		PayuSignatureKey:    strings.TrimSpace(k.String("PAYU_SIGNATURE_KEY")),
		PayuClientID:        strings.TrimSpace(k.String("PAYU_CLIENT_ID")),
		PayuClientSecret:    strings.TrimSpace(k.String("PAYU_CLIENT_SECRET")),
		PayuMode:            valueOrDefault(strings.ToLower(strings.TrimSpace(k.String("PAYU_MODE"))), "test"),
		WebhookMaxBodyBytes: parseInt64(k.String("WEBHOOK_MAX_BODY_BYTES"), 1<<20),
		OrderLockTTL:        parseDuration(k.String("ORDER_LOCK_TTL"), "30s"),
		RemoteCancelTimeout: parseDuration(k.String("REMOTE_CANCEL_TIMEOUT"), "10s"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PayuPosID == "" {
		return nil, errors.New("PAYU_POS_ID is required")
	}
	if cfg.PayuSignatureKey == "" {
		return nil, errors.New("PAYU_SIGNATURE_KEY is required")
	}
	if cfg.PayuMode != "test" && cfg.PayuMode != "live" {
		return nil, fmt.Errorf("PAYU_MODE must be test or live, got %q", cfg.PayuMode)
	}

	return cfg, nil
}

// Gateway returns the immutable PayU gateway configuration derived from the
// loaded environment.
func (c *Config) Gateway() payu.GatewayConfig {
	return payu.GatewayConfig{
		PosID:        c.PayuPosID,
		SignatureKey: c.PayuSignatureKey,
		ClientID:     c.PayuClientID,
		ClientSecret: c.PayuClientSecret,
		Mode:         c.PayuMode,
	}
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt64(value string, fallback int64) int64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	var parsed int64
	if _, err := fmt.Sscanf(trimmed, "%d", &parsed); err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
