package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M91.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string

	CatalogGRPCTarget string

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	AllowEphemeralJWT bool

	DefaultMaxActivations int
	EventDedupTTL         time.Duration

	VerifyRateLimitThreshold   int
	ActivateRateLimitThreshold int
	RateLimitWindow            time.Duration

	MaxDBConns          int32
	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxClaimTTL      time.Duration
	OutboxMaxRetries    int
	ConsumerRetryBudget int
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL   string `yaml:"postgres_url"`
		RedisURL      string `yaml:"redis_url"`
		CatalogTarget string `yaml:"catalog_grpc_target"`
	} `yaml:"dependencies"`
	Licensing struct {
		DefaultMaxActivations      int `yaml:"default_max_activations"`
		EventDedupTTLHours         int `yaml:"event_dedup_ttl_hours"`
		VerifyRateLimitThreshold   int `yaml:"verify_rate_limit_threshold"`
		ActivateRateLimitThreshold int `yaml:"activate_rate_limit_threshold"`
		RateLimitWindowSeconds     int `yaml:"rate_limit_window_seconds"`
	} `yaml:"licensing"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                  "M91-License-Service",
		HTTPPort:                   8080,
		GRPCPort:                   9090,
		JWTKeyID:                   "m91-license-key-1",
		AllowEphemeralJWT:          true,
		DefaultMaxActivations:      1,
		EventDedupTTL:              7 * 24 * time.Hour,
		VerifyRateLimitThreshold:   120,
		ActivateRateLimitThreshold: 30,
		RateLimitWindow:            time.Minute,
		MaxDBConns:                 20,
		OutboxPollInterval:         2 * time.Second,
		OutboxBatchSize:            100,
		OutboxClaimTTL:             30 * time.Second,
		OutboxMaxRetries:           5,
		ConsumerRetryBudget:        3,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Dependencies.CatalogTarget != "" {
			cfg.CatalogGRPCTarget = f.Dependencies.CatalogTarget
		}
		if f.Licensing.DefaultMaxActivations > 0 {
			cfg.DefaultMaxActivations = f.Licensing.DefaultMaxActivations
		}
		if f.Licensing.EventDedupTTLHours > 0 {
			cfg.EventDedupTTL = time.Duration(f.Licensing.EventDedupTTLHours) * time.Hour
		}
		if f.Licensing.VerifyRateLimitThreshold > 0 {
			cfg.VerifyRateLimitThreshold = f.Licensing.VerifyRateLimitThreshold
		}
		if f.Licensing.ActivateRateLimitThreshold > 0 {
			cfg.ActivateRateLimitThreshold = f.Licensing.ActivateRateLimitThreshold
		}
		if f.Licensing.RateLimitWindowSeconds > 0 {
			cfg.RateLimitWindow = time.Duration(f.Licensing.RateLimitWindowSeconds) * time.Second
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.CatalogGRPCTarget = envOrDefault("CATALOG_GRPC_TARGET", cfg.CatalogGRPCTarget)
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))

	cfg.DefaultMaxActivations = envInt("DEFAULT_MAX_ACTIVATIONS", cfg.DefaultMaxActivations)
	cfg.EventDedupTTL = time.Duration(envInt("EVENT_DEDUP_TTL_HOURS", int(cfg.EventDedupTTL.Hours()))) * time.Hour
	cfg.VerifyRateLimitThreshold = envInt("VERIFY_RATE_LIMIT_THRESHOLD", cfg.VerifyRateLimitThreshold)
	cfg.ActivateRateLimitThreshold = envInt("ACTIVATE_RATE_LIMIT_THRESHOLD", cfg.ActivateRateLimitThreshold)
	cfg.RateLimitWindow = time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", int(cfg.RateLimitWindow.Seconds()))) * time.Second

	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxClaimTTL = time.Duration(envInt("OUTBOX_CLAIM_TTL_SECONDS", int(cfg.OutboxClaimTTL.Seconds()))) * time.Second
	cfg.OutboxMaxRetries = envInt("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries)
	cfg.ConsumerRetryBudget = envInt("CONSUMER_RETRY_BUDGET", cfg.ConsumerRetryBudget)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
