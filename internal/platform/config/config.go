package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "civicdesk/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	LogLevel      string

	Lock      LockConfig
	Reference ReferenceConfig
	Redis     RedisConfig
	Outbox    OutboxConfig
	RateLimit RateLimitConfig
}

// LockConfig controls the complaint processing lease.
type LockConfig struct {
	LeaseTTL time.Duration
}

// ReferenceConfig controls reference-number allocation.
type ReferenceConfig struct {
	// Location decides which calendar day a complaint belongs to.
	Location *time.Location
}

// RedisConfig holds optional Redis connection settings.
// An empty URL leaves Redis disabled.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OutboxConfig configures the audit outbox relay.
type OutboxConfig struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

// RateLimitConfig sets per-caller request budgets. Reads and writes are
// counted separately over the same window.
type RateLimitConfig struct {
	Disabled      bool
	ReadRequests  int
	WriteRequests int
	Window        time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	loc, err := time.LoadLocation(envOr("REFERENCE_TZ", "UTC"))
	if err != nil {
		return Server{}, fmt.Errorf("load REFERENCE_TZ: %w", err)
	}

	leaseTTL, err := envDuration("LOCK_LEASE_TTL", 15*time.Minute)
	if err != nil {
		return Server{}, err
	}
	if leaseTTL <= 0 {
		return Server{}, fmt.Errorf("LOCK_LEASE_TTL must be positive")
	}

	pollInterval, err := envDuration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return Server{}, err
	}

	rateWindow, err := envDuration("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return Server{}, err
	}

	cfg := Server{
		Addr:          envOr("CIVICDESK_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:     envOr("JWT_ISSUER", "civicdesk-idp"),
		JWTAudience:   envOr("JWT_AUDIENCE", "civicdesk"),
		LogLevel:      envOr("LOG_LEVEL", "info"),
		Lock:          LockConfig{LeaseTTL: leaseTTL},
		Reference:     ReferenceConfig{Location: loc},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Outbox: OutboxConfig{
			Brokers:      splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:        envOr("AUDIT_TOPIC", "civicdesk.audit"),
			PollInterval: pollInterval,
			BatchSize:    envInt("OUTBOX_BATCH_SIZE", 100),
		},
		RateLimit: RateLimitConfig{
			Disabled:      os.Getenv("RATE_LIMIT_DISABLED") == "true",
			ReadRequests:  envInt("RATE_LIMIT_READ", 300),
			WriteRequests: envInt("RATE_LIMIT_WRITE", 60),
			Window:        rateWindow,
		},
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	return pstrings.DedupeAndTrim(strings.Split(raw, ","))
}
