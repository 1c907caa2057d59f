package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"custodia/internal/domain"
)

// Config captures everything the server needs from the environment. FromEnv
// keeps main lean; every knob has a development default.
type Config struct {
	Addr          string
	JWTSigningKey string

	PostgresDSN  string
	RedisURL     string
	KafkaBrokers []string
	KafkaTopic   string

	// StoreTimeout bounds each call to the persistence collaborator. A
	// timed-out write degrades to memory-only rather than blocking callers.
	StoreTimeout time.Duration

	// BufferCap is the per-subject in-memory event cap (FIFO eviction).
	BufferCap int

	// ConsentValidity is the window within which a non-withdrawn consent
	// counts as active.
	ConsentValidity time.Duration

	// DefaultDataCategory is assigned to unknown field names by the
	// classifier. Policy, not magic.
	DefaultDataCategory domain.DataCategory

	// RetentionRulesPath points at a JSON rules file; empty uses built-ins.
	RetentionRulesPath string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:                envOr("CUSTODIA_ADDR", ":8080"),
		JWTSigningKey:       envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		RedisURL:            os.Getenv("REDIS_URL"),
		KafkaTopic:          envOr("KAFKA_AUDIT_TOPIC", "custodia.audit.events"),
		StoreTimeout:        envDuration("STORE_TIMEOUT", 5*time.Second),
		BufferCap:           envInt("EVENT_BUFFER_CAP", 10000),
		ConsentValidity:     envDuration("CONSENT_VALIDITY", domain.DefaultConsentValidity),
		DefaultDataCategory: domain.CategoryBasicIdentity,
		RetentionRulesPath:  os.Getenv("RETENTION_RULES_PATH"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	if raw := os.Getenv("DEFAULT_DATA_CATEGORY"); raw != "" {
		if c := domain.DataCategory(raw); c.Valid() {
			cfg.DefaultDataCategory = c
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
