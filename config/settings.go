package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultPort = "8080"

// Settings is the process configuration, read once from the environment.
type Settings struct {
	Port        string
	GoEnv       string
	GCSBucket   string
	PubSubTopic string

	PubSubEnsureTopic bool

	IdempotencyTTL          time.Duration
	IdempotencyReapInterval time.Duration
	IdempotencyReapBatch    int

	RateLimitEnabled     bool
	RateLimitMaxRequests int64
	RateLimitWindow      time.Duration

	CORSAllowedOrigins []string
	SkipMigrations     bool
	OutboxEnabled      bool
	RedisEnabled       bool
}

func init() {
	// Load env from .env
	godotenv.Load()
}

func LoadSettings() Settings {
	port := stringFromEnv("API_PORT", "")
	if port == "" {
		// Cloud Run standard env var.
		port = stringFromEnv("PORT", defaultPort)
	}
	return Settings{
		Port:        port,
		GoEnv:       stringFromEnv("GO_ENV", ""),
		GCSBucket:   stringFromEnv("GCS_BUCKET", ""),
		PubSubTopic: stringFromEnv("PUBSUB_TOPIC", ""),

		PubSubEnsureTopic: boolFromEnv("PUBSUB_ENSURE_TOPIC", false),

		IdempotencyTTL:          time.Duration(intFromEnv("IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
		IdempotencyReapInterval: durationFromEnv("IDEMPOTENCY_REAP_INTERVAL_SECONDS", 300*time.Second),
		IdempotencyReapBatch:    intFromEnv("IDEMPOTENCY_REAP_BATCH", 500),

		RateLimitEnabled:     boolFromEnv("RATE_LIMIT_ENABLED", false),
		RateLimitMaxRequests: int64(intFromEnv("RATE_LIMIT_MAX_REQUESTS", 600)),
		RateLimitWindow:      durationFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),

		CORSAllowedOrigins: SplitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
		SkipMigrations:     boolFromEnv("SKIP_MIGRATIONS", false),
		OutboxEnabled:      boolFromEnv("OUTBOX_ENABLED", true),
		RedisEnabled:       boolFromEnv("REDIS_ENABLED", true),
	}
}

func (s Settings) IsProduction() bool {
	return strings.EqualFold(s.GoEnv, "production")
}

func stringFromEnv(key string, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return def
	}
}

// durationFromEnv reads a whole number of seconds.
func durationFromEnv(key string, def time.Duration) time.Duration {
	n := intFromEnv(key, -1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func SplitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// retryBackoff is the connect-with-retry sleep: 2^attempt seconds capped at 30s.
func retryBackoff(attempt int) time.Duration {
	sleep := time.Second * time.Duration(1<<min(attempt, 5))
	if sleep > 30*time.Second {
		sleep = 30 * time.Second
	}
	return sleep
}
