package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment
// variables. Every field has a sensible default; DATABASE_URL and
// TRIGGER_TOKEN are required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Tenant registry database
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Queue store
	RedisURL string
	QueueTTL time.Duration

	// Upstream analysis service
	AnalysisBaseURL     string
	AnalysisTimeout     time.Duration
	AnalysisMaxAttempts int
	// Backoff schedule when the upstream signals transient overload
	// without suggesting its own delay: index 0 = first retry, etc.
	AnalysisBackoff []time.Duration
	RetryAfterCap   time.Duration

	// Per-tenant delivery API
	DeliveryBaseURL    string
	DeliveryTimeout    time.Duration
	DeliveryAttempts   int
	DeliveryRetryDelay time.Duration
	StatusMessageLimit int

	// Engine
	ChunkSize   int
	TickerDelay time.Duration
	DryRun      bool

	// Trigger
	TriggerToken string
	TriggerCron  string // empty = external scheduler only

	// Admin notification sink (optional)
	NotifyWebhookURL string
	NotifyTimeout    time.Duration
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	token := os.Getenv("TRIGGER_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TRIGGER_TOKEN is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 15*time.Minute), // one chunk runs inside a request
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueTTL: getDuration("QUEUE_TTL", 24*time.Hour),

		AnalysisBaseURL:     getEnv("ANALYSIS_BASE_URL", "http://localhost:9090"),
		AnalysisTimeout:     getDuration("ANALYSIS_TIMEOUT", 120*time.Second),
		AnalysisMaxAttempts: getInt("ANALYSIS_MAX_RETRIES", 3),
		AnalysisBackoff: []time.Duration{
			getDuration("ANALYSIS_BACKOFF_1", 2*time.Second),
			getDuration("ANALYSIS_BACKOFF_2", 4*time.Second),
			getDuration("ANALYSIS_BACKOFF_3", 8*time.Second),
		},
		RetryAfterCap: getDuration("RETRY_AFTER_CAP", 60*time.Second),

		DeliveryBaseURL:    getEnv("DELIVERY_BASE_URL", "http://localhost:9091"),
		DeliveryTimeout:    getDuration("DELIVERY_TIMEOUT", 30*time.Second),
		DeliveryAttempts:   getInt("DELIVERY_ATTEMPTS", 3),
		DeliveryRetryDelay: getDuration("DELIVERY_RETRY_DELAY", 500*time.Millisecond),
		StatusMessageLimit: getInt("STATUS_MESSAGE_LIMIT", 2000),

		ChunkSize:   getInt("CHUNK_SIZE", 8),
		TickerDelay: getDuration("TICKER_DELAY", 8*time.Second),
		DryRun:      getBool("DRY_RUN", false),

		TriggerToken: token,
		TriggerCron:  getEnv("TRIGGER_CRON", ""),

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyTimeout:    getDuration("NOTIFY_TIMEOUT", 10*time.Second),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
