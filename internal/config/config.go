// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mkraev/tgbridge/internal/store"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	// Protocol access credentials and the bridge endpoint.
	APIID     int
	APIHash   string
	BridgeURL string

	// Auto-response collaborator; empty disables auto-replies.
	ResponderURL     string
	ResponderTimeout time.Duration

	Store store.Config

	MaxConnectRetries   int
	ConnectTimeout      time.Duration
	ProbeTimeout        time.Duration
	RetryBackoffStep    time.Duration
	MaintenanceInterval time.Duration

	ReapInterval         time.Duration
	SubscriberStaleAfter time.Duration
	ReplyClearInterval   time.Duration
	EventQueueSize       int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),

		APIID:     getEnvInt("TG_API_ID", 0),
		APIHash:   getEnv("TG_API_HASH", ""),
		BridgeURL: getEnv("BRIDGE_URL", "ws://localhost:9009/bridge"),

		ResponderURL:     getEnv("RESPONDER_URL", ""),
		ResponderTimeout: getEnvDuration("RESPONDER_TIMEOUT", 60*time.Second),

		Store: store.Config{
			Driver:        getEnv("STORE_DRIVER", store.DriverSQLite),
			SQLitePath:    getEnv("DB_PATH", "./data/tgbridge.db"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			RedisTTL:      getEnvDuration("REDIS_SESSION_TTL", 0),
		},

		MaxConnectRetries:   getEnvInt("MAX_CONNECT_RETRIES", 2),
		ConnectTimeout:      getEnvDuration("CONNECT_TIMEOUT", 30*time.Second),
		ProbeTimeout:        getEnvDuration("PROBE_TIMEOUT", 5*time.Second),
		RetryBackoffStep:    getEnvDuration("RETRY_BACKOFF_STEP", 2*time.Second),
		MaintenanceInterval: getEnvDuration("MAINTENANCE_INTERVAL", 5*time.Minute),

		ReapInterval:         getEnvDuration("SUBSCRIBER_REAP_INTERVAL", 60*time.Second),
		SubscriberStaleAfter: getEnvDuration("SUBSCRIBER_STALE_AFTER", 5*time.Minute),
		ReplyClearInterval:   getEnvDuration("REPLY_CLEAR_INTERVAL", 10*time.Minute),
		EventQueueSize:       getEnvInt("EVENT_QUEUE_SIZE", 256),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.BridgeURL == "" {
		return fmt.Errorf("BRIDGE_URL cannot be empty")
	}
	if c.Store.Driver == store.DriverSQLite && c.Store.SQLitePath == "" {
		return fmt.Errorf("DB_PATH cannot be empty with the sqlite store driver")
	}
	if c.Store.Driver == store.DriverRedis && c.Store.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR cannot be empty with the redis store driver")
	}
	if c.MaxConnectRetries <= 0 {
		return fmt.Errorf("MAX_CONNECT_RETRIES must be > 0")
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be > 0")
	}
	return nil
}

// ResponderEnabled returns true if the auto-response collaborator is
// configured.
func (c *Config) ResponderEnabled() bool {
	return c.ResponderURL != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
