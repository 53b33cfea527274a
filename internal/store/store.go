// Package store provides durable persistence for session records.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mkraev/tgbridge/internal/domain"
)

// Repository defines the interface for persisting session records.
// The store is externally consistent, last-write-wins per session id.
type Repository interface {
	// GetSession retrieves a session record by id.
	// Returns (nil, nil) if the record does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error)

	// SetSession creates or replaces a session record.
	SetSession(ctx context.Context, rec *domain.SessionRecord) error

	// DeleteSession removes a session record. Returns true if a record
	// existed.
	DeleteSession(ctx context.Context, sessionID string) (bool, error)

	// ListSessions returns all persisted session records.
	ListSessions(ctx context.Context) ([]*domain.SessionRecord, error)

	// Ping verifies store connectivity.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}

// Driver names accepted by New.
const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// Config selects and configures a store driver.
type Config struct {
	Driver        string
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration
}

// New creates a Repository for the configured driver.
func New(cfg Config) (Repository, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLite(cfg.SQLitePath)
	case DriverRedis:
		return NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
