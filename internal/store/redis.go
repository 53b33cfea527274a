package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkraev/tgbridge/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "tgsession:"
	defaultRedisTTL  = 30 * 24 * time.Hour
)

// RedisStore implements Repository using Redis with JSON-encoded records.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis creates a new Redis-backed repository.
func NewRedis(addr, password string, db int, ttl time.Duration) (Repository, error) {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) key(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

// GetSession retrieves a session record by id. Reads refresh the key TTL so
// active accounts never expire out from under their sessions.
func (s *RedisStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var rec domain.SessionRecord
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("decode session record: %w", err)
	}

	// Best effort; a failed refresh only shortens the expiry window.
	_ = s.client.Expire(ctx, s.key(sessionID), s.ttl).Err()

	return &rec, nil
}

// SetSession creates or replaces a session record.
func (s *RedisStore) SetSession(ctx context.Context, rec *domain.SessionRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.SessionID), val, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	deleted, err := s.client.Del(ctx, s.key(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return deleted > 0, nil
}

// ListSessions returns all persisted session records.
func (s *RedisStore) ListSessions(ctx context.Context) ([]*domain.SessionRecord, error) {
	var recs []*domain.SessionRecord

	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		val, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("get session %s: %w", iter.Val(), err)
		}
		var rec domain.SessionRecord
		if err := json.Unmarshal([]byte(val), &rec); err != nil {
			return nil, fmt.Errorf("decode session record %s: %w", iter.Val(), err)
		}
		recs = append(recs, &rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	return recs, nil
}

// Ping verifies store connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
