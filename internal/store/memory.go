package store

import (
	"context"
	"sync"

	"github.com/mkraev/tgbridge/internal/domain"
)

// MemoryStore implements Repository with an in-process map. Used in tests
// and single-node development setups where persistence is not needed.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.SessionRecord
}

// NewMemory creates a new in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.SessionRecord)}
}

// GetSession retrieves a session record by id.
func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := rec
	return &copied, nil
}

// SetSession creates or replaces a session record.
func (s *MemoryStore) SetSession(ctx context.Context, rec *domain.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[rec.SessionID] = *rec
	return nil
}

// DeleteSession removes a session record.
func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return ok, nil
}

// ListSessions returns all persisted session records.
func (s *MemoryStore) ListSessions(ctx context.Context) ([]*domain.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := make([]*domain.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		copied := rec
		recs = append(recs, &copied)
	}
	return recs, nil
}

// Ping implements Repository.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close implements Repository.
func (s *MemoryStore) Close() error { return nil }
