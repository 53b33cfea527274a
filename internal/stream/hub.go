// Package stream fans normalized events out to per-session streaming
// subscribers (SSE and WebSocket transports to the UI).
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkraev/tgbridge/internal/protocol"
)

// Event types carried in the wire envelope.
const (
	EventMessage   = "message"
	EventLLMResult = "llm_result"
	EventAuthError = "auth_error"
)

const (
	defaultReapInterval = 60 * time.Second
	defaultStaleAfter   = 5 * time.Minute
	subscriberBuffer    = 64
)

// Envelope is the wire record written to every subscriber.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error,omitempty"`
}

// Subscriber is one streaming connection to a UI client. It must never be
// written to after being closed.
type Subscriber struct {
	ID string

	mu         sync.Mutex
	ch         chan []byte
	closed     bool
	lastActive time.Time
}

// Events returns the channel the transport drains to feed its connection.
// The channel is closed when the subscriber is removed from the hub.
func (s *Subscriber) Events() <-chan []byte {
	return s.ch
}

// push delivers a serialized event. Returns false if the subscriber is
// closed or its buffer is full (a stalled transport), in which case the
// caller drops the subscriber.
func (s *Subscriber) push(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- payload:
		s.lastActive = time.Now()
		return true
	default:
		return false
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscriber) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// Hub maintains the per-session subscriber registry and fans events out to
// all of a session's subscribers, reaping dead ones.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[string]*Subscriber

	reapInterval time.Duration
	staleAfter   time.Duration
	logger       *slog.Logger
}

// NewHub creates a broadcast hub. Zero durations fall back to defaults
// (60s reap interval, 5m staleness threshold).
func NewHub(reapInterval, staleAfter time.Duration, logger *slog.Logger) *Hub {
	if reapInterval <= 0 {
		reapInterval = defaultReapInterval
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions:     make(map[string]map[string]*Subscriber),
		reapInterval: reapInterval,
		staleAfter:   staleAfter,
		logger:       logger,
	}
}

// Register opens a new subscriber for a session.
func (h *Hub) Register(sessionID string) *Subscriber {
	sub := &Subscriber{
		ID:         uuid.NewString(),
		ch:         make(chan []byte, subscriberBuffer),
		lastActive: time.Now(),
	}

	h.mu.Lock()
	subs, ok := h.sessions[sessionID]
	if !ok {
		subs = make(map[string]*Subscriber)
		h.sessions[sessionID] = subs
	}
	subs[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Info("stream subscriber registered", "session_id", sessionID, "subscriber_id", sub.ID)
	return sub
}

// Unregister marks the subscriber closed and removes it, dropping the
// session's subscriber list entirely when it empties.
func (h *Hub) Unregister(sessionID string, sub *Subscriber) {
	h.mu.Lock()
	if subs, ok := h.sessions[sessionID]; ok {
		if _, exists := subs[sub.ID]; exists {
			delete(subs, sub.ID)
			if len(subs) == 0 {
				delete(h.sessions, sessionID)
			}
		}
	}
	h.mu.Unlock()

	sub.close()
	h.logger.Info("stream subscriber unregistered", "session_id", sessionID, "subscriber_id", sub.ID)
}

// Broadcast serializes an event envelope and writes it to every non-closed
// subscriber for the session. Subscribers whose delivery fails are removed;
// delivery to the rest continues undisturbed. Broadcasting to a session
// with no subscribers is a no-op.
func (h *Hub) Broadcast(sessionID, eventType string, data any) {
	payload := h.encode(eventType, data)

	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.sessions[sessionID]))
	for _, sub := range h.sessions[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if !sub.push(payload) {
			h.logger.Warn("dropping dead stream subscriber",
				"session_id", sessionID, "subscriber_id", sub.ID)
			h.Unregister(sessionID, sub)
		}
	}
}

// encode marshals the envelope, degrading to a minimal safe record when the
// payload itself cannot be serialized, rather than failing the broadcast.
func (h *Hub) encode(eventType string, data any) []byte {
	env := Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(env)
	if err == nil {
		return payload
	}

	h.logger.Error("event payload not serializable, degrading", "type", eventType, "error", err)
	fallback := Envelope{
		Type:      eventType,
		Data:      nil,
		Timestamp: env.Timestamp,
		Error:     "payload_not_serializable",
	}
	payload, _ = json.Marshal(fallback)
	return payload
}

// AuthFault broadcasts a fatal authentication fault with the reserved
// auth_error event type. Implements session.Broadcaster.
func (h *Hub) AuthFault(sessionID string, fault protocol.Fault) {
	h.Broadcast(sessionID, EventAuthError, fault)
}

// CloseSession forcefully removes every subscriber for a session, e.g. on
// logout.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	subs := h.sessions[sessionID]
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	if len(subs) > 0 {
		h.logger.Info("stream session closed", "session_id", sessionID, "subscribers", len(subs))
	}
}

// SubscriberCount returns the number of live subscribers for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}

// StartReaper launches the periodic reaper that removes subscribers idle
// beyond the staleness threshold, bounding memory growth from abandoned
// transports. Stops when ctx is done.
func (h *Hub) StartReaper(ctx context.Context) {
	ticker := time.NewTicker(h.reapInterval)
	go func() {
		defer ticker.Stop()
		h.logger.Info("subscriber reaper started",
			"interval", h.reapInterval, "stale_after", h.staleAfter)

		for {
			select {
			case <-ticker.C:
				h.ReapStale()
			case <-ctx.Done():
				h.logger.Info("subscriber reaper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// ReapStale removes every subscriber whose last activity exceeds the
// staleness threshold. Lists are snapshotted before destructive iteration.
func (h *Hub) ReapStale() {
	now := time.Now()

	type stale struct {
		sessionID string
		sub       *Subscriber
	}
	var victims []stale

	h.mu.Lock()
	for sessionID, subs := range h.sessions {
		for _, sub := range subs {
			if sub.idleSince(now) > h.staleAfter {
				victims = append(victims, stale{sessionID, sub})
			}
		}
	}
	h.mu.Unlock()

	for _, v := range victims {
		h.logger.Info("reaping stale stream subscriber",
			"session_id", v.sessionID, "subscriber_id", v.sub.ID)
		h.Unregister(v.sessionID, v.sub)
	}
}
