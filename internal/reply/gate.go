// Package reply gates automated replies and calls the external
// auto-response collaborator.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultClearInterval = 10 * time.Minute

// Gate is a time-bounded idempotency cache ensuring at most one automated
// reply is sent per (session, chat, message) triple. The whole cache is
// cleared on a fixed interval rather than expiring per key: the dedup
// window only needs to cover duplicated push delivery.
type Gate struct {
	mu            sync.Mutex
	sent          map[string]bool
	clearInterval time.Duration
	logger        *slog.Logger
}

// NewGate creates a reply gate. A non-positive interval falls back to the
// 10 minute default.
func NewGate(clearInterval time.Duration, logger *slog.Logger) *Gate {
	if clearInterval <= 0 {
		clearInterval = defaultClearInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		sent:          make(map[string]bool),
		clearInterval: clearInterval,
		logger:        logger,
	}
}

// TryAcquire grants permission to reply to the message exactly once per
// clear window. The marker is recorded before the caller attempts the send,
// closing the race where two concurrent deliveries of the same inbound
// event both observe "not yet replied".
func (g *Gate) TryAcquire(sessionID string, chatID, messageID int64) bool {
	key := fmt.Sprintf("%s:%d:%d", sessionID, chatID, messageID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sent[key] {
		return false
	}
	g.sent[key] = true
	return true
}

// Clear wipes the entire cache.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = make(map[string]bool)
}

// Size returns the number of recorded reply markers.
func (g *Gate) Size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sent)
}

// StartCleaner launches the periodic whole-cache clear. Stops when ctx is
// done.
func (g *Gate) StartCleaner(ctx context.Context) {
	ticker := time.NewTicker(g.clearInterval)
	go func() {
		defer ticker.Stop()
		g.logger.Info("reply gate cleaner started", "interval", g.clearInterval)

		for {
			select {
			case <-ticker.C:
				g.Clear()
			case <-ctx.Done():
				g.logger.Info("reply gate cleaner shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
