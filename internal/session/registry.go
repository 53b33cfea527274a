// Package session owns the in-memory registry of live messaging sessions
// and the supervisor that keeps their protocol connections alive.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkraev/tgbridge/internal/domain"
	"github.com/mkraev/tgbridge/internal/protocol"
	"github.com/mkraev/tgbridge/internal/store"
)

var (
	// ErrSessionNotFound indicates the session id is unknown to both the
	// cache and the durable store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotAuthenticated indicates a clientless session that never
	// completed authentication; there is nothing to reconnect.
	ErrNotAuthenticated = errors.New("session not authenticated")

	// ErrNoAPICredentials indicates the protocol access credentials are
	// not configured, so clients cannot be reconstructed at all.
	ErrNoAPICredentials = errors.New("protocol API credentials not configured")

	// ErrNoStoredCredentials indicates the session record carries no
	// credential blob to reconstruct a client from.
	ErrNoStoredCredentials = errors.New("no stored session credentials")
)

// Session pairs a durable session record with its live protocol client.
// The Client handle may be nil: an authenticated record whose client could
// not be reconstructed stays usable for reads, and the supervisor is the
// completing authority for connections. Fields are mutated only through
// Registry methods.
type Session struct {
	Record domain.SessionRecord
	Client protocol.Client
}

// Connected reports whether the session has a live, connected client.
func (s *Session) Connected() bool {
	return s != nil && s.Client != nil && s.Client.Connected()
}

// AccessCredentials are the configured protocol access credentials used
// alongside a stored credential blob to reconstruct clients.
type AccessCredentials struct {
	APIID   int
	APIHash string
}

// Registry is the single owner of in-memory session state. It mediates all
// reads and writes to the durable store and reconstructs protocol clients
// from persisted credentials when one is needed but absent.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	repo           store.Repository
	dialer         protocol.Dialer
	creds          AccessCredentials
	connectTimeout time.Duration
	logger         *slog.Logger
}

// NewRegistry creates a session registry over the given durable store.
func NewRegistry(repo store.Repository, dialer protocol.Dialer, creds AccessCredentials, connectTimeout time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	return &Registry{
		sessions:       make(map[string]*Session),
		repo:           repo,
		dialer:         dialer,
		creds:          creds,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// Get returns the session for id, loading it from the durable store on a
// cache miss. If the stored record is authenticated but carries no live
// client, Get attempts to reconstruct and connect one; reconstruction
// failure does not fail the read — the session comes back clientless and
// the caller completes the connection through the supervisor.
// Returns (nil, nil) when the session does not exist.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if ok {
		return sess, nil
	}

	rec, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if rec == nil {
		return nil, nil
	}

	sess = &Session{Record: *rec}
	if rec.Authenticated && rec.HasCredentials() {
		client, err := r.Activate(ctx, rec)
		if err != nil {
			r.logger.Warn("failed to reconstruct protocol client, returning clientless session",
				"session_id", sessionID, "error", err)
		} else {
			sess.Client = client
		}
	}

	r.mu.Lock()
	// Another goroutine may have populated the cache while we were
	// connecting; keep the first entry so its client is not orphaned.
	if existing, ok := r.sessions[sessionID]; ok {
		r.mu.Unlock()
		if sess.Client != nil {
			disconnectQuietly(sess.Client, r.logger)
		}
		return existing, nil
	}
	r.sessions[sessionID] = sess
	r.mu.Unlock()

	return sess, nil
}

// Activate reconstructs a connected protocol client from a session record's
// stored credentials. It is the effectful half of the two-phase load; the
// record itself is not mutated.
func (r *Registry) Activate(ctx context.Context, rec *domain.SessionRecord) (protocol.Client, error) {
	if r.creds.APIID == 0 || r.creds.APIHash == "" {
		return nil, ErrNoAPICredentials
	}
	if !rec.HasCredentials() {
		return nil, ErrNoStoredCredentials
	}

	client, err := r.dialer.Dial(ctx, protocol.DialConfig{
		APIID:          r.creds.APIID,
		APIHash:        r.creds.APIHash,
		CredentialBlob: rec.CredentialBlob,
		ConnectTimeout: r.connectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("dial protocol client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		disconnectQuietly(client, r.logger)
		return nil, fmt.Errorf("connect protocol client: %w", err)
	}

	return client, nil
}

// Set persists the session and updates the cache. If a live authenticated
// client is present, its session string is serialized first so the stored
// blob alone is sufficient to reconstruct the client later. Store failures
// propagate and leave the cache untouched.
func (r *Registry) Set(ctx context.Context, sess *Session) error {
	if sess.Client != nil && sess.Record.Authenticated {
		blob, err := sess.Client.ExportSession(ctx)
		if err != nil {
			r.logger.Warn("failed to export session string, persisting previous blob",
				"session_id", sess.Record.SessionID, "error", err)
		} else {
			sess.Record.CredentialBlob = blob
		}
	}

	now := time.Now()
	if sess.Record.CreatedAt.IsZero() {
		sess.Record.CreatedAt = now
	}
	sess.Record.UpdatedAt = now

	if err := r.repo.SetSession(ctx, &sess.Record); err != nil {
		return fmt.Errorf("persist session %s: %w", sess.Record.SessionID, err)
	}

	r.mu.Lock()
	r.sessions[sess.Record.SessionID] = sess
	r.mu.Unlock()
	return nil
}

// Delete removes the session from the cache and the durable store,
// disconnecting any live client first. Returns true if a session existed
// in either place.
func (r *Registry) Delete(ctx context.Context, sessionID string) bool {
	r.mu.Lock()
	sess, cached := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if cached && sess.Client != nil {
		disconnectQuietly(sess.Client, r.logger)
	}

	stored, err := r.repo.DeleteSession(ctx, sessionID)
	if err != nil {
		r.logger.Error("failed to delete session from store", "session_id", sessionID, "error", err)
	}
	return cached || stored
}

// List returns summaries of all persisted sessions, with live connection
// state filled in from the cache.
func (r *Registry) List(ctx context.Context) ([]domain.SessionSummary, error) {
	recs, err := r.repo.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	summaries := make([]domain.SessionSummary, 0, len(recs))
	for _, rec := range recs {
		r.mu.RLock()
		sess := r.sessions[rec.SessionID]
		r.mu.RUnlock()
		summaries = append(summaries, domain.SessionSummary{
			SessionID:     rec.SessionID,
			PhoneNumber:   rec.PhoneNumber,
			Username:      rec.Username,
			Authenticated: rec.Authenticated,
			Connected:     sess.Connected(),
			UpdatedAt:     rec.UpdatedAt,
		})
	}
	return summaries, nil
}

// Cached returns the in-memory session for id without touching the durable
// store, or nil.
func (r *Registry) Cached(sessionID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[sessionID]
}

// CachedIDs returns a snapshot of all cached session ids, safe to iterate
// while the cache mutates.
func (r *Registry) CachedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// StoreClient publishes a freshly built client handle for a cached session.
func (r *Registry) StoreClient(sessionID string, client protocol.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[sessionID]; ok {
		sess.Client = client
	}
}

// DiscardClient disconnects and drops the session's client handle so the
// next connection attempt starts clean.
func (r *Registry) DiscardClient(sessionID string) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	var client protocol.Client
	if ok {
		client = sess.Client
		sess.Client = nil
	}
	r.mu.Unlock()

	if client != nil {
		disconnectQuietly(client, r.logger)
	}
}

func disconnectQuietly(client protocol.Client, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Debug("failed to disconnect protocol client", "error", err)
	}
}
