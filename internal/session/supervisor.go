package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mkraev/tgbridge/internal/protocol"
)

const (
	defaultMaxRetries          = 2
	defaultConnectTimeout      = 30 * time.Second
	defaultProbeTimeout        = 5 * time.Second
	defaultBackoffStep         = 2 * time.Second
	defaultMaintenanceInterval = 5 * time.Minute
)

// Broadcaster receives auth-fault events raised by the supervisor. The hub
// fans them out to the session's streaming subscribers, telling the UI to
// treat the session as logged out.
type Broadcaster interface {
	AuthFault(sessionID string, fault protocol.Fault)
}

// SupervisorConfig tunes retry and timing behavior. Zero values fall back
// to defaults.
type SupervisorConfig struct {
	MaxRetries          int
	ConnectTimeout      time.Duration
	ProbeTimeout        time.Duration
	BackoffStep         time.Duration
	MaintenanceInterval time.Duration
}

func (c *SupervisorConfig) applyDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = defaultBackoffStep
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = defaultMaintenanceInterval
	}
}

// Supervisor ensures sessions have connected protocol clients before use,
// with bounded retries, backoff, and timeout races. Fatal authentication
// faults delete the session and broadcast an auth-fault event.
type Supervisor struct {
	registry    *Registry
	broadcaster Broadcaster
	cfg         SupervisorConfig
	logger      *slog.Logger
}

// NewSupervisor creates a connection supervisor over the registry.
func NewSupervisor(registry *Registry, broadcaster Broadcaster, cfg SupervisorConfig, logger *slog.Logger) *Supervisor {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		registry:    registry,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger,
	}
}

// EnsureConnected guarantees the session's client is connected, retrying up
// to the configured attempt budget. A true return means the client reported
// connected at return time; false means the session is missing, cannot be
// reconstructed, or connection attempts were exhausted.
func (s *Supervisor) EnsureConnected(ctx context.Context, sessionID string) bool {
	return s.EnsureConnectedWithRetries(ctx, sessionID, s.cfg.MaxRetries)
}

// EnsureConnectedWithRetries is EnsureConnected with an explicit per-call
// retry budget.
func (s *Supervisor) EnsureConnectedWithRetries(ctx context.Context, sessionID string, maxRetries int) bool {
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := s.connectOnce(ctx, sessionID)
		if err == nil {
			return true
		}

		// Missing sessions and missing credentials fail fast: retrying
		// cannot produce a client.
		if isFailFast(err) {
			s.logger.Info("connection attempt failed fast", "session_id", sessionID, "error", err)
			return false
		}

		fault := protocol.Classify(err)
		if fault.ShouldLogout {
			s.FailSession(ctx, sessionID, fault)
			return false
		}

		s.logger.Warn("connection attempt failed",
			"session_id", sessionID, "attempt", attempt, "max_retries", maxRetries, "error", err)

		if attempt < maxRetries {
			backoff := s.cfg.BackoffStep * time.Duration(attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return false
			}
		}
	}
	return false
}

// connectOnce performs a single connection attempt. On failure the client
// handle is discarded so the next attempt starts clean.
func (s *Supervisor) connectOnce(ctx context.Context, sessionID string) error {
	sess, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}

	if sess.Client == nil {
		if !sess.Record.Authenticated {
			return ErrNotAuthenticated
		}
		client, err := s.registry.Activate(ctx, &sess.Record)
		if err != nil {
			return err
		}
		s.registry.StoreClient(sessionID, client)
		sess.Client = client
	}

	if sess.Client.Connected() {
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := sess.Client.Connect(connectCtx); err != nil {
		s.registry.DiscardClient(sessionID)
		return err
	}

	// A timed-out connect may still resolve in the background; trust only
	// the client's reported state.
	if !sess.Client.Connected() {
		s.registry.DiscardClient(sessionID)
		return protocol.ErrNotConnected
	}
	return nil
}

// FailSession handles a fatal authentication fault: the session is deleted
// from the registry and an auth-fault event is broadcast so the UI clears
// local state and forces re-authentication.
func (s *Supervisor) FailSession(ctx context.Context, sessionID string, fault protocol.Fault) {
	s.logger.Error("fatal auth fault, deleting session",
		"session_id", sessionID, "error_code", fault.ErrorCode, "message", fault.Message)
	s.registry.Delete(ctx, sessionID)
	if s.broadcaster != nil {
		s.broadcaster.AuthFault(sessionID, fault)
	}
}

// IsHealthy performs a best-effort liveness probe under a short timeout
// without mutating session state. It must not be relied upon to repair
// connections.
func (s *Supervisor) IsHealthy(ctx context.Context, sessionID string) bool {
	sess := s.registry.Cached(sessionID)
	if !sess.Connected() {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()
	_, err := sess.Client.Invoke(probeCtx, protocol.PingRequest{})
	if err != nil {
		s.logger.Debug("liveness probe failed", "session_id", sessionID, "error", err)
		return false
	}
	return true
}

// Start launches the periodic maintenance worker: every interval it sweeps
// the cached sessions and reconnects any with a present-but-disconnected
// client. No live API calls are made beyond the reconnect itself, to avoid
// provoking further faults. The worker stops when ctx is done.
func (s *Supervisor) Start(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MaintenanceInterval)
	go func() {
		defer ticker.Stop()
		s.logger.Info("connection maintenance worker started", "interval", s.cfg.MaintenanceInterval)

		for {
			select {
			case <-ticker.C:
				s.maintainConnections(ctx)
			case <-ctx.Done():
				s.logger.Info("connection maintenance worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func (s *Supervisor) maintainConnections(ctx context.Context) {
	for _, sessionID := range s.registry.CachedIDs() {
		if ctx.Err() != nil {
			return
		}
		sess := s.registry.Cached(sessionID)
		if sess == nil || sess.Client == nil || sess.Client.Connected() {
			continue
		}
		s.logger.Info("maintenance reconnecting session", "session_id", sessionID)
		if !s.EnsureConnected(ctx, sessionID) {
			s.logger.Warn("maintenance reconnect failed", "session_id", sessionID)
		}
	}
}

func isFailFast(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrNoAPICredentials) ||
		errors.Is(err, ErrNoStoredCredentials)
}
