package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mkraev/tgbridge/internal/stream"
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	*Handler
	hub *stream.Hub
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(base *Handler, hub *stream.Hub) *SessionHandler {
	return &SessionHandler{Handler: base, hub: hub}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Post("/{id}/connect", h.Connect)
		r.Delete("/{id}", h.Delete)
	})
}

// List returns summaries of all known sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.registry.List(r.Context())
	if err != nil {
		slog.Error("failed to list sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": summaries})
}

// Get returns the session's state, including a best-effort liveness probe.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	sess, err := h.registry.Get(r.Context(), sessionID)
	if err != nil {
		slog.Error("failed to load session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id":    sess.Record.SessionID,
		"phone_number":  sess.Record.PhoneNumber,
		"username":      sess.Record.Username,
		"display_name":  sess.Record.DisplayName(),
		"authenticated": sess.Record.Authenticated,
		"connected":     sess.Connected(),
		"healthy":       h.supervisor.IsHealthy(r.Context(), sessionID),
		"subscribers":   h.hub.SubscriberCount(sessionID),
		"updated_at":    sess.Record.UpdatedAt,
	})
}

// Connect ensures the session's client is connected and attaches update
// ingestion to it.
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	if !h.supervisor.EnsureConnected(r.Context(), sessionID) {
		Error(w, http.StatusBadGateway, "failed to connect session")
		return
	}

	if err := h.ingestor.Attach(r.Context(), sessionID); err != nil {
		slog.Error("failed to attach ingestion", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to attach update ingestion")
		return
	}

	slog.Info("session connected", "session_id", sessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// Delete logs the session out: ingestion is detached, streaming subscribers
// are closed, and the session is removed from cache and store.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	h.ingestor.Detach(sessionID)
	h.hub.CloseSession(sessionID)

	if !h.registry.Delete(r.Context(), sessionID) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	slog.Info("session deleted", "session_id", sessionID)
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
