package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Keepalive comments hold intermediaries open between events.
const sseKeepaliveInterval = 10 * time.Second

// SSEHandler serves the per-session text event stream. Each event is
// written as "data: <json>\n\n".
type SSEHandler struct {
	hub    *Hub
	logger *slog.Logger
}

// NewSSEHandler creates the SSE streaming handler.
func NewSSEHandler(hub *Hub, logger *slog.Logger) *SSEHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSEHandler{hub: hub, logger: logger}
}

// ServeHTTP subscribes the caller to the session's event stream.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, `{"error":"missing session id"}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error":"streaming unsupported"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Register(sessionID)
	defer h.hub.Unregister(sessionID, sub)

	h.logger.Info("SSE stream opened", "session_id", sessionID, "subscriber_id", sub.ID, "ip", r.RemoteAddr)

	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case payload, ok := <-sub.Events():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				h.logger.Debug("SSE write failed", "session_id", sessionID, "error", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			h.logger.Info("SSE stream closed", "session_id", sessionID, "subscriber_id", sub.ID)
			return
		}
	}
}
