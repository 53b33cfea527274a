package stream

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// WebSocketHandler serves the same event envelopes as the SSE endpoint over
// a WebSocket, for UI clients behind proxies that buffer event streams.
type WebSocketHandler struct {
	hub    *Hub
	logger *slog.Logger
}

// NewWebSocketHandler creates the WebSocket streaming handler.
func NewWebSocketHandler(hub *Hub, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeHTTP upgrades the connection and streams the session's events until
// either side closes.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, `{"error":"missing session_id"}`, http.StatusBadRequest)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	sub := h.hub.Register(sessionID)
	defer h.hub.Unregister(sessionID, sub)

	h.logger.Info("WebSocket stream opened", "session_id", sessionID, "subscriber_id", sub.ID, "ip", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain inbound frames so pings are answered and peer closure is
	// noticed; the stream itself is one-way.
	go func() {
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				cancel()
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := ws.Write(ctx, websocket.MessageText, payload); err != nil {
				h.logger.Debug("WebSocket write failed", "session_id", sessionID, "error", err)
				return
			}
		case <-ctx.Done():
			h.logger.Info("WebSocket stream closed", "session_id", sessionID, "subscriber_id", sub.ID)
			return
		}
	}
}
