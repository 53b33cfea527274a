package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mkraev/tgbridge/internal/domain"
	"github.com/mkraev/tgbridge/internal/ingest"
)

const defaultHistoryLimit = 50

// MessageHandler handles chat history reads and manual sends.
type MessageHandler struct {
	*Handler
}

// NewMessageHandler creates a message handler.
func NewMessageHandler(base *Handler) *MessageHandler {
	return &MessageHandler{Handler: base}
}

// RegisterRoutes registers message routes.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions/{id}/chats/{chatID}/messages", func(r chi.Router) {
		r.Get("/", h.History)
		r.Post("/", h.Send)
	})
}

// History returns recent messages from a chat, normalized.
func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	if !h.supervisor.EnsureConnected(r.Context(), sessionID) {
		Error(w, http.StatusBadGateway, "session not connected")
		return
	}
	sess := h.registry.Cached(sessionID)
	if sess == nil || sess.Client == nil {
		Error(w, http.StatusBadGateway, "session not connected")
		return
	}

	raw, err := sess.Client.GetMessages(r.Context(), chatID, limit)
	if err != nil {
		slog.Error("failed to fetch messages",
			"session_id", sessionID, "chat_id", chatID, "error", err)
		Error(w, http.StatusBadGateway, "failed to fetch messages")
		return
	}

	resolver := ingest.ClientResolver{Client: sess.Client}
	messages := make([]domain.NormalizedMessage, 0, len(raw))
	for _, msg := range raw {
		normalized, ok := ingest.Normalize(r.Context(), msg, sess.Record.UserID, sess.Record.DisplayName(), resolver)
		if !ok {
			continue
		}
		messages = append(messages, normalized)
	}

	JSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// Send sends a text message into a chat on behalf of the account owner.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		Error(w, http.StatusBadRequest, "missing message")
		return
	}

	if !h.supervisor.EnsureConnected(r.Context(), sessionID) {
		Error(w, http.StatusBadGateway, "session not connected")
		return
	}
	sess := h.registry.Cached(sessionID)
	if sess == nil || sess.Client == nil {
		Error(w, http.StatusBadGateway, "session not connected")
		return
	}

	messageID, err := sess.Client.SendMessage(r.Context(), chatID, body.Message)
	if err != nil {
		slog.Error("failed to send message",
			"session_id", sessionID, "chat_id", chatID, "error", err)
		Error(w, http.StatusBadGateway, "failed to send message")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"status":     "sent",
		"message_id": messageID,
	})
}
