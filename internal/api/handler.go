// Package api provides HTTP handlers for the tgbridge API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/mkraev/tgbridge/internal/ingest"
	"github.com/mkraev/tgbridge/internal/session"
	"github.com/mkraev/tgbridge/internal/store"
)

// Handler provides common handler dependencies.
type Handler struct {
	registry   *session.Registry
	supervisor *session.Supervisor
	ingestor   *ingest.Ingestor
	repo       store.Repository
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(registry *session.Registry, supervisor *session.Supervisor, ingestor *ingest.Ingestor, repo store.Repository) *Handler {
	return &Handler{
		registry:   registry,
		supervisor: supervisor,
		ingestor:   ingestor,
		repo:       repo,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
