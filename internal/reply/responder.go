package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Trigger is the payload handed to the external auto-response collaborator
// for every incoming normalized message.
type Trigger struct {
	SessionID string `json:"sessionId"`
	ChatID    int64  `json:"chatId"`
	MessageID int64  `json:"messageId"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	SenderID  int64  `json:"senderId,omitempty"`
	Chat      string `json:"chat,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Result is the collaborator's decision. ShouldReply=true causes the
// response text to be sent back into the originating chat, gated by the
// reply Gate.
type Result struct {
	Success        bool   `json:"success"`
	Response       string `json:"response,omitempty"`
	ShouldReply    bool   `json:"shouldReply,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Model          string `json:"model,omitempty"`
	ProcessingTime int64  `json:"processingTime,omitempty"`
}

// Responder is the boundary to the external auto-response collaborator.
// Only the trigger contract matters here; the response/model logic lives
// outside this system.
type Responder interface {
	Process(ctx context.Context, trigger Trigger) (*Result, error)
}

// HTTPResponder calls the collaborator over HTTP with the JSON trigger
// contract.
type HTTPResponder struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPResponder creates a responder client for the given endpoint.
func NewHTTPResponder(url string, timeout time.Duration, logger *slog.Logger) *HTTPResponder {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPResponder{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Process implements Responder.
func (r *HTTPResponder) Process(ctx context.Context, trigger Trigger) (*Result, error) {
	payload, err := json.Marshal(trigger)
	if err != nil {
		return nil, fmt.Errorf("encode trigger: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build responder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call responder: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			r.logger.Debug("failed to close responder body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("responder returned %d: %s", resp.StatusCode, body)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode responder result: %w", err)
	}
	return &result, nil
}
