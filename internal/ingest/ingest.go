package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkraev/tgbridge/internal/domain"
	"github.com/mkraev/tgbridge/internal/protocol"
	"github.com/mkraev/tgbridge/internal/reply"
	"github.com/mkraev/tgbridge/internal/session"
	"github.com/mkraev/tgbridge/internal/stream"
)

const defaultQueueSize = 256

// messageEventClasses are the push-event kinds that announce new or edited
// messages. Events outside this set that still carry a message payload are
// candidates too.
var messageEventClasses = map[string]bool{
	"UpdateNewMessage":         true,
	"UpdateNewChannelMessage":  true,
	"UpdateShortMessage":       true,
	"UpdateShortChatMessage":   true,
	"UpdateEditMessage":        true,
	"UpdateEditChannelMessage": true,
}

// Ingestor registers push-event handlers on session clients and drains each
// session's events sequentially through normalization, broadcast, and the
// auto-reply pipeline. One event fully completes before the next queued
// event for the same session is processed.
type Ingestor struct {
	registry   *session.Registry
	supervisor *session.Supervisor
	hub        *stream.Hub
	responder  reply.Responder
	gate       *reply.Gate
	queueSize  int
	logger     *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	workers map[string]*worker
}

type worker struct {
	events chan protocol.RawEvent
	cancel context.CancelFunc
}

// NewIngestor creates an update ingestor. responder may be nil when the
// auto-response collaborator is not configured.
func NewIngestor(registry *session.Registry, supervisor *session.Supervisor, hub *stream.Hub, responder reply.Responder, gate *reply.Gate, queueSize int, logger *slog.Logger) *Ingestor {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		registry:   registry,
		supervisor: supervisor,
		hub:        hub,
		responder:  responder,
		gate:       gate,
		queueSize:  queueSize,
		logger:     logger,
		baseCtx:    context.Background(),
		workers:    make(map[string]*worker),
	}
}

// Start ties worker lifetimes to ctx: workers launched by Attach stop when
// ctx is done.
func (in *Ingestor) Start(ctx context.Context) {
	in.mu.Lock()
	in.baseCtx = ctx
	in.mu.Unlock()
}

// Attach registers exactly one push-event handler on the session's client
// and starts the per-session drain worker. Re-attaching first clears any
// existing handler to avoid duplicate delivery.
func (in *Ingestor) Attach(ctx context.Context, sessionID string) error {
	sess, err := in.registry.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return session.ErrSessionNotFound
	}
	if sess.Client == nil {
		return fmt.Errorf("attach session %s: %w", sessionID, protocol.ErrNotConnected)
	}

	in.Detach(sessionID)
	sess.Client.RemoveEventHandlers()

	in.mu.Lock()
	wctx, cancel := context.WithCancel(in.baseCtx)
	w := &worker{
		events: make(chan protocol.RawEvent, in.queueSize),
		cancel: cancel,
	}
	in.workers[sessionID] = w
	in.mu.Unlock()

	sess.Client.AddEventHandler(func(ev protocol.RawEvent) {
		select {
		case w.events <- ev:
		default:
			in.logger.Warn("event queue full, dropping push event",
				"session_id", sessionID, "class", ev.ClassName)
		}
	})

	go in.run(wctx, sessionID, w.events)
	in.logger.Info("update ingestion attached", "session_id", sessionID)
	return nil
}

// Detach stops the session's drain worker and clears its event handler.
func (in *Ingestor) Detach(sessionID string) {
	in.mu.Lock()
	w, ok := in.workers[sessionID]
	delete(in.workers, sessionID)
	in.mu.Unlock()
	if !ok {
		return
	}

	w.cancel()
	if sess := in.registry.Cached(sessionID); sess != nil && sess.Client != nil {
		sess.Client.RemoveEventHandlers()
	}
	in.logger.Info("update ingestion detached", "session_id", sessionID)
}

// Attached reports whether a drain worker is running for the session.
func (in *Ingestor) Attached(sessionID string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	_, ok := in.workers[sessionID]
	return ok
}

func (in *Ingestor) run(ctx context.Context, sessionID string, events <-chan protocol.RawEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			in.process(ctx, sessionID, ev)
		}
	}
}

// process handles one push event end to end. Non-message events are dropped
// silently; a failed reconnect aborts this event only.
func (in *Ingestor) process(ctx context.Context, sessionID string, ev protocol.RawEvent) {
	msgs := collectMessages(ev, nil)
	if len(msgs) == 0 {
		return
	}

	sess, err := in.registry.Get(ctx, sessionID)
	if err != nil || sess == nil {
		in.logger.Warn("dropping event for unknown session", "session_id", sessionID, "error", err)
		return
	}

	if sess.Client == nil || !sess.Client.Connected() {
		if !in.supervisor.EnsureConnectedWithRetries(ctx, sessionID, 1) {
			in.logger.Warn("skipping event, session not connected", "session_id", sessionID)
			return
		}
		sess = in.registry.Cached(sessionID)
		if sess == nil || sess.Client == nil {
			return
		}
	}

	resolver := ClientResolver{Client: sess.Client}
	selfID := sess.Record.UserID
	selfName := sess.Record.DisplayName()

	for _, raw := range msgs {
		normalized, ok := Normalize(ctx, *raw, selfID, selfName, resolver)
		if !ok {
			continue
		}

		in.hub.Broadcast(sessionID, stream.EventMessage, normalized)

		if !normalized.Outgoing {
			in.autoRespond(ctx, sess, normalized)
		}
	}
}

// llmResultEvent is the llm_result envelope payload.
type llmResultEvent struct {
	ChatID    int64         `json:"chatId"`
	MessageID int64         `json:"messageId"`
	Result    *reply.Result `json:"result"`
}

// autoRespond hands an incoming message to the external auto-response
// collaborator and sends its reply back into the originating chat. The
// gate is acquired first so duplicated push delivery triggers at most one
// response per message.
func (in *Ingestor) autoRespond(ctx context.Context, sess *session.Session, msg domain.NormalizedMessage) {
	if in.responder == nil {
		return
	}

	sessionID := sess.Record.SessionID
	if in.gate != nil && !in.gate.TryAcquire(sessionID, msg.ChatID, msg.MessageID) {
		in.logger.Debug("auto-reply already handled",
			"session_id", sessionID, "chat_id", msg.ChatID, "message_id", msg.MessageID)
		return
	}

	trigger := reply.Trigger{
		SessionID: sessionID,
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		Message:   msg.Text,
		Sender:    msg.SenderName,
		SenderID:  msg.SenderID,
		Chat:      msg.ChatTitle,
		Timestamp: msg.Timestamp.UTC().Format(time.RFC3339),
	}

	result, err := in.responder.Process(ctx, trigger)
	if err != nil {
		in.logger.Warn("auto-response collaborator failed",
			"session_id", sessionID, "chat_id", msg.ChatID, "error", err)
		return
	}

	in.hub.Broadcast(sessionID, stream.EventLLMResult, llmResultEvent{
		ChatID:    msg.ChatID,
		MessageID: msg.MessageID,
		Result:    result,
	})

	if !result.Success || !result.ShouldReply || result.Response == "" {
		return
	}

	if _, err := sess.Client.SendMessage(ctx, msg.ChatID, result.Response); err != nil {
		fault := protocol.Classify(err)
		if fault.ShouldLogout {
			in.supervisor.FailSession(ctx, sessionID, fault)
			return
		}
		in.logger.Warn("failed to send auto-reply",
			"session_id", sessionID, "chat_id", msg.ChatID, "error", err)
	}
}

// collectMessages walks an event and its nested sub-events, gathering every
// candidate message payload.
func collectMessages(ev protocol.RawEvent, out []*protocol.RawMessage) []*protocol.RawMessage {
	switch {
	case ev.Message != nil:
		out = append(out, ev.Message)
	case messageEventClasses[ev.ClassName]:
		if msg := ev.InlineMessage(); msg != nil {
			out = append(out, msg)
		}
	}
	for i := range ev.Updates {
		out = collectMessages(ev.Updates[i], out)
	}
	return out
}
