package stream

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mkraev/tgbridge/internal/protocol"
)

func TestBroadcastDeliversEnvelope(t *testing.T) {
	h := NewHub(0, 0, nil)
	sub := h.Register("sess-1")

	h.Broadcast("sess-1", EventMessage, map[string]string{"text": "hello"})

	select {
	case payload := <-sub.Events():
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("Failed to decode envelope: %v", err)
		}
		if env.Type != EventMessage {
			t.Errorf("Expected type %q, got %q", EventMessage, env.Type)
		}
		if env.Timestamp == "" {
			t.Error("Expected a timestamp on the envelope")
		}
		if _, err := time.Parse(time.RFC3339, env.Timestamp); err != nil {
			t.Errorf("Expected RFC3339 timestamp, got %q", env.Timestamp)
		}
		data, ok := env.Data.(map[string]interface{})
		if !ok {
			t.Fatalf("Expected object data, got %T", env.Data)
		}
		if data["text"] != "hello" {
			t.Errorf("Expected text=hello, got %v", data["text"])
		}
	default:
		t.Fatal("Expected a delivered event")
	}
}

func TestBroadcastWithoutSubscribersIsNoop(t *testing.T) {
	h := NewHub(0, 0, nil)

	// Must not panic or accumulate state.
	h.Broadcast("sess-1", EventMessage, map[string]string{"text": "hello"})

	if n := h.SubscriberCount("sess-1"); n != 0 {
		t.Errorf("Expected 0 subscribers, got %d", n)
	}
}

func TestBroadcastIsolatedPerSession(t *testing.T) {
	h := NewHub(0, 0, nil)
	a := h.Register("sess-a")
	b := h.Register("sess-b")

	h.Broadcast("sess-a", EventMessage, "payload")

	select {
	case <-a.Events():
	default:
		t.Error("Expected sess-a subscriber to receive the event")
	}
	select {
	case <-b.Events():
		t.Error("Expected sess-b subscriber to receive nothing")
	default:
	}
}

func TestBroadcastDropsStalledSubscriber(t *testing.T) {
	h := NewHub(0, 0, nil)
	stalled := h.Register("sess-1")
	healthy := h.Register("sess-1")

	// Fill the stalled subscriber's buffer without draining it.
	for i := 0; i < subscriberBuffer; i++ {
		h.Broadcast("sess-1", EventMessage, i)
		<-healthy.Events()
	}

	h.Broadcast("sess-1", EventMessage, "overflow")

	if n := h.SubscriberCount("sess-1"); n != 1 {
		t.Errorf("Expected stalled subscriber to be dropped, got %d subscribers", n)
	}

	// The healthy subscriber still received the overflowing event.
	select {
	case <-healthy.Events():
	default:
		t.Error("Expected healthy subscriber to receive the event")
	}

	// The dropped subscriber's channel is closed once drained.
	for range stalled.Events() {
	}
}

func TestBroadcastDegradesUnserializablePayload(t *testing.T) {
	h := NewHub(0, 0, nil)
	sub := h.Register("sess-1")

	h.Broadcast("sess-1", EventLLMResult, make(chan int))

	select {
	case payload := <-sub.Events():
		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("Failed to decode fallback envelope: %v", err)
		}
		if env.Type != EventLLMResult {
			t.Errorf("Expected type %q, got %q", EventLLMResult, env.Type)
		}
		if env.Error != "payload_not_serializable" {
			t.Errorf("Expected payload_not_serializable error, got %q", env.Error)
		}
		if env.Data != nil {
			t.Errorf("Expected nil data in fallback, got %v", env.Data)
		}
	default:
		t.Fatal("Expected a fallback envelope to be delivered")
	}
}

func TestAuthFaultBroadcastsAuthErrorEvent(t *testing.T) {
	h := NewHub(0, 0, nil)
	sub := h.Register("sess-1")

	h.AuthFault("sess-1", protocol.Fault{
		ErrorCode:    "SESSION_REVOKED",
		Message:      "session revoked",
		ShouldLogout: true,
	})

	select {
	case payload := <-sub.Events():
		var env struct {
			Type string         `json:"type"`
			Data protocol.Fault `json:"data"`
		}
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("Failed to decode envelope: %v", err)
		}
		if env.Type != EventAuthError {
			t.Errorf("Expected type %q, got %q", EventAuthError, env.Type)
		}
		if env.Data.ErrorCode != "SESSION_REVOKED" {
			t.Errorf("Expected errorCode SESSION_REVOKED, got %q", env.Data.ErrorCode)
		}
		if !env.Data.ShouldLogout {
			t.Error("Expected shouldLogout=true")
		}
	default:
		t.Fatal("Expected an auth_error event")
	}
}

func TestUnregisterEmptiesSessionEntry(t *testing.T) {
	h := NewHub(0, 0, nil)
	sub := h.Register("sess-1")

	h.Unregister("sess-1", sub)

	if n := h.SubscriberCount("sess-1"); n != 0 {
		t.Errorf("Expected 0 subscribers after unregister, got %d", n)
	}

	// Unregistering twice is safe.
	h.Unregister("sess-1", sub)
}

func TestCloseSessionRemovesAllSubscribers(t *testing.T) {
	h := NewHub(0, 0, nil)
	a := h.Register("sess-1")
	b := h.Register("sess-1")

	h.CloseSession("sess-1")

	if n := h.SubscriberCount("sess-1"); n != 0 {
		t.Errorf("Expected 0 subscribers after close, got %d", n)
	}
	for range a.Events() {
	}
	for range b.Events() {
	}
}

func TestReapStaleRemovesIdleSubscribers(t *testing.T) {
	h := NewHub(time.Minute, 50*time.Millisecond, nil)
	idle := h.Register("sess-1")
	active := h.Register("sess-1")

	time.Sleep(80 * time.Millisecond)

	// Refresh the active subscriber's activity via a delivery.
	h.Broadcast("sess-1", EventMessage, "ping")
	<-active.Events()
	<-idle.Events()

	// The idle subscriber's lastActive was also refreshed by the push, so
	// both survive the first sweep.
	h.ReapStale()
	if n := h.SubscriberCount("sess-1"); n != 2 {
		t.Errorf("Expected 2 subscribers after first sweep, got %d", n)
	}

	time.Sleep(80 * time.Millisecond)
	h.ReapStale()
	if n := h.SubscriberCount("sess-1"); n != 0 {
		t.Errorf("Expected all idle subscribers reaped, got %d", n)
	}
}
