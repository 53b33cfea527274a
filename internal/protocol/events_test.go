package protocol

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRawEventUnmarshalObjectMessage(t *testing.T) {
	data := []byte(`{
		"className": "UpdateNewMessage",
		"message": {
			"id": 42,
			"chatId": 1001,
			"senderId": 7,
			"text": "hello",
			"out": false
		}
	}`)

	var ev RawEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}

	if ev.ClassName != "UpdateNewMessage" {
		t.Errorf("Expected className UpdateNewMessage, got %q", ev.ClassName)
	}
	if ev.Message == nil {
		t.Fatal("Expected a nested message object")
	}
	if ev.Message.ID != 42 || ev.Message.ChatID != 1001 || ev.Message.Text != "hello" {
		t.Errorf("Unexpected message fields: %+v", ev.Message)
	}
	if ev.Text != "" {
		t.Errorf("Expected empty inline text, got %q", ev.Text)
	}
}

func TestRawEventUnmarshalStringMessage(t *testing.T) {
	data := []byte(`{
		"className": "UpdateShortMessage",
		"id": 43,
		"userId": 7,
		"message": "hi there",
		"out": true,
		"date": 1700000000
	}`)

	var ev RawEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}

	if ev.Message != nil {
		t.Errorf("Expected no nested message, got %+v", ev.Message)
	}
	if ev.Text != "hi there" {
		t.Errorf("Expected inline text, got %q", ev.Text)
	}
	if ev.UserID != 7 || ev.ID != 43 || !ev.Out {
		t.Errorf("Unexpected inline fields: %+v", ev)
	}
}

func TestRawEventUnmarshalNullMessage(t *testing.T) {
	data := []byte(`{"className": "UpdateUserStatus", "message": null}`)

	var ev RawEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	if ev.Message != nil || ev.Text != "" {
		t.Errorf("Expected empty message fields, got %+v", ev)
	}
}

func TestRawEventUnmarshalNestedUpdates(t *testing.T) {
	data := []byte(`{
		"className": "Updates",
		"updates": [
			{"className": "UpdateShortMessage", "id": 1, "userId": 5, "message": "a"},
			{"className": "UpdateUserStatus"}
		]
	}`)

	var ev RawEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}
	if len(ev.Updates) != 2 {
		t.Fatalf("Expected 2 nested updates, got %d", len(ev.Updates))
	}
	if ev.Updates[0].Text != "a" {
		t.Errorf("Expected nested inline text, got %q", ev.Updates[0].Text)
	}
}

func TestInlineMessagePrivateChat(t *testing.T) {
	ev := RawEvent{
		ClassName: "UpdateShortMessage",
		ID:        10,
		UserID:    7,
		Text:      "direct",
		Date:      1700000000,
	}

	msg := ev.InlineMessage()
	if msg == nil {
		t.Fatal("Expected a synthesized message")
	}
	if msg.ChatID != 7 {
		t.Errorf("Expected chat id to fall back to user id, got %d", msg.ChatID)
	}
	if !msg.Private {
		t.Error("Expected a private chat without an explicit chat id")
	}
	if msg.SenderID != 7 {
		t.Errorf("Expected sender id 7, got %d", msg.SenderID)
	}
	if !msg.Date.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Unexpected date: %v", msg.Date)
	}
}

func TestInlineMessageGroupChat(t *testing.T) {
	ev := RawEvent{
		ClassName: "UpdateShortChatMessage",
		ID:        11,
		UserID:    7,
		ChatID:    2002,
		Text:      "group",
	}

	msg := ev.InlineMessage()
	if msg == nil {
		t.Fatal("Expected a synthesized message")
	}
	if msg.ChatID != 2002 {
		t.Errorf("Expected chat id 2002, got %d", msg.ChatID)
	}
	if msg.Private {
		t.Error("Expected a non-private chat with an explicit chat id")
	}
}

func TestInlineMessageWithoutTextIsNil(t *testing.T) {
	ev := RawEvent{ClassName: "UpdateShortMessage", UserID: 7}
	if msg := ev.InlineMessage(); msg != nil {
		t.Errorf("Expected nil for an event without inline text, got %+v", msg)
	}
}
