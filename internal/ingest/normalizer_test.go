package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/mkraev/tgbridge/internal/domain"
	"github.com/mkraev/tgbridge/internal/protocol"
)

type staticResolver map[int64]string

func (r staticResolver) ResolveName(_ context.Context, id int64) string {
	return r[id]
}

func TestNormalizeKeepsExplicitText(t *testing.T) {
	msg := protocol.RawMessage{
		ID:       1,
		ChatID:   100,
		SenderID: 7,
		Text:     "  hello  ",
		Media:    &protocol.RawMedia{ClassName: protocol.MediaClassPhoto},
	}

	normalized, ok := Normalize(context.Background(), msg, 99, "Me", nil)
	if !ok {
		t.Fatal("Expected message to be kept")
	}
	if normalized.Text != "hello" {
		t.Errorf("Expected trimmed explicit text, got %q", normalized.Text)
	}
	if normalized.MediaKind != domain.MediaPhoto {
		t.Errorf("Expected photo media kind, got %s", normalized.MediaKind)
	}
}

func TestNormalizeDropsEmptyMessage(t *testing.T) {
	msg := protocol.RawMessage{ID: 1, ChatID: 100, Text: "   "}
	if _, ok := Normalize(context.Background(), msg, 99, "Me", nil); ok {
		t.Error("Expected a message without text or media to be dropped")
	}
}

func TestNormalizeMediaFallbackTexts(t *testing.T) {
	tests := []struct {
		name     string
		media    *protocol.RawMedia
		wantKind domain.MediaKind
		wantText string
	}{
		{
			name:     "photo",
			media:    &protocol.RawMedia{ClassName: protocol.MediaClassPhoto},
			wantKind: domain.MediaPhoto,
			wantText: "📷 Photo",
		},
		{
			name: "video with duration",
			media: &protocol.RawMedia{
				ClassName: protocol.MediaClassDocument,
				Document: &protocol.RawDocument{Attributes: []protocol.DocumentAttribute{
					{ClassName: protocol.AttrVideo, Duration: 125},
				}},
			},
			wantKind: domain.MediaVideo,
			wantText: "🎥 Video (02:05)",
		},
		{
			name: "audio",
			media: &protocol.RawMedia{
				ClassName: protocol.MediaClassDocument,
				Document: &protocol.RawDocument{Attributes: []protocol.DocumentAttribute{
					{ClassName: protocol.AttrAudio},
				}},
			},
			wantKind: domain.MediaAudio,
			wantText: "🎵 Audio",
		},
		{
			name: "sticker with alt",
			media: &protocol.RawMedia{
				ClassName: protocol.MediaClassDocument,
				Document: &protocol.RawDocument{Attributes: []protocol.DocumentAttribute{
					{ClassName: protocol.AttrSticker, StickerAlt: "😀"},
				}},
			},
			wantKind: domain.MediaSticker,
			wantText: "😀 Sticker",
		},
		{
			name: "gif",
			media: &protocol.RawMedia{
				ClassName: protocol.MediaClassDocument,
				Document: &protocol.RawDocument{Attributes: []protocol.DocumentAttribute{
					{ClassName: protocol.AttrAnimated},
				}},
			},
			wantKind: domain.MediaGIF,
			wantText: "🎞 GIF",
		},
		{
			name: "named document",
			media: &protocol.RawMedia{
				ClassName: protocol.MediaClassDocument,
				Document: &protocol.RawDocument{Attributes: []protocol.DocumentAttribute{
					{ClassName: protocol.AttrFilename, FileName: "report.pdf"},
				}},
			},
			wantKind: domain.MediaDocument,
			wantText: "📄 Document: report.pdf",
		},
		{
			name:     "bare document",
			media:    &protocol.RawMedia{ClassName: protocol.MediaClassDocument},
			wantKind: domain.MediaDocument,
			wantText: "📄 Document",
		},
		{
			name:     "contact with name",
			media:    &protocol.RawMedia{ClassName: protocol.MediaClassContact, ContactName: "Alice"},
			wantKind: domain.MediaContact,
			wantText: "👤 Contact: Alice",
		},
		{
			name:     "contact with phone only",
			media:    &protocol.RawMedia{ClassName: protocol.MediaClassContact, ContactPhone: "+123"},
			wantKind: domain.MediaContact,
			wantText: "👤 Contact: +123",
		},
		{
			name:     "live location",
			media:    &protocol.RawMedia{ClassName: protocol.MediaClassGeoLive},
			wantKind: domain.MediaLocation,
			wantText: "📍 Location",
		},
		{
			name:     "poll with question",
			media:    &protocol.RawMedia{ClassName: protocol.MediaClassPoll, PollQuestion: "Lunch?"},
			wantKind: domain.MediaPoll,
			wantText: "📊 Poll: Lunch?",
		},
		{
			name:     "game",
			media:    &protocol.RawMedia{ClassName: protocol.MediaClassGame, GameTitle: "Chess"},
			wantKind: domain.MediaGame,
			wantText: "🎮 Game: Chess",
		},
		{
			name:     "webpage prefers title",
			media:    &protocol.RawMedia{ClassName: protocol.MediaClassWebPage, WebpageTitle: "Docs", WebpageURL: "https://x"},
			wantKind: domain.MediaWebpage,
			wantText: "🔗 Docs",
		},
		{
			name:     "webpage url only",
			media:    &protocol.RawMedia{ClassName: protocol.MediaClassWebPage, WebpageURL: "https://x"},
			wantKind: domain.MediaWebpage,
			wantText: "🔗 https://x",
		},
		{
			name:     "unknown media",
			media:    &protocol.RawMedia{ClassName: "MessageMediaDice"},
			wantKind: domain.MediaOther,
			wantText: "📎 Attachment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := protocol.RawMessage{ID: 1, ChatID: 100, SenderID: 7, Media: tt.media}
			normalized, ok := Normalize(context.Background(), msg, 99, "Me", nil)
			if !ok {
				t.Fatal("Expected message to be kept")
			}
			if normalized.MediaKind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, normalized.MediaKind)
			}
			if normalized.Text != tt.wantText {
				t.Errorf("Expected fallback %q, got %q", tt.wantText, normalized.Text)
			}
		})
	}
}

func TestClassifyDocumentPriorityIgnoresAttributeOrder(t *testing.T) {
	// A sticker document may also carry the animated attribute; the sticker
	// wins regardless of wire order.
	media := &protocol.RawMedia{
		ClassName: protocol.MediaClassDocument,
		Document: &protocol.RawDocument{Attributes: []protocol.DocumentAttribute{
			{ClassName: protocol.AttrAnimated},
			{ClassName: protocol.AttrSticker},
		}},
	}

	kind, text := classifyMedia(media)
	if kind != domain.MediaSticker {
		t.Errorf("Expected sticker to win over animated, got %s", kind)
	}
	if text != "🎭 Sticker" {
		t.Errorf("Expected sticker fallback, got %q", text)
	}
}

func TestDirectionComparesNormalizedIDs(t *testing.T) {
	msg := protocol.RawMessage{ID: 1, ChatID: 100, SenderID: 42, Text: "hi"}

	normalized, _ := Normalize(context.Background(), msg, 42, "Me", nil)
	if !normalized.Outgoing {
		t.Error("Expected outgoing when sender id matches self id")
	}

	normalized, _ = Normalize(context.Background(), msg, 99, "Me", nil)
	if normalized.Outgoing {
		t.Error("Expected incoming when sender id differs from self id")
	}
}

func TestDirectionFallsBackToOutFlag(t *testing.T) {
	msg := protocol.RawMessage{ID: 1, ChatID: 100, Text: "hi", Out: true}

	normalized, _ := Normalize(context.Background(), msg, 42, "Me", nil)
	if !normalized.Outgoing {
		t.Error("Expected the protocol's out flag to decide without a sender id")
	}
}

func TestSenderNameChain(t *testing.T) {
	ctx := context.Background()

	// Explicit sender name wins.
	msg := protocol.RawMessage{ID: 1, ChatID: 100, SenderID: 7, SenderName: "Alice", Text: "hi"}
	normalized, _ := Normalize(ctx, msg, 99, "Me", staticResolver{7: "Resolved"})
	if normalized.SenderName != "Alice" {
		t.Errorf("Expected explicit name, got %q", normalized.SenderName)
	}

	// Resolver fills a missing name.
	msg.SenderName = ""
	normalized, _ = Normalize(ctx, msg, 99, "Me", staticResolver{7: "Resolved"})
	if normalized.SenderName != "Resolved" {
		t.Errorf("Expected resolved name, got %q", normalized.SenderName)
	}

	// Incoming private chat falls back to the chat title.
	msg.ChatTitle = "Bob"
	msg.Private = true
	normalized, _ = Normalize(ctx, msg, 99, "Me", nil)
	if normalized.SenderName != "Bob" {
		t.Errorf("Expected chat title fallback, got %q", normalized.SenderName)
	}

	// Synthetic name from the sender id.
	msg.ChatTitle = ""
	normalized, _ = Normalize(ctx, msg, 99, "Me", nil)
	if normalized.SenderName != "User 7" {
		t.Errorf("Expected synthetic name, got %q", normalized.SenderName)
	}

	// Nothing known at all.
	msg.SenderID = 0
	msg.Out = false
	normalized, _ = Normalize(ctx, msg, 99, "Me", nil)
	if normalized.SenderName != "Unknown User" {
		t.Errorf("Expected Unknown User, got %q", normalized.SenderName)
	}
}

func TestSenderNameOutgoingUsesSelfName(t *testing.T) {
	msg := protocol.RawMessage{ID: 1, ChatID: 100, SenderID: 42, Text: "hi", Date: time.Now()}
	normalized, _ := Normalize(context.Background(), msg, 42, "Me", nil)
	if normalized.SenderName != "Me" {
		t.Errorf("Expected account owner's name for outgoing, got %q", normalized.SenderName)
	}
}
