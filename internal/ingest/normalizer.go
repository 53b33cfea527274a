// Package ingest receives push events from protocol clients, normalizes
// them into stable message records, and feeds the broadcast and auto-reply
// pipelines.
package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mkraev/tgbridge/internal/domain"
	"github.com/mkraev/tgbridge/internal/protocol"
)

// EntityResolver resolves a display name for a user or chat id. Lookups are
// read-through calls to the protocol client and must not mutate session
// state; implementations return "" when the entity is unknown.
type EntityResolver interface {
	ResolveName(ctx context.Context, id int64) string
}

// ClientResolver adapts a protocol client's GetEntity into an
// EntityResolver.
type ClientResolver struct {
	Client protocol.Client
}

// ResolveName implements EntityResolver.
func (r ClientResolver) ResolveName(ctx context.Context, id int64) string {
	if r.Client == nil {
		return ""
	}
	entity, err := r.Client.GetEntity(ctx, id)
	if err != nil {
		return ""
	}
	return entity.DisplayName()
}

// Normalize converts a raw protocol message into a NormalizedMessage.
// It is deterministic and side-effect-free apart from read-through entity
// lookups. Returns ok=false when the message carries neither text nor
// recognizable media and should be dropped.
func Normalize(ctx context.Context, msg protocol.RawMessage, selfID int64, selfName string, resolver EntityResolver) (domain.NormalizedMessage, bool) {
	mediaKind, fallbackText := classifyMedia(msg.Media)

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = fallbackText
	}
	if text == "" && mediaKind == domain.MediaNone {
		return domain.NormalizedMessage{}, false
	}

	outgoing := direction(msg, selfID)

	return domain.NormalizedMessage{
		ChatID:     msg.ChatID,
		MessageID:  msg.ID,
		Text:       text,
		Timestamp:  msg.Date,
		SenderID:   msg.SenderID,
		SenderName: senderName(ctx, msg, outgoing, selfName, resolver),
		Outgoing:   outgoing,
		MediaKind:  mediaKind,
		ChatTitle:  msg.ChatTitle,
	}, true
}

// direction compares sender id against the session's authenticated user id.
// Ids are normalized to strings first since the two may arrive as different
// numeric representations. Without a sender id the protocol's own outgoing
// flag decides.
func direction(msg protocol.RawMessage, selfID int64) bool {
	if msg.SenderID == 0 || selfID == 0 {
		return msg.Out
	}
	return strconv.FormatInt(msg.SenderID, 10) == strconv.FormatInt(selfID, 10)
}

// senderName resolves the display name: explicit resolved name, then the
// chat title for incoming one-to-one chats, then a synthetic "User {id}",
// then "Unknown User". Outgoing messages use the account owner's name.
func senderName(ctx context.Context, msg protocol.RawMessage, outgoing bool, selfName string, resolver EntityResolver) string {
	name := strings.TrimSpace(msg.SenderName)
	if name == "" && resolver != nil && msg.SenderID != 0 {
		name = strings.TrimSpace(resolver.ResolveName(ctx, msg.SenderID))
	}
	if name != "" {
		return name
	}

	if outgoing && selfName != "" {
		return selfName
	}
	if !outgoing && msg.Private && msg.ChatTitle != "" {
		return msg.ChatTitle
	}
	if msg.SenderID != 0 {
		return fmt.Sprintf("User %d", msg.SenderID)
	}
	return "Unknown User"
}

// classifyMedia maps protocol media sub-kinds onto a MediaKind and a
// human-readable fallback text, used only when no explicit text accompanies
// the media. The match is priority ordered: photo, then document refined by
// attribute (video, audio, sticker, gif, plain document), then contact,
// location, poll, game, webpage, other.
func classifyMedia(media *protocol.RawMedia) (domain.MediaKind, string) {
	if media == nil {
		return domain.MediaNone, ""
	}

	switch media.ClassName {
	case protocol.MediaClassPhoto:
		return domain.MediaPhoto, "📷 Photo"

	case protocol.MediaClassDocument:
		return classifyDocument(media.Document)

	case protocol.MediaClassContact:
		if media.ContactName != "" {
			return domain.MediaContact, "👤 Contact: " + media.ContactName
		}
		if media.ContactPhone != "" {
			return domain.MediaContact, "👤 Contact: " + media.ContactPhone
		}
		return domain.MediaContact, "👤 Contact"

	case protocol.MediaClassGeo, protocol.MediaClassGeoLive, protocol.MediaClassVenue:
		return domain.MediaLocation, "📍 Location"

	case protocol.MediaClassPoll:
		if media.PollQuestion != "" {
			return domain.MediaPoll, "📊 Poll: " + media.PollQuestion
		}
		return domain.MediaPoll, "📊 Poll"

	case protocol.MediaClassGame:
		if media.GameTitle != "" {
			return domain.MediaGame, "🎮 Game: " + media.GameTitle
		}
		return domain.MediaGame, "🎮 Game"

	case protocol.MediaClassWebPage:
		if media.WebpageTitle != "" {
			return domain.MediaWebpage, "🔗 " + media.WebpageTitle
		}
		if media.WebpageURL != "" {
			return domain.MediaWebpage, "🔗 " + media.WebpageURL
		}
		return domain.MediaWebpage, "🔗 Link"
	}

	return domain.MediaOther, "📎 Attachment"
}

// classifyDocument refines a MessageMediaDocument by its attributes.
func classifyDocument(doc *protocol.RawDocument) (domain.MediaKind, string) {
	if doc == nil {
		return domain.MediaDocument, "📄 Document"
	}

	// Collect attributes first: the kind priority (video, audio, sticker,
	// gif) is fixed regardless of attribute order on the wire.
	var video, audio, sticker *protocol.DocumentAttribute
	var animated bool
	var fileName string
	for i := range doc.Attributes {
		attr := &doc.Attributes[i]
		switch attr.ClassName {
		case protocol.AttrVideo:
			video = attr
		case protocol.AttrAudio:
			audio = attr
		case protocol.AttrSticker:
			sticker = attr
		case protocol.AttrAnimated:
			animated = true
		case protocol.AttrFilename:
			fileName = attr.FileName
		}
	}

	switch {
	case video != nil:
		if video.Duration > 0 {
			return domain.MediaVideo, fmt.Sprintf("🎥 Video (%s)", formatDuration(video.Duration))
		}
		return domain.MediaVideo, "🎥 Video"
	case audio != nil:
		if audio.Duration > 0 {
			return domain.MediaAudio, fmt.Sprintf("🎵 Audio (%s)", formatDuration(audio.Duration))
		}
		return domain.MediaAudio, "🎵 Audio"
	case sticker != nil:
		if sticker.StickerAlt != "" {
			return domain.MediaSticker, sticker.StickerAlt + " Sticker"
		}
		return domain.MediaSticker, "🎭 Sticker"
	case animated:
		return domain.MediaGIF, "🎞 GIF"
	}

	if fileName != "" {
		return domain.MediaDocument, "📄 Document: " + fileName
	}
	return domain.MediaDocument, "📄 Document"
}

// formatDuration renders seconds as mm:ss.
func formatDuration(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
