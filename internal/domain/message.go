package domain

import "time"

// MediaKind classifies the media attached to a message.
type MediaKind string

const (
	MediaNone     MediaKind = "none"
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaSticker  MediaKind = "sticker"
	MediaGIF      MediaKind = "gif"
	MediaDocument MediaKind = "document"
	MediaContact  MediaKind = "contact"
	MediaLocation MediaKind = "location"
	MediaPoll     MediaKind = "poll"
	MediaGame     MediaKind = "game"
	MediaWebpage  MediaKind = "webpage"
	MediaOther    MediaKind = "other"
)

// NormalizedMessage is the stable, serializable representation of a chat
// message, independent of the protocol wire shape. It is constructed once
// per push event and immutable thereafter.
//
// Invariant: Text is non-empty or MediaKind is not "none".
type NormalizedMessage struct {
	ChatID     int64     `json:"chatId"`
	MessageID  int64     `json:"messageId"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	SenderID   int64     `json:"senderId,omitempty"`
	SenderName string    `json:"senderName"`
	Outgoing   bool      `json:"outgoing"`
	MediaKind  MediaKind `json:"mediaKind"`
	ChatTitle  string    `json:"chatTitle,omitempty"`
}
