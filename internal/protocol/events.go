package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// RawEvent is an unsolicited push event as delivered by the protocol client.
// Short-form updates carry the message fields inline; full updates carry a
// nested message object; container updates batch nested sub-events.
type RawEvent struct {
	ClassName string      `json:"className"`
	Message   *RawMessage `json:"-"`
	Updates   []RawEvent  `json:"updates,omitempty"`

	// Inline fields of short-form updates (UpdateShortMessage and friends).
	ID     int64  `json:"id,omitempty"`
	UserID int64  `json:"userId,omitempty"`
	ChatID int64  `json:"chatId,omitempty"`
	Out    bool   `json:"out,omitempty"`
	Text   string `json:"-"`
	Date   int64  `json:"date,omitempty"`
}

// rawEventAlias avoids recursing into RawEvent's own UnmarshalJSON.
type rawEventAlias struct {
	ClassName string          `json:"className"`
	Message   json.RawMessage `json:"message,omitempty"`
	Updates   []RawEvent      `json:"updates,omitempty"`
	ID        int64           `json:"id,omitempty"`
	UserID    int64           `json:"userId,omitempty"`
	ChatID    int64           `json:"chatId,omitempty"`
	Out       bool            `json:"out,omitempty"`
	Date      int64           `json:"date,omitempty"`
}

// UnmarshalJSON handles the polymorphic "message" field: short-form updates
// carry the text string directly, full updates carry a message object.
func (e *RawEvent) UnmarshalJSON(data []byte) error {
	var a rawEventAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	e.ClassName = a.ClassName
	e.Updates = a.Updates
	e.ID = a.ID
	e.UserID = a.UserID
	e.ChatID = a.ChatID
	e.Out = a.Out
	e.Date = a.Date

	raw := bytes.TrimSpace(a.Message)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		if err := json.Unmarshal(raw, &e.Text); err != nil {
			return err
		}
	default:
		var msg RawMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		e.Message = &msg
	}
	return nil
}

// InlineMessage synthesizes a RawMessage from a short-form update's inline
// fields. Returns nil if the event carries no inline text.
func (e *RawEvent) InlineMessage() *RawMessage {
	if e.Text == "" {
		return nil
	}
	chatID := e.ChatID
	if chatID == 0 {
		chatID = e.UserID
	}
	return &RawMessage{
		ID:       e.ID,
		ChatID:   chatID,
		Private:  e.ChatID == 0,
		SenderID: e.UserID,
		Out:      e.Out,
		Date:     time.Unix(e.Date, 0),
		Text:     e.Text,
	}
}

// RawMessage is a protocol message as delivered by the client, before
// normalization.
type RawMessage struct {
	ID         int64     `json:"id"`
	ChatID     int64     `json:"chatId"`
	ChatTitle  string    `json:"chatTitle,omitempty"`
	Private    bool      `json:"private,omitempty"`
	SenderID   int64     `json:"senderId,omitempty"`
	SenderName string    `json:"senderName,omitempty"`
	Out        bool      `json:"out,omitempty"`
	Date       time.Time `json:"date,omitzero"`
	Text       string    `json:"text,omitempty"`
	Media      *RawMedia `json:"media,omitempty"`
}

// RawMedia describes the media payload of a message. ClassName mirrors the
// protocol's media sub-kind; documents carry attributes that refine the kind
// further (video, audio, sticker, animation).
type RawMedia struct {
	ClassName    string       `json:"className"`
	Document     *RawDocument `json:"document,omitempty"`
	ContactName  string       `json:"contactName,omitempty"`
	ContactPhone string       `json:"contactPhone,omitempty"`
	PollQuestion string       `json:"pollQuestion,omitempty"`
	GameTitle    string       `json:"gameTitle,omitempty"`
	WebpageURL   string       `json:"webpageUrl,omitempty"`
	WebpageTitle string       `json:"webpageTitle,omitempty"`
}

// RawDocument is the document payload of a MessageMediaDocument.
type RawDocument struct {
	MimeType   string              `json:"mimeType,omitempty"`
	FileName   string              `json:"fileName,omitempty"`
	Attributes []DocumentAttribute `json:"attributes,omitempty"`
}

// DocumentAttribute refines a document's kind.
type DocumentAttribute struct {
	ClassName  string `json:"className"`
	Duration   int    `json:"duration,omitempty"`
	Animated   bool   `json:"animated,omitempty"`
	StickerAlt string `json:"stickerAlt,omitempty"`
	FileName   string `json:"fileName,omitempty"`
}

// Media sub-kind class names.
const (
	MediaClassPhoto    = "MessageMediaPhoto"
	MediaClassDocument = "MessageMediaDocument"
	MediaClassContact  = "MessageMediaContact"
	MediaClassGeo      = "MessageMediaGeo"
	MediaClassGeoLive  = "MessageMediaGeoLive"
	MediaClassVenue    = "MessageMediaVenue"
	MediaClassPoll     = "MessageMediaPoll"
	MediaClassGame     = "MessageMediaGame"
	MediaClassWebPage  = "MessageMediaWebPage"
)

// Document attribute class names.
const (
	AttrVideo    = "DocumentAttributeVideo"
	AttrAudio    = "DocumentAttributeAudio"
	AttrSticker  = "DocumentAttributeSticker"
	AttrAnimated = "DocumentAttributeAnimated"
	AttrFilename = "DocumentAttributeFilename"
)
