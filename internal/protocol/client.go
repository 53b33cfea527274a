// Package protocol defines the boundary to the external protocol client:
// the component that maintains the binary connection to the remote messaging
// service and exposes RPC-style calls plus a push-event stream. The wire
// encoding itself lives outside this process; see BridgeDialer.
package protocol

import (
	"context"
	"time"
)

// EventHandler receives unsolicited push events from the remote service.
type EventHandler func(ev RawEvent)

// Client is the capability surface of a live protocol connection.
//
// Implementations must be safe for concurrent use. Connected reports the
// last known connection state without performing network I/O.
type Client interface {
	// Connect establishes the protocol connection. It blocks until the
	// connection is usable or ctx is done.
	Connect(ctx context.Context) error

	// Disconnect tears the connection down. Safe to call on a client that
	// never connected.
	Disconnect(ctx context.Context) error

	// Connected reports whether the connection is currently established.
	Connected() bool

	// Invoke performs a raw RPC against the remote service.
	Invoke(ctx context.Context, req Request) (any, error)

	// GetEntity resolves a user or chat entity by id.
	GetEntity(ctx context.Context, id int64) (*Entity, error)

	// GetMessages fetches up to limit recent messages from a chat.
	GetMessages(ctx context.Context, chatID int64, limit int) ([]RawMessage, error)

	// SendMessage sends a text message into a chat and returns the new
	// message id.
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)

	// AddEventHandler registers a push-event handler.
	AddEventHandler(fn EventHandler)

	// RemoveEventHandlers clears all registered push-event handlers.
	RemoveEventHandlers()

	// ExportSession serializes the client's session so the returned blob
	// alone is sufficient to reconstruct an authenticated client later.
	ExportSession(ctx context.Context) (string, error)
}

// Request is a raw RPC request passed through Invoke.
type Request interface {
	RequestName() string
}

// PingRequest is the lightweight liveness probe used by health checks.
type PingRequest struct{}

// RequestName implements Request.
func (PingRequest) RequestName() string { return "ping" }

// Entity is a resolved user or chat.
type Entity struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username,omitempty"`
	Title     string `json:"title,omitempty"`
}

// DisplayName returns the best human-readable name for the entity.
func (e *Entity) DisplayName() string {
	switch {
	case e == nil:
		return ""
	case e.FirstName != "" && e.LastName != "":
		return e.FirstName + " " + e.LastName
	case e.FirstName != "":
		return e.FirstName
	case e.Title != "":
		return e.Title
	case e.Username != "":
		return "@" + e.Username
	}
	return ""
}

// DialConfig carries everything needed to reconstruct a client: the
// configured protocol access credentials plus the stored session blob.
type DialConfig struct {
	APIID          int
	APIHash        string
	CredentialBlob string
	ConnectTimeout time.Duration
}

// Dialer reconstructs protocol clients from persisted credentials.
type Dialer interface {
	Dial(ctx context.Context, cfg DialConfig) (Client, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, cfg DialConfig) (Client, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, cfg DialConfig) (Client, error) {
	return f(ctx, cfg)
}
