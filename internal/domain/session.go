// Package domain contains core domain types for the tgbridge application.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionRecord is the durable, serializable form of a messaging-account
// session. It is everything needed to reconstruct a live protocol client:
// the credential blob plus the identity resolved at authentication time.
type SessionRecord struct {
	SessionID      string    `json:"session_id"`
	PhoneNumber    string    `json:"phone_number,omitempty"`
	CredentialBlob string    `json:"credential_blob,omitempty"`
	Authenticated  bool      `json:"authenticated"`
	UserID         int64     `json:"user_id,omitempty"`
	FirstName      string    `json:"first_name,omitempty"`
	Username       string    `json:"username,omitempty"`
	QRToken        string    `json:"qr_token,omitempty"`
	QRTokenExpires time.Time `json:"qr_token_expires,omitzero"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasCredentials returns true if the record carries a credential blob that
// can be used to reconstruct a protocol client.
func (r *SessionRecord) HasCredentials() bool {
	return r.CredentialBlob != ""
}

// DisplayName returns the best human-readable name for the account owner.
func (r *SessionRecord) DisplayName() string {
	if name := strings.TrimSpace(r.FirstName); name != "" {
		return name
	}
	if r.Username != "" {
		return "@" + r.Username
	}
	if r.UserID != 0 {
		return fmt.Sprintf("User %d", r.UserID)
	}
	return "Unknown User"
}

// SessionSummary is the read-only listing shape for a session.
type SessionSummary struct {
	SessionID     string    `json:"session_id"`
	PhoneNumber   string    `json:"phone_number,omitempty"`
	Username      string    `json:"username,omitempty"`
	Authenticated bool      `json:"authenticated"`
	Connected     bool      `json:"connected"`
	UpdatedAt     time.Time `json:"updated_at"`
}
