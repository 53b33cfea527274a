package domain

import "testing"

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		rec  SessionRecord
		want string
	}{
		{"first name wins", SessionRecord{FirstName: "Alice", Username: "alice", UserID: 7}, "Alice"},
		{"first name is trimmed", SessionRecord{FirstName: "  Alice  "}, "Alice"},
		{"username fallback", SessionRecord{Username: "alice", UserID: 7}, "@alice"},
		{"synthetic from user id", SessionRecord{UserID: 7}, "User 7"},
		{"nothing known", SessionRecord{}, "Unknown User"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.DisplayName(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHasCredentials(t *testing.T) {
	rec := SessionRecord{}
	if rec.HasCredentials() {
		t.Error("Expected no credentials for an empty record")
	}
	rec.CredentialBlob = "blob"
	if !rec.HasCredentials() {
		t.Error("Expected credentials when a blob is present")
	}
}
