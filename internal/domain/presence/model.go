// Package presence implements the durable presence store: who is online,
// what they are doing, and what they are editing. The socket layer feeds it
// connection lifecycle signals; the HTTP API exposes it to the clinic
// dashboard.
package presence

import "time"

// Status is a user's availability state.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy, StatusOffline:
		return true
	}
	return false
}

// Record is one user's presence row. Username and role are denormalized onto
// the record at write time so presence reads never join against an identity
// store.
type Record struct {
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	Role             string    `json:"role"`
	Status           Status    `json:"status"`
	CurrentPage      string    `json:"current_page,omitempty"`
	CurrentActivity  string    `json:"current_activity,omitempty"`
	IsTyping         bool      `json:"is_typing"`
	TypingEntityID   string    `json:"typing_entity_id,omitempty"`
	TypingEntityType string    `json:"typing_entity_type,omitempty"`
	LastSeen         time.Time `json:"last_seen"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Update is a partial presence change. Nil fields keep their stored value;
// set fields overwrite it. LastSeen nil means "now".
type Update struct {
	Username         *string
	Role             *string
	Status           *Status
	CurrentPage      *string
	CurrentActivity  *string
	IsTyping         *bool
	TypingEntityID   *string
	TypingEntityType *string
	LastSeen         *time.Time
}

// Filter narrows an active-presence listing.
type Filter struct {
	Status Status
	Role   string
}
