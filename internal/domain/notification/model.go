// Package notification implements durable notifications: persisted per-user
// records with read tracking, plus best-effort real-time push to any sockets
// the recipient has open.
package notification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinicdesk/internal/realtime"
)

// Record is one stored notification.
type Record struct {
	ID        uuid.UUID                 `json:"id"`
	UserID    string                    `json:"user_id"`
	Type      realtime.NotificationType `json:"type"`
	Title     string                    `json:"title"`
	Message   string                    `json:"message"`
	Data      json.RawMessage           `json:"data,omitempty"`
	Priority  realtime.Priority         `json:"priority"`
	IsRead    bool                      `json:"is_read"`
	ReadAt    *time.Time                `json:"read_at,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// CreateInput is what callers supply to create a notification.
type CreateInput struct {
	UserID   string                    `json:"user_id"`
	Type     realtime.NotificationType `json:"type"`
	Title    string                    `json:"title"`
	Message  string                    `json:"message"`
	Data     json.RawMessage           `json:"data,omitempty"`
	Priority realtime.Priority         `json:"priority,omitempty"`
}

// Filter narrows a listing of one user's notifications.
type Filter struct {
	IsRead   *bool
	Type     realtime.NotificationType
	Priority realtime.Priority
}

// Stats summarises one user's notifications.
type Stats struct {
	Total      int            `json:"total"`
	Unread     int            `json:"unread"`
	ByType     map[string]int `json:"by_type"`
	ByPriority map[string]int `json:"by_priority"`
}
