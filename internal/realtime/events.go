// Package realtime implements the live presence and notification core: an
// authenticated WebSocket connection registry with explicit room membership,
// and an event broadcaster that fans notifications and sync events out to the
// sockets that should receive them.
package realtime

import (
	"encoding/json"
	"time"
)

// NotificationType categorises a notification event.
type NotificationType string

const (
	TypePatientAssignment  NotificationType = "patient_assignment"
	TypePrescriptionUpdate NotificationType = "prescription_update"
	TypeLabResult          NotificationType = "lab_result"
	TypePaymentReceived    NotificationType = "payment_received"
	TypeVisitUpdate        NotificationType = "visit_update"
	TypeSystemAlert        NotificationType = "system_alert"
	TypeSyncEvent          NotificationType = "sync_event"
)

// ValidNotificationType reports whether t is a known notification type.
func ValidNotificationType(t NotificationType) bool {
	switch t {
	case TypePatientAssignment, TypePrescriptionUpdate, TypeLabResult,
		TypePaymentReceived, TypeVisitUpdate, TypeSystemAlert, TypeSyncEvent:
		return true
	}
	return false
}

// Priority indicates how urgently a notification should be surfaced.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ValidPriority reports whether p is a known priority.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Outbound event names (server -> client).
const (
	EventConnected      = "connected"
	EventPresenceUpdate = "presence_update"
	EventUserOffline    = "user_offline"
	EventNotification   = "notification"
	EventSyncEvent      = "sync_event"
)

// Inbound event names (client -> server).
const (
	EventUserActivity    = "user_activity"
	EventTypingStart     = "typing_start"
	EventTypingStop      = "typing_stop"
	EventEntityEditStart = "entity_edit_start"
	EventEntityEditStop  = "entity_edit_stop"
)

// Envelope is the wire frame for every server-to-client message.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ClientMessage is the wire frame for every client-to-server message. The
// authenticated session identity is attached server-side; payloads never carry
// a user id.
type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ActivityPayload is the body of a user_activity event.
type ActivityPayload struct {
	Page     string `json:"page"`
	Activity string `json:"activity"`
}

// TypingPayload is the body of typing_start/stop and entity_edit_start/stop
// events.
type TypingPayload struct {
	EntityID   string `json:"entity_id"`
	EntityType string `json:"entity_type"`
}

// Notification is the real-time notification payload pushed to sockets.
// Durable storage is the notification domain's concern; the broadcaster only
// delivers.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Priority  Priority         `json:"priority"`
	Timestamp time.Time        `json:"timestamp"`
}

// SyncEvent describes a shared-state change relevant to every active session.
// It exists only as a broadcast payload and is never stored.
type SyncEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	EntityID   string          `json:"entity_id"`
	EntityType string          `json:"entity_type"`
	Action     string          `json:"action"` // create, update, delete
	Data       json.RawMessage `json:"data,omitempty"`
	UserID     string          `json:"user_id"`
	Timestamp  time.Time       `json:"timestamp"`
}

// PresenceUpdate is broadcast to all clients whenever a user's presence
// changes. Presence is globally visible on the clinic dashboard, so this is a
// deliberate broadcast-to-all.
type PresenceUpdate struct {
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	Role             string    `json:"role"`
	Status           string    `json:"status"`
	CurrentPage      string    `json:"current_page,omitempty"`
	CurrentActivity  string    `json:"current_activity,omitempty"`
	IsTyping         bool      `json:"is_typing"`
	TypingEntityID   string    `json:"typing_entity_id,omitempty"`
	TypingEntityType string    `json:"typing_entity_type,omitempty"`
	LastSeen         time.Time `json:"last_seen"`
	Timestamp        time.Time `json:"timestamp"`
}

// UserOffline is broadcast to all clients when a user's last socket has gone
// and the offline grace window has elapsed.
type UserOffline struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}
