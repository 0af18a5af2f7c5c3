package realtime

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type targetMode int

const (
	targetAll targetMode = iota
	targetUsers
	targetRoles
)

// Target selects the recipients of a broadcast. Exactly one mode applies per
// call; the constructors are the only way to build one, so mixed targeting is
// unrepresentable.
type Target struct {
	mode  targetMode
	users []string
	roles []string
}

// TargetAll addresses every connected socket.
func TargetAll() Target { return Target{mode: targetAll} }

// TargetUsers addresses the user room of each given user id.
func TargetUsers(userIDs ...string) Target {
	return Target{mode: targetUsers, users: userIDs}
}

// TargetRoles addresses the role room of each given role.
func TargetRoles(roles ...string) Target {
	return Target{mode: targetRoles, roles: roles}
}

// Stats is a snapshot of broadcaster delivery counters.
type Stats struct {
	Broadcasts     int64 `json:"broadcasts"`
	Delivered      int64 `json:"delivered"`
	ZeroRecipients int64 `json:"zero_recipients"`
}

// Broadcaster fans events out over registry rooms. Delivery is at-most-once
// and fire-and-forget: a target with no live sockets yields zero deliveries,
// not an error, and nothing here ever raises to the caller. Zero-recipient
// broadcasts are counted so operators can watch delivery-miss rates.
type Broadcaster struct {
	registry *Registry
	logger   zerolog.Logger

	broadcasts     atomic.Int64
	delivered      atomic.Int64
	zeroRecipients atomic.Int64
}

// NewBroadcaster creates a Broadcaster bound to the given registry.
func NewBroadcaster(registry *Registry, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// BroadcastNotification emits a notification to the sockets selected by
// target. The notification is stamped with an id and timestamp if missing.
func (b *Broadcaster) BroadcastNotification(n Notification, target Target) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	data, ok := b.marshal(EventNotification, n)
	if !ok {
		return
	}

	delivered := 0
	switch target.mode {
	case targetUsers:
		for _, id := range target.users {
			delivered += b.registry.EmitRoom(UserRoom(id), data)
		}
	case targetRoles:
		for _, role := range target.roles {
			delivered += b.registry.EmitRoom(RoleRoom(role), data)
		}
	default:
		delivered = b.registry.EmitAll(data)
	}
	b.record(delivered)
}

// NotifyUser emits a notification to a single user's sockets.
func (b *Broadcaster) NotifyUser(userID string, n Notification) {
	b.BroadcastNotification(n, TargetUsers(userID))
}

// NotifyRole emits a notification to every socket of a role.
func (b *Broadcaster) NotifyRole(role string, n Notification) {
	b.BroadcastNotification(n, TargetRoles(role))
}

// BroadcastSyncEvent emits a sync event to all connected sockets. Sync events
// represent shared-state changes relevant to every active session.
func (b *Broadcaster) BroadcastSyncEvent(ev SyncEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	data, ok := b.marshal(EventSyncEvent, ev)
	if !ok {
		return
	}
	b.record(b.registry.EmitAll(data))
}

// BroadcastPresence emits a presence_update to all connected sockets.
func (b *Broadcaster) BroadcastPresence(p PresenceUpdate) {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	data, ok := b.marshal(EventPresenceUpdate, p)
	if !ok {
		return
	}
	b.record(b.registry.EmitAll(data))
}

// BroadcastUserOffline emits a user_offline to all connected sockets.
func (b *Broadcaster) BroadcastUserOffline(u UserOffline) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now().UTC()
	}
	data, ok := b.marshal(EventUserOffline, u)
	if !ok {
		return
	}
	b.record(b.registry.EmitAll(data))
}

// Stats returns a snapshot of delivery counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Broadcasts:     b.broadcasts.Load(),
		Delivered:      b.delivered.Load(),
		ZeroRecipients: b.zeroRecipients.Load(),
	}
}

func (b *Broadcaster) marshal(event string, payload interface{}) ([]byte, bool) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("failed to marshal broadcast payload")
		return nil, false
	}
	return data, true
}

func (b *Broadcaster) record(delivered int) {
	b.broadcasts.Add(1)
	b.delivered.Add(int64(delivered))
	if delivered == 0 {
		b.zeroRecipients.Add(1)
	}
}
