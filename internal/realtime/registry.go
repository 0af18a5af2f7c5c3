package realtime

import (
	"sort"
	"sync"
	"time"
)

// UserRoom returns the room name every socket of a user joins.
func UserRoom(userID string) string { return "user:" + userID }

// RoleRoom returns the room name every socket of a role joins.
func RoleRoom(role string) string { return "role:" + role }

// ConnectedClient is the admin-facing snapshot of one authenticated socket.
type ConnectedClient struct {
	SocketID    string    `json:"socket_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Registry tracks every authenticated socket and its room membership. Rooms
// are kept as an explicit table rather than transport-library state so tests
// can inspect membership without a live connection. All operations are
// thread-safe via sync.RWMutex.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client             // socket id -> client
	rooms   map[string]map[*Client]struct{} // room -> set of clients
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register adds an authenticated client and joins it to its user and role
// rooms. A socket id is registered at most once; re-registering the same id
// replaces nothing and is ignored.
func (r *Registry) Register(client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[client.SocketID]; ok {
		return
	}

	r.clients[client.SocketID] = client
	client.rooms = []string{UserRoom(client.UserID), RoleRoom(client.Role)}

	for _, room := range client.rooms {
		if r.rooms[room] == nil {
			r.rooms[room] = make(map[*Client]struct{})
		}
		r.rooms[room][client] = struct{}{}
	}
}

// Unregister removes the socket, leaves its rooms, and closes its send
// channel. It reports whether this was the user's last active socket. Unknown
// socket ids are a no-op: the transport may fire disconnect after the registry
// already evicted the socket.
func (r *Registry) Unregister(socketID string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[socketID]
	if !ok {
		return false
	}

	for _, room := range client.rooms {
		if members, ok := r.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(r.rooms, room)
			}
		}
	}
	client.rooms = nil

	delete(r.clients, socketID)
	close(client.send)

	_, stillConnected := r.rooms[UserRoom(client.UserID)]
	return !stillConnected
}

// IsUserConnected reports whether at least one socket exists for the user.
func (r *Registry) IsUserConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[UserRoom(userID)]) > 0
}

// ListConnected returns a snapshot of all connected sockets ordered by
// connection time.
func (r *Registry) ListConnected() []ConnectedClient {
	r.mu.RLock()
	snapshot := make([]ConnectedClient, 0, len(r.clients))
	for _, c := range r.clients {
		snapshot = append(snapshot, ConnectedClient{
			SocketID:    c.SocketID,
			UserID:      c.UserID,
			Username:    c.Username,
			Role:        c.Role,
			ConnectedAt: c.ConnectedAt,
		})
	}
	r.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].ConnectedAt.Equal(snapshot[j].ConnectedAt) {
			return snapshot[i].SocketID < snapshot[j].SocketID
		}
		return snapshot[i].ConnectedAt.Before(snapshot[j].ConnectedAt)
	})
	return snapshot
}

// ClientCount returns the total number of connected sockets.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// RoomCount returns the number of sockets in a room.
func (r *Registry) RoomCount(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns the rooms a socket currently belongs to, or nil for unknown
// sockets.
func (r *Registry) Rooms(socketID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[socketID]
	if !ok {
		return nil
	}
	rooms := make([]string, len(client.rooms))
	copy(rooms, client.rooms)
	return rooms
}

// EmitRoom queues data on every socket in the room and returns the number of
// recipients. A missing room yields zero deliveries, not an error.
func (r *Registry) EmitRoom(room string, data []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for client := range r.rooms[room] {
		if client.trySend(data) {
			n++
		}
	}
	return n
}

// EmitAll queues data on every connected socket and returns the number of
// recipients.
func (r *Registry) EmitAll(data []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, client := range r.clients {
		if client.trySend(data) {
			n++
		}
	}
	return n
}
