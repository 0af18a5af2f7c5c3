package realtime

import (
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
)

// sendBufferSize is the per-socket outbound queue depth. A client that cannot
// drain its queue is skipped, never waited on.
const sendBufferSize = 256

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single authenticated socket session.
type Client struct {
	SocketID    string
	UserID      string
	Username    string
	Role        string
	ConnectedAt time.Time

	conn  Conn
	send  chan []byte
	rooms []string // managed by the Registry under its lock
}

// NewClient builds a Client for an authenticated connection.
func NewClient(socketID, userID, username, role string, conn Conn) *Client {
	return &Client{
		SocketID:    socketID,
		UserID:      userID,
		Username:    username,
		Role:        role,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
	}
}

// trySend queues data without blocking. Returns false when the client's
// buffer is full and the message was dropped.
func (c *Client) trySend(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Receive returns one queued outbound frame, for tests that inspect delivery
// without running a write pump.
func (c *Client) Receive() ([]byte, bool) {
	select {
	case data, ok := <-c.send:
		return data, ok
	default:
		return nil, false
	}
}

// gorillaConnAdapter wraps a gorilla/websocket.Conn to satisfy the Conn
// interface.
type gorillaConnAdapter struct {
	conn *gorillawebsocket.Conn
}

func (a *gorillaConnAdapter) ReadMessage() (int, []byte, error) {
	return a.conn.ReadMessage()
}

func (a *gorillaConnAdapter) WriteMessage(messageType int, data []byte) error {
	return a.conn.WriteMessage(messageType, data)
}

func (a *gorillaConnAdapter) Close() error {
	return a.conn.Close()
}
