package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
)

// PresenceSink receives connection-lifecycle and activity signals from the
// socket layer. Implemented by the presence service; defined here so the
// socket layer has no dependency on the presence domain.
type PresenceSink interface {
	HandleConnect(ctx context.Context, ident *auth.Identity)
	// HandleDisconnect is called only when the user's last socket has gone.
	HandleDisconnect(ctx context.Context, ident *auth.Identity)
	HandleActivity(ctx context.Context, ident *auth.Identity, page, activity string)
	HandleTyping(ctx context.Context, ident *auth.Identity, entityID, entityType string, typing bool)
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler owns the WebSocket endpoint: handshake authentication, socket
// registration, and inbound event dispatch.
type Handler struct {
	registry    *Registry
	broadcaster *Broadcaster
	verifier    *auth.Verifier
	presence    PresenceSink
	logger      zerolog.Logger
}

// NewHandler creates a Handler bound to the given registry and broadcaster.
func NewHandler(registry *Registry, broadcaster *Broadcaster, verifier *auth.Verifier, presence PresenceSink, logger zerolog.Logger) *Handler {
	return &Handler{
		registry:    registry,
		broadcaster: broadcaster,
		verifier:    verifier,
		presence:    presence,
		logger:      logger,
	}
}

// RegisterRoutes registers the WebSocket endpoint on e and the admin/ops
// endpoints on the API group.
func (h *Handler) RegisterRoutes(e *echo.Echo, api *echo.Group) {
	e.GET("/ws", h.HandleConnect)

	ops := api.Group("/realtime", auth.RequireRole(auth.RoleAdmin))
	ops.GET("/connections", h.HandleListConnections)
	ops.GET("/stats", h.HandleStats)
}

// HandleConnect authenticates the handshake credential, upgrades the
// connection, registers the client, and starts the read/write pumps. A bad or
// missing credential refuses the connection before any room join.
func (h *Handler) HandleConnect(c echo.Context) error {
	ident, err := h.authenticate(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(uuid.New().String(), ident.UserID, ident.Username, ident.Role, &gorillaConnAdapter{ws})
	h.registry.Register(client)

	h.logger.Info().
		Str("socket_id", client.SocketID).
		Str("user_id", ident.UserID).
		Str("username", ident.Username).
		Str("role", ident.Role).
		Msg("socket connected")

	// Connection confirmation goes to this socket only; the presence side
	// effect broadcasts the online transition to everyone.
	if data, ok := h.marshalConfirmation(client); ok {
		client.trySend(data)
	}
	h.presence.HandleConnect(context.Background(), ident)

	go h.writePump(client)
	go h.readPump(client, ident)

	return nil
}

// authenticate validates the bearer credential supplied at handshake, from
// the Authorization header or a token query parameter (browser WebSocket
// clients cannot set headers).
func (h *Handler) authenticate(c echo.Context) (*auth.Identity, error) {
	tokenStr := c.QueryParam("token")
	if tokenStr == "" {
		var err error
		tokenStr, err = auth.BearerToken(c.Request().Header.Get("Authorization"))
		if err != nil {
			return nil, err
		}
	}
	return h.verifier.Verify(tokenStr)
}

func (h *Handler) marshalConfirmation(client *Client) ([]byte, bool) {
	payload := map[string]interface{}{
		"message":         "connected to real-time sync",
		"socket_id":       client.SocketID,
		"user_id":         client.UserID,
		"username":        client.Username,
		"role":            client.Role,
		"connected_users": h.registry.ClientCount(),
	}
	data, err := json.Marshal(Envelope{Event: EventConnected, Data: payload})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal connection confirmation")
		return nil, false
	}
	return data, true
}

// readPump reads client events until the connection drops, then unregisters
// the socket and signals the presence layer if this was the user's last one.
func (h *Handler) readPump(client *Client, ident *auth.Identity) {
	defer func() {
		last := h.registry.Unregister(client.SocketID)
		client.conn.Close()

		h.logger.Info().
			Str("socket_id", client.SocketID).
			Str("user_id", ident.UserID).
			Bool("last_socket", last).
			Msg("socket disconnected")

		if last {
			h.presence.HandleDisconnect(context.Background(), ident)
		}
	}()

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			break
		}
		h.dispatch(client, ident, message)
	}
}

// dispatch routes one inbound event. Malformed payloads are logged and
// dropped; they never take down the socket or its neighbours.
func (h *Handler) dispatch(client *Client, ident *auth.Identity, message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.Warn().
			Str("socket_id", client.SocketID).
			Err(err).
			Msg("dropping malformed socket message")
		return
	}

	ctx := context.Background()

	switch msg.Event {
	case EventUserActivity:
		var p ActivityPayload
		if !h.decode(client, msg, &p) {
			return
		}
		h.presence.HandleActivity(ctx, ident, p.Page, p.Activity)

	case EventTypingStart, EventEntityEditStart:
		var p TypingPayload
		if !h.decode(client, msg, &p) {
			return
		}
		h.presence.HandleTyping(ctx, ident, p.EntityID, p.EntityType, true)

	case EventTypingStop, EventEntityEditStop:
		var p TypingPayload
		if !h.decode(client, msg, &p) {
			return
		}
		h.presence.HandleTyping(ctx, ident, p.EntityID, p.EntityType, false)

	default:
		h.logger.Warn().
			Str("socket_id", client.SocketID).
			Str("event", msg.Event).
			Msg("dropping unknown socket event")
	}
}

func (h *Handler) decode(client *Client, msg ClientMessage, out interface{}) bool {
	if err := json.Unmarshal(msg.Data, out); err != nil {
		h.logger.Warn().
			Str("socket_id", client.SocketID).
			Str("event", msg.Event).
			Err(err).
			Msg("dropping malformed event payload")
		return false
	}
	return true
}

// writePump drains the client's send queue onto the wire.
func (h *Handler) writePump(client *Client) {
	defer client.conn.Close()

	for message := range client.send {
		if err := client.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}

// HandleListConnections handles GET /realtime/connections.
func (h *Handler) HandleListConnections(c echo.Context) error {
	connections := h.registry.ListConnected()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"count":       len(connections),
		"connections": connections,
	})
}

// HandleStats handles GET /realtime/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"connected_clients": h.registry.ClientCount(),
		"delivery":          h.broadcaster.Stats(),
	})
}
