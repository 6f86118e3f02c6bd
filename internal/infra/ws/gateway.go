package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	appchat "campusxchange/internal/app/chat"
	"campusxchange/internal/domain/identity"
)

// Inbound event names accepted from clients.
const (
	eventJoinRoom    = "join_room"
	eventSendMessage = "send_message"
	eventLeaveRoom   = "leave_room"
)

type joinRoomPayload struct {
	ConversationID string `json:"conversation_id"`
}

type sendMessagePayload struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// GatewayConfig tunes per-connection behaviour.
type GatewayConfig struct {
	SendBuffer   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// Gateway upgrades authenticated HTTP requests to websocket sessions and
// dispatches their frames into the chat service. Credentials are checked
// before the upgrade, so an unauthenticated caller never holds a socket.
type Gateway struct {
	Chat     *appchat.Service
	Presence *appchat.Presence
	Rooms    *appchat.Rooms
	Verifier identity.Verifier
	Logger   *slog.Logger

	cfg      GatewayConfig
	upgrader websocket.Upgrader
}

func NewGateway(chat *appchat.Service, presence *appchat.Presence, rooms *appchat.Rooms, verifier identity.Verifier, logger *slog.Logger, cfg GatewayConfig) *Gateway {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Gateway{
		Chat:     chat,
		Presence: presence,
		Rooms:    rooms,
		Verifier: verifier,
		Logger:   logger,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle is the GET /ws endpoint.
func (g *Gateway) Handle(c *gin.Context) {
	token := handshakeToken(c.Request)
	if token == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	principal, err := g.Verifier.Verify(c.Request.Context(), token)
	if err != nil {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.Logger.Warn("ws upgrade failed", "error", err, "user_id", principal.ID)
		return
	}

	cl := &client{
		id:           uuid.NewString(),
		userID:       principal.ID,
		conn:         conn,
		send:         make(chan appchat.Event, g.cfg.SendBuffer),
		done:         make(chan struct{}),
		writeTimeout: g.cfg.WriteTimeout,
		pingInterval: g.cfg.PingInterval,
	}

	g.Presence.Register(cl.userID, cl)
	g.Logger.Info("ws connected", "user_id", cl.userID, "conn_id", cl.id)

	go cl.writePump()
	g.readLoop(c, cl)
}

// readLoop consumes inbound frames until the peer goes away, then tears
// down presence and room membership for the connection.
func (g *Gateway) readLoop(c *gin.Context, cl *client) {
	defer func() {
		g.Rooms.LeaveAll(cl)
		g.Presence.Unregister(cl)
		cl.close()
		g.Logger.Info("ws disconnected", "user_id", cl.userID, "conn_id", cl.id)
	}()

	cl.conn.SetReadLimit(64 << 10)
	cl.conn.SetReadDeadline(time.Now().Add(g.cfg.PingInterval * 2))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(g.cfg.PingInterval * 2))
	})

	ctx := c.Request.Context()
	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.Logger.Warn("ws read error", "error", err, "conn_id", cl.id)
			}
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			g.sendError(cl, "malformed frame")
			continue
		}
		g.dispatch(ctx, cl, frame)
	}
}

func (g *Gateway) dispatch(ctx context.Context, cl *client, frame inboundFrame) {
	switch frame.Event {
	case eventJoinRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.ConversationID == "" {
			g.sendError(cl, "join_room requires conversation_id")
			return
		}
		g.report(cl, g.Chat.JoinRoom(ctx, cl.userID, p.ConversationID, cl))
	case eventSendMessage:
		var p sendMessagePayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.ConversationID == "" {
			g.sendError(cl, "send_message requires conversation_id")
			return
		}
		_, err := g.Chat.SendMessage(ctx, cl.userID, p.ConversationID, p.Text)
		g.report(cl, err)
	case eventLeaveRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(frame.Data, &p); err != nil || p.ConversationID == "" {
			g.sendError(cl, "leave_room requires conversation_id")
			return
		}
		g.Chat.LeaveRoom(p.ConversationID, cl)
	default:
		g.sendError(cl, "unknown event")
	}
}

// report surfaces validation and availability problems to the peer, and
// drops authorization failures without acknowledgement so a probing
// client cannot tell a foreign conversation from a missing one.
func (g *Gateway) report(cl *client, err error) {
	if err == nil {
		return
	}
	switch status.Code(err) {
	case codes.InvalidArgument:
		g.sendError(cl, status.Convert(err).Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		g.sendError(cl, "service unavailable, try again")
	case codes.PermissionDenied:
		g.Logger.Warn("ws request denied", "user_id", cl.userID, "conn_id", cl.id)
	default:
		g.Logger.Error("ws dispatch failed", "error", err, "conn_id", cl.id)
	}
}

func (g *Gateway) sendError(cl *client, msg string) {
	ev := appchat.Event{Name: appchat.EventError, Data: map[string]string{"message": msg}}
	if err := cl.Send(ev); err != nil {
		g.Logger.Warn("ws error event dropped", "error", err, "conn_id", cl.id)
	}
}

func handshakeToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}
