package http

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/access"
	"github.com/spaceshq/spaces-server/internal/auth"
	"github.com/spaceshq/spaces-server/internal/realtime"
	"github.com/spaceshq/spaces-server/internal/store"
)

// WSHandlers upgrades HTTP connections and bridges them to the hub.
type WSHandlers struct {
	hub   *realtime.Hub
	gate  *access.Gate
	users store.UserStore
	auth  *auth.Service
	log   *zerolog.Logger
}

// NewWSHandlers builds the websocket handlers.
func NewWSHandlers(hub *realtime.Hub, gate *access.Gate, users store.UserStore, authService *auth.Service, logger *zerolog.Logger) *WSHandlers {
	return &WSHandlers{hub: hub, gate: gate, users: users, auth: authService, log: logger}
}

// Chat serves the channel socket. The connection is identified by token or
// userId query parameter (token wins) and authorized once at accept time;
// after that every inbound JSON frame is rebroadcast verbatim to the other
// connections on the channel key.
func (h *WSHandlers) Chat(c *gin.Context) {
	ctx := c.Request.Context()
	chatID := c.Param("chatID")
	userID, identified := h.auth.IdentifySocket(c.Query("token"), c.Query("userId"))

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	var uid any
	var meta realtime.Meta
	if identified {
		if _, err := h.gate.Resolve(ctx, chatID, userID); err != nil {
			h.log.Debug().Err(err).Str("chat_id", chatID).Int64("user_id", userID).Msg("chat socket denied")
			conn.Close(websocket.StatusPolicyViolation, "access denied")
			return
		}
		uid = userID
		meta = h.connMeta(ctx, userID)
	}

	wc := &wsConn{conn: conn}
	h.hub.Register(ctx, chatID, wc, uid, meta)
	defer h.hub.Unregister(context.WithoutCancel(ctx), chatID, wc, uid)

	for {
		var frame json.RawMessage
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			h.closeRead(conn, err)
			return
		}
		h.hub.BroadcastToChannelExcept(ctx, chatID, wc, frame)
	}
}

// Notifications serves the per-user socket. Signaling frames (type
// "webrtc-*" or "ice-candidate") addressed via targetUserId are relayed to
// that user; everything else echoes back to the sender's own connections.
func (h *WSHandlers) Notifications(c *gin.Context) {
	ctx := c.Request.Context()
	userID, identified := h.auth.IdentifySocket(c.Query("token"), c.Query("userId"))

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if !identified {
		conn.Close(websocket.StatusPolicyViolation, "identity required")
		return
	}

	wc := &wsConn{conn: conn}
	h.hub.Register(ctx, "", wc, userID, h.connMeta(ctx, userID))
	defer h.hub.Unregister(context.WithoutCancel(ctx), "", wc, userID)

	for {
		var frame json.RawMessage
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			h.closeRead(conn, err)
			return
		}

		var envelope struct {
			Type         string `json:"type"`
			TargetUserID any    `json:"targetUserId"`
		}
		if err := json.Unmarshal(frame, &envelope); err != nil {
			continue
		}
		if isSignalingFrame(envelope.Type) && envelope.TargetUserID != nil {
			h.hub.SendToUser(ctx, envelope.TargetUserID, frame)
			continue
		}
		h.hub.SendToUser(ctx, userID, frame)
	}
}

func isSignalingFrame(frameType string) bool {
	return strings.HasPrefix(frameType, "webrtc-") || frameType == "ice-candidate"
}

// connMeta loads the role/domain metadata attached to a connection for
// scoped delivery.
func (h *WSHandlers) connMeta(ctx context.Context, userID int64) realtime.Meta {
	user, err := h.users.GetUserByID(ctx, userID)
	if err != nil {
		return realtime.Meta{}
	}
	return realtime.Meta{
		Role:   user.Role,
		Domain: auth.DomainOf(user.Email),
	}
}

// closeRead shuts the socket down after the read loop ends. Normal closure
// and cancellation are quiet; anything else is logged.
func (h *WSHandlers) closeRead(conn *websocket.Conn, err error) {
	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		conn.Close(websocket.StatusNormalClosure, "closing")
		return
	}
	if err != nil && !isExpectedClose(err) {
		h.log.Debug().Err(err).Msg("ws connection closed with error")
	}
	conn.Close(websocket.StatusNormalClosure, "closing")
}

func isExpectedClose(err error) bool {
	return err == nil || websocket.CloseStatus(err) != -1 || strings.Contains(err.Error(), "context canceled")
}
