package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/access"
	"github.com/spaceshq/spaces-server/internal/realtime"
	"github.com/spaceshq/spaces-server/internal/store"
)

// MessageHandlers provides HTTP handlers for message endpoints.
type MessageHandlers struct {
	store store.Store
	gate  *access.Gate
	hub   *realtime.Hub
	log   *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(st store.Store, gate *access.Gate, hub *realtime.Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{store: st, gate: gate, hub: hub, log: logger}
}

// List returns the message history for a channel. A caller without access
// gets an empty list rather than an error, so clients can poll a channel
// they were just removed from without surfacing failures.
// GET /api/messages/:chatID
func (h *MessageHandlers) List(c *gin.Context) {
	chatID := c.Param("chatID")
	ctx := c.Request.Context()

	callerID, identified := currentUser(c)
	if !identified {
		c.JSON(http.StatusOK, []json.RawMessage{})
		return
	}
	if _, err := h.gate.Resolve(ctx, chatID, callerID); err != nil {
		var gateErr *access.Error
		if errors.As(err, &gateErr) {
			c.JSON(http.StatusOK, []json.RawMessage{})
			return
		}
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("failed to resolve channel access")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	messages, err := h.store.ListMessages(ctx, chatID)
	if err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if messages == nil {
		messages = []json.RawMessage{}
	}
	c.JSON(http.StatusOK, messages)
}

// Save persists a message and broadcasts it verbatim to every connection on
// the channel, including the author's.
// POST /api/messages/:chatID
func (h *MessageHandlers) Save(c *gin.Context) {
	callerID, ok := requireUser(c)
	if !ok {
		return
	}
	chatID := c.Param("chatID")
	ctx := c.Request.Context()

	if _, err := h.gate.Resolve(ctx, chatID, callerID); err != nil {
		denyAccess(c, err)
		return
	}

	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.store.SaveMessage(ctx, chatID, body); err != nil {
		h.log.Error().Err(err).Str("chat_id", chatID).Msg("failed to save message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.hub.BroadcastToChannel(ctx, chatID, body)

	c.JSON(http.StatusCreated, gin.H{"status": "sent"})
}

// Update rewrites a stored message in place. The target is matched by the id
// carried inside the message body; clients pick changes up on the next
// history fetch.
// PATCH /api/messages/:chatID/:messageID
func (h *MessageHandlers) Update(c *gin.Context) {
	callerID, ok := requireUser(c)
	if !ok {
		return
	}
	chatID := c.Param("chatID")
	messageID := c.Param("messageID")
	ctx := c.Request.Context()

	if _, err := h.gate.Resolve(ctx, chatID, callerID); err != nil {
		denyAccess(c, err)
		return
	}

	var body json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.store.UpdateMessage(ctx, chatID, messageID, body); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.log.Error().Err(err).Str("chat_id", chatID).Str("message_id", messageID).Msg("failed to update message")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
