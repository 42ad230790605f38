package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/access"
	"github.com/spaceshq/spaces-server/internal/identity"
	"github.com/spaceshq/spaces-server/internal/realtime"
	"github.com/spaceshq/spaces-server/internal/store"
)

// SpaceHandlers provides HTTP handlers for space endpoints.
type SpaceHandlers struct {
	store store.Store
	gate  *access.Gate
	hub   *realtime.Hub
	log   *zerolog.Logger
}

// NewSpaceHandlers creates a new space handlers instance.
func NewSpaceHandlers(st store.Store, gate *access.Gate, hub *realtime.Hub, logger *zerolog.Logger) *SpaceHandlers {
	return &SpaceHandlers{store: st, gate: gate, hub: hub, log: logger}
}

// List returns every space.
// GET /api/spaces
func (h *SpaceHandlers) List(c *gin.Context) {
	spaces, err := h.store.ListSpaces(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list spaces")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if spaces == nil {
		spaces = []*store.Space{}
	}
	c.JSON(http.StatusOK, spaces)
}

// Save upserts a space. The caller becomes the owner on first save, and is
// folded into the member list if missing. Every member gets a space_updated
// frame on their notifications socket.
// POST /api/spaces
func (h *SpaceHandlers) Save(c *gin.Context) {
	callerID, ok := requireUser(c)
	if !ok {
		return
	}

	var space store.Space
	if err := c.ShouldBindJSON(&space); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if space.ID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "space id is required"})
		return
	}
	if space.Name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "space name is required"})
		return
	}

	ctx := c.Request.Context()
	if space.OwnerID == nil {
		space.OwnerID = callerID
	}
	if callerKey, ok := identity.Normalize(callerID); ok && !identity.Contains(space.Members, callerKey) {
		space.Members = append(space.Members, callerID)
	}

	if err := h.store.SaveSpace(ctx, &space); err != nil {
		h.log.Error().Err(err).Str("space", space.Name).Msg("failed to save space")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	update := gin.H{"type": "space_updated", "space": &space}
	for _, member := range space.Members {
		h.hub.SendToUser(ctx, member, update)
	}

	c.JSON(http.StatusOK, &space)
}

// SpacesByIDsRequest selects a set of spaces by id.
type SpacesByIDsRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

// ByIDs returns the spaces matching the given ids. Imported documents often
// leave the owner out of the member arrays; those are repaired in place, the
// owner folded into the space and into every channel, and persisted.
// POST /api/spaces/by-ids
func (h *SpaceHandlers) ByIDs(c *gin.Context) {
	var req SpacesByIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	spaces, err := h.store.ListSpacesByIDs(ctx, req.IDs)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load spaces")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	for _, space := range spaces {
		ownerKey, ok := identity.Normalize(space.OwnerID)
		if !ok {
			continue
		}
		changed := false
		if !identity.Contains(space.Members, ownerKey) {
			space.Members = append(space.Members, space.OwnerID)
			changed = true
		}
		for i := range space.Channels {
			ch := &space.Channels[i]
			if !identity.Contains(ch.Members, ownerKey) {
				ch.Members = append(ch.Members, space.OwnerID)
				changed = true
			}
		}
		if !changed {
			continue
		}
		if err := h.store.SaveSpace(ctx, space); err != nil {
			h.log.Warn().Err(err).Int64("space_id", space.ID).Msg("failed to persist owner membership repair")
		}
	}

	if spaces == nil {
		spaces = []*store.Space{}
	}
	c.JSON(http.StatusOK, spaces)
}

// ChannelRoleRequest assigns a role to a user within a channel.
type ChannelRoleRequest struct {
	SpaceID   int64  `json:"spaceId" binding:"required"`
	ChannelID any    `json:"channelId" binding:"required"`
	UserID    any    `json:"userId" binding:"required"`
	Role      string `json:"role" binding:"required"`
}

// SetChannelRole grants or revokes a channel role. Only admins and owners
// may manage roles, and only owners may grant or revoke ownership. The
// updated role map is broadcast to everyone connected to the channel.
// POST /api/spaces/channel/role
func (h *SpaceHandlers) SetChannelRole(c *gin.Context) {
	callerID, ok := requireUser(c)
	if !ok {
		return
	}

	var req ChannelRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	role, ok := access.ParseRole(req.Role)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown role"})
		return
	}

	ctx := c.Request.Context()
	space, channel, err := h.gate.SetRole(ctx, req.SpaceID, req.ChannelID, callerID, req.UserID, role)
	if err != nil {
		denyAccess(c, err)
		return
	}

	if key, ok := identity.Normalize(channel.ID); ok {
		h.hub.BroadcastToChannel(ctx, key, gin.H{
			"type":       "channel_roles_updated",
			"space_id":   space.ID,
			"channel_id": channel.ID,
			"roles":      channel.Roles,
		})
	}

	c.JSON(http.StatusOK, gin.H{"space": space, "channel": channel})
}

// ChannelMemberRequest adds or removes a channel member.
type ChannelMemberRequest struct {
	SpaceID   int64  `json:"spaceId" binding:"required"`
	ChannelID any    `json:"channelId" binding:"required"`
	UserID    any    `json:"userId" binding:"required"`
	Action    string `json:"action" binding:"required,oneof=add remove"`
}

// ModifyChannelMember adds or removes a member from a channel and broadcasts
// the new membership to the channel.
// POST /api/spaces/channel/member
func (h *SpaceHandlers) ModifyChannelMember(c *gin.Context) {
	callerID, ok := requireUser(c)
	if !ok {
		return
	}

	var req ChannelMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	var space *store.Space
	var channel *store.Channel
	var err error
	if req.Action == "add" {
		space, channel, err = h.gate.AddMember(ctx, req.SpaceID, req.ChannelID, callerID, req.UserID)
	} else {
		space, channel, err = h.gate.RemoveMember(ctx, req.SpaceID, req.ChannelID, callerID, req.UserID)
	}
	if err != nil {
		denyAccess(c, err)
		return
	}

	if key, ok := identity.Normalize(channel.ID); ok {
		h.hub.BroadcastToChannel(ctx, key, gin.H{
			"type":       "channel_member_changed",
			"space_id":   space.ID,
			"channel_id": channel.ID,
			"members":    channel.Members,
			"roles":      channel.Roles,
		})
	}

	c.JSON(http.StatusOK, gin.H{"space": space, "channel": channel})
}
