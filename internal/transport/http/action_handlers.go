package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/identity"
	"github.com/spaceshq/spaces-server/internal/meet"
	"github.com/spaceshq/spaces-server/internal/realtime"
	"github.com/spaceshq/spaces-server/internal/store"
)

// ActionHandlers provides HTTP handlers for cross-cutting user actions:
// friend requests, space membership changes and meet invites.
type ActionHandlers struct {
	store  store.Store
	hub    *realtime.Hub
	issuer *meet.Issuer
	log    *zerolog.Logger
}

// NewActionHandlers creates a new action handlers instance.
func NewActionHandlers(st store.Store, hub *realtime.Hub, issuer *meet.Issuer, logger *zerolog.Logger) *ActionHandlers {
	return &ActionHandlers{store: st, hub: hub, issuer: issuer, log: logger}
}

// FriendRequestBody carries a pre-built notification to deliver to a user.
type FriendRequestBody struct {
	ToUserID     int64               `json:"toUserId" binding:"required"`
	Notification *store.Notification `json:"notification" binding:"required"`
}

// SendFriendRequest appends the notification to the recipient's feed and
// pushes it to their live connections.
// POST /api/actions/send-friend-request
func (h *ActionHandlers) SendFriendRequest(c *gin.Context) {
	var req FriendRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	if err := h.store.AppendNotification(ctx, req.ToUserID, req.Notification); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("to", req.ToUserID).Msg("failed to store friend request")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	h.hub.SendToUser(ctx, req.ToUserID, gin.H{"type": "notification", "notification": req.Notification})

	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// FriendDecisionBody resolves a pending friend request.
type FriendDecisionBody struct {
	UserID         int64  `json:"userId" binding:"required"`
	FriendID       int64  `json:"friendId" binding:"required"`
	NotificationID string `json:"notificationId"`
}

// AcceptFriend links both users, clears the pending notification and tells
// the requester their request was accepted.
// POST /api/actions/accept-friend
func (h *ActionHandlers) AcceptFriend(c *gin.Context) {
	var req FriendDecisionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.addFriend(ctx, req.UserID, req.FriendID)
	if err == nil {
		_, err = h.addFriend(ctx, req.FriendID, req.UserID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to link friends")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if req.NotificationID != "" {
		if err := h.store.RemoveNotification(ctx, req.UserID, req.NotificationID); err != nil {
			h.log.Warn().Err(err).Str("notification_id", req.NotificationID).Msg("failed to clear notification")
		}
	}

	h.notifyRequester(ctx, req.FriendID, "fr-accept", fmt.Sprintf("%s accepted your friend request", user.Name))

	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

// RejectFriend clears the pending notification and tells the requester the
// request was rejected. No friendship is recorded.
// POST /api/actions/reject-friend
func (h *ActionHandlers) RejectFriend(c *gin.Context) {
	var req FriendDecisionBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.GetUserByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if req.NotificationID != "" {
		if err := h.store.RemoveNotification(ctx, req.UserID, req.NotificationID); err != nil {
			h.log.Warn().Err(err).Str("notification_id", req.NotificationID).Msg("failed to clear notification")
		}
	}

	h.notifyRequester(ctx, req.FriendID, "fr-reject", fmt.Sprintf("%s rejected your friend request", user.Name))

	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (h *ActionHandlers) addFriend(ctx context.Context, userID, friendID int64) (*store.User, error) {
	user, err := h.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, id := range user.Friends {
		if id == friendID {
			return user, nil
		}
	}
	user.Friends = append(user.Friends, friendID)
	return user, h.store.UpdateUser(ctx, user)
}

// notifyRequester persists an informational notification and pushes it to
// the requester's live connections.
func (h *ActionHandlers) notifyRequester(ctx context.Context, userID int64, idPrefix, message string) {
	notif := &store.Notification{
		ID:        fmt.Sprintf("%s-%d", idPrefix, time.Now().UnixMilli()),
		Type:      "info",
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := h.store.AppendNotification(ctx, userID, notif); err != nil {
		h.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to store notification")
	}
	h.hub.SendToUser(ctx, userID, gin.H{"type": "notification", "notification": notif})
}

// AddMemberBody adds a user to a space or to a single channel.
type AddMemberBody struct {
	UserID    any   `json:"userIdToDetail" binding:"required"`
	SpaceID   int64 `json:"spaceId" binding:"required"`
	ChannelID any   `json:"channelId"`
}

// AddMember adds a user to a space. Without a channelId the user joins the
// space member list and every channel; with one, only that channel. The
// added user gets a sync_spaces nudge and all affected parties receive a
// space_updated frame.
// POST /api/actions/add-member
func (h *ActionHandlers) AddMember(c *gin.Context) {
	var req AddMemberBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	newKey, ok := identity.Normalize(req.UserID)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed user identifier"})
		return
	}

	ctx := c.Request.Context()
	space, err := h.store.SpaceByID(ctx, req.SpaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "space not found"})
			return
		}
		h.log.Error().Err(err).Int64("space_id", req.SpaceID).Msg("failed to load space")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if req.ChannelID == nil {
		if !identity.Contains(space.Members, newKey) {
			space.Members = append(space.Members, req.UserID)
		}
	}
	var affected []*store.Channel
	for i := range space.Channels {
		ch := &space.Channels[i]
		if req.ChannelID != nil && !identity.Equal(ch.ID, req.ChannelID) {
			continue
		}
		if !identity.Contains(ch.Members, newKey) {
			ch.Members = append(ch.Members, req.UserID)
		}
		affected = append(affected, ch)
	}

	if err := h.store.SaveSpace(ctx, space); err != nil {
		h.log.Error().Err(err).Int64("space_id", req.SpaceID).Msg("failed to save space")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.hub.SendToUser(ctx, req.UserID, gin.H{"type": "sync_spaces", "spaceId": space.ID})

	update := gin.H{
		"type":     "space_updated",
		"spaceId":  space.ID,
		"memberId": req.UserID,
		"members":  space.Members,
	}
	h.fanOutSpaceUpdate(ctx, space, affected, update)

	c.JSON(http.StatusOK, gin.H{"status": "member added"})
}

// RemoveMemberBody removes a user from a space or from a single channel.
type RemoveMemberBody struct {
	UserID    any   `json:"userIdToRemove" binding:"required"`
	SpaceID   int64 `json:"spaceId" binding:"required"`
	ChannelID any   `json:"channelId"`
}

// RemoveMember takes a user out of a space, notifies them and broadcasts the
// new membership to the affected channels and remaining members.
// POST /api/actions/remove-member
func (h *ActionHandlers) RemoveMember(c *gin.Context) {
	var req RemoveMemberBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	removeKey, ok := identity.Normalize(req.UserID)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed user identifier"})
		return
	}

	ctx := c.Request.Context()
	space, err := h.store.SpaceByID(ctx, req.SpaceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "space not found"})
			return
		}
		h.log.Error().Err(err).Int64("space_id", req.SpaceID).Msg("failed to load space")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	space.Members = withoutID(space.Members, removeKey)
	var affected []*store.Channel
	for i := range space.Channels {
		ch := &space.Channels[i]
		if req.ChannelID != nil && !identity.Equal(ch.ID, req.ChannelID) {
			continue
		}
		ch.Members = withoutID(ch.Members, removeKey)
		affected = append(affected, ch)
	}

	if err := h.store.SaveSpace(ctx, space); err != nil {
		h.log.Error().Err(err).Int64("space_id", req.SpaceID).Msg("failed to save space")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	notif := &store.Notification{
		ID:        fmt.Sprintf("rm-%d", time.Now().UnixMilli()),
		Type:      "info",
		Message:   fmt.Sprintf("You were removed from %s", space.Name),
		Timestamp: time.Now().UnixMilli(),
	}
	if removedID, err := strconv.ParseInt(removeKey, 10, 64); err == nil {
		if err := h.store.AppendNotification(ctx, removedID, notif); err != nil {
			h.log.Warn().Err(err).Str("user", removeKey).Msg("failed to store removal notification")
		}
	}
	h.hub.SendToUser(ctx, req.UserID, gin.H{"type": "notification", "notification": notif})

	update := gin.H{
		"type":            "space_updated",
		"spaceId":         space.ID,
		"removedMemberId": req.UserID,
		"members":         space.Members,
	}
	h.fanOutSpaceUpdate(ctx, space, affected, update)

	c.JSON(http.StatusOK, gin.H{"status": "member removed"})
}

// fanOutSpaceUpdate broadcasts a membership update to the affected channels
// and unicasts it to every remaining space member.
func (h *ActionHandlers) fanOutSpaceUpdate(ctx context.Context, space *store.Space, channels []*store.Channel, payload any) {
	for _, ch := range channels {
		if key, ok := identity.Normalize(ch.ID); ok {
			h.hub.BroadcastToChannel(ctx, key, payload)
		}
	}
	for _, member := range space.Members {
		h.hub.SendToUser(ctx, member, payload)
	}
}

func withoutID(members []any, key string) []any {
	out := members[:0]
	for _, m := range members {
		if k, ok := identity.Normalize(m); ok && k == key {
			continue
		}
		out = append(out, m)
	}
	return out
}

// AvatarUpdateBody announces a user's new avatar.
type AvatarUpdateBody struct {
	UserID     any    `json:"userId" binding:"required"`
	AvatarData string `json:"avatarData" binding:"required"`
}

// BroadcastAvatarUpdate pushes an avatar_updated notification to everyone who
// renders the user's avatar: their friends and every co-member of the spaces
// they belong to, excluding the user themselves. Updates are real-time only
// and never persisted.
// POST /api/actions/broadcast-avatar-update
func (h *ActionHandlers) BroadcastAvatarUpdate(c *gin.Context) {
	var req AvatarUpdateBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	userKey, ok := identity.Normalize(req.UserID)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "malformed user identifier"})
		return
	}

	ctx := c.Request.Context()
	userID, err := strconv.ParseInt(userKey, 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}
	user, err := h.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	// Recipients keyed by canonical id so a party listed as a friend and as
	// a space member is delivered to once.
	recipients := make(map[string]any)
	for _, friendID := range user.Friends {
		recipients[strconv.FormatInt(friendID, 10)] = friendID
	}
	spaces, err := h.store.ListSpaces(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list spaces")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	for _, sp := range spaces {
		if !identity.Contains(sp.Members, userKey) {
			continue
		}
		for _, member := range sp.Members {
			if key, ok := identity.Normalize(member); ok && key != userKey {
				recipients[key] = member
			}
		}
	}

	notif := gin.H{
		"type":       "avatar_updated",
		"userId":     req.UserID,
		"avatarData": req.AvatarData,
		"timestamp":  time.Now().UnixMilli(),
	}
	payload := gin.H{"type": "notification", "notification": notif}
	for _, recipient := range recipients {
		h.hub.SendToUser(ctx, recipient, payload)
	}

	c.JSON(http.StatusOK, gin.H{"status": "broadcasted", "recipients": len(recipients)})
}

// MeetInviteBody announces a video call to a channel and/or a set of users.
type MeetInviteBody struct {
	OrganizerID   int64  `json:"organizerId" binding:"required"`
	TargetUserIDs []any  `json:"targetUserIds"`
	SpaceID       any    `json:"spaceId"`
	ChannelID     any    `json:"channelId"`
	MeetingLink   string `json:"meetingLink"`
	MeetingTitle  string `json:"meetingTitle"`
}

// SendMeetInvite pushes a meet_invite notification to a channel and to each
// listed user. When no meeting link is supplied and the token issuer is
// configured, join credentials for a managed room are minted instead.
// Invites are real-time only and never persisted.
// POST /api/actions/send-meet-invite
func (h *ActionHandlers) SendMeetInvite(c *gin.Context) {
	var req MeetInviteBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	title := req.MeetingTitle
	if title == "" {
		title = "Video call"
	}

	var organizerName string
	if organizer, err := h.store.GetUserByID(ctx, req.OrganizerID); err == nil {
		organizerName = organizer.Name
	}

	notif := gin.H{
		"id":        fmt.Sprintf("meet-%d", time.Now().UnixMilli()),
		"type":      "meet_invite",
		"from":      req.OrganizerID,
		"fromName":  organizerName,
		"spaceId":   req.SpaceID,
		"channelId": req.ChannelID,
		"title":     title,
		"link":      req.MeetingLink,
		"timestamp": time.Now().UnixMilli(),
	}

	if req.MeetingLink == "" && h.issuer.Enabled() {
		room := meetRoomName(req.SpaceID, req.ChannelID)
		join, err := h.issuer.Issue(room, req.OrganizerID, organizerName)
		if err != nil {
			h.log.Error().Err(err).Str("room", room).Msg("failed to mint join token")
		} else {
			notif["join"] = join
			notif["link"] = join.URL
		}
	}

	payload := gin.H{"type": "notification", "notification": notif}
	if req.ChannelID != nil {
		if key, ok := identity.Normalize(req.ChannelID); ok {
			h.hub.BroadcastToChannel(ctx, key, payload)
		}
	}
	for _, target := range req.TargetUserIDs {
		h.hub.SendToUser(ctx, target, payload)
	}

	c.JSON(http.StatusOK, gin.H{"status": "invites_sent"})
}

func meetRoomName(spaceID, channelID any) string {
	if key, ok := identity.Normalize(channelID); ok {
		return "channel-" + key
	}
	if key, ok := identity.Normalize(spaceID); ok {
		return "space-" + key
	}
	return fmt.Sprintf("adhoc-%d", time.Now().UnixMilli())
}
