// Package http exposes the REST API and the two websocket endpoints, and
// translates between transports and the realtime/access core.
package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/access"
	"github.com/spaceshq/spaces-server/internal/auth"
	"github.com/spaceshq/spaces-server/internal/config"
	"github.com/spaceshq/spaces-server/internal/meet"
	"github.com/spaceshq/spaces-server/internal/realtime"
	"github.com/spaceshq/spaces-server/internal/store"
)

// NewServer builds the HTTP server with all routes registered.
func NewServer(hub *realtime.Hub, gate *access.Gate, st store.Store, authService *auth.Service, issuer *meet.Issuer, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(IdentityMiddleware(authService))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	users := NewUserHandlers(st, authService, hub, logger)
	spaces := NewSpaceHandlers(st, gate, hub, logger)
	messages := NewMessageHandlers(st, gate, hub, logger)
	actions := NewActionHandlers(st, hub, issuer, logger)
	tasks := NewTaskHandlers(st, hub, logger)
	orgs := NewOrgHandlers(st, hub, logger)
	sockets := NewWSHandlers(hub, gate, st, authService, logger)

	api := router.Group("/api")
	{
		api.POST("/users/signup", users.Signup)
		api.POST("/users/login", users.Login)
		api.GET("/users", users.List)
		api.GET("/users/by-email/:email", users.ByEmail)
		api.GET("/users/search/:query", users.Search)
		api.PUT("/users/:id", users.Update)

		api.GET("/spaces", spaces.List)
		api.POST("/spaces", spaces.Save)
		api.POST("/spaces/by-ids", spaces.ByIDs)
		api.POST("/spaces/channel/role", spaces.SetChannelRole)
		api.POST("/spaces/channel/member", spaces.ModifyChannelMember)

		api.GET("/messages/:chatID", messages.List)
		api.POST("/messages/:chatID", messages.Save)
		api.PATCH("/messages/:chatID/:messageID", messages.Update)

		api.POST("/actions/send-friend-request", actions.SendFriendRequest)
		api.POST("/actions/accept-friend", actions.AcceptFriend)
		api.POST("/actions/reject-friend", actions.RejectFriend)
		api.POST("/actions/add-member", actions.AddMember)
		api.POST("/actions/remove-member", actions.RemoveMember)
		api.POST("/actions/send-meet-invite", actions.SendMeetInvite)
		api.POST("/actions/broadcast-avatar-update", actions.BroadcastAvatarUpdate)

		api.GET("/tasks/:spaceID", tasks.List)
		api.POST("/tasks/:spaceID", tasks.Create)
		api.PATCH("/tasks/:spaceID/:taskID", tasks.Update)

		api.POST("/org/register", orgs.Register)
		api.POST("/org/verify", orgs.Verify)
		api.PUT("/org/invite-permissions", orgs.SetInvitePermissions)
	}

	router.GET("/ws/chat/:chatID", sockets.Chat)
	router.GET("/ws/notifications", sockets.Notifications)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	fmt.Fprint(c.Writer, "ok")
}
