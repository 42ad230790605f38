package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/access"
	"github.com/spaceshq/spaces-server/internal/auth"
)

// ContextKeyUserID is the context key for the resolved user id.
const ContextKeyUserID = "user_id"

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IdentityMiddleware resolves the calling user from either a Bearer token
// or the X-User-Id header. A valid token wins. Resolution is best-effort:
// handlers that require identity check for it themselves, so read-only
// public routes stay open.
func IdentityMiddleware(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if parts := strings.SplitN(authHeader, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if claims, err := authService.ValidateToken(parts[1]); err == nil {
				c.Set(ContextKeyUserID, claims.UserID)
				c.Next()
				return
			}
		}
		if header := c.GetHeader("X-User-Id"); header != "" {
			if id, err := strconv.ParseInt(header, 10, 64); err == nil {
				c.Set(ContextKeyUserID, id)
			}
		}
		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests after completion.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// currentUser returns the resolved caller id, if any.
func currentUser(c *gin.Context) (int64, bool) {
	v, exists := c.Get(ContextKeyUserID)
	if !exists {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// requireUser aborts with 401 when no identity was resolved.
func requireUser(c *gin.Context) (int64, bool) {
	id, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "identity required"})
	}
	return id, ok
}

// denyAccess maps a gate denial to an HTTP response.
func denyAccess(c *gin.Context, err error) {
	var gateErr *access.Error
	if !errors.As(err, &gateErr) {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	status := http.StatusForbidden
	switch gateErr.Code {
	case access.CodeNotFound:
		status = http.StatusNotFound
	case access.CodeMalformedIdentifier:
		status = http.StatusBadRequest
	case access.CodeLastOwner:
		status = http.StatusConflict
	}
	c.JSON(status, ErrorResponse{Error: gateErr.Message})
}
