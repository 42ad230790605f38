package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/auth"
	"github.com/spaceshq/spaces-server/internal/realtime"
	"github.com/spaceshq/spaces-server/internal/store"
)

// publicEmailDomains cannot register an organization.
var publicEmailDomains = map[string]struct{}{
	"gmail.com":   {},
	"yahoo.com":   {},
	"outlook.com": {},
	"hotmail.com": {},
	"icloud.com":  {},
}

// OrgHandlers provides HTTP handlers for organization endpoints.
type OrgHandlers struct {
	store store.Store
	hub   *realtime.Hub
	log   *zerolog.Logger
}

// NewOrgHandlers creates a new organization handlers instance.
func NewOrgHandlers(st store.Store, hub *realtime.Hub, logger *zerolog.Logger) *OrgHandlers {
	return &OrgHandlers{store: st, hub: hub, log: logger}
}

// RegisterOrgRequest registers an organization for the admin's email domain.
type RegisterOrgRequest struct {
	Name       string `json:"name" binding:"required"`
	AdminEmail string `json:"adminEmail" binding:"required,email"`
	LogoURL    string `json:"logoUrl"`
}

// Register creates an organization record keyed by the admin's email domain
// and returns the DNS token the admin must publish to prove domain
// ownership. Registering an existing domain rotates its token.
// POST /api/org/register
func (h *OrgHandlers) Register(c *gin.Context) {
	var req RegisterOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name and adminEmail required"})
		return
	}

	domain := auth.DomainOf(req.AdminEmail)
	if domain == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid adminEmail"})
		return
	}
	if _, public := publicEmailDomains[domain]; public {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "public email domains not allowed"})
		return
	}

	ctx := c.Request.Context()
	org, err := h.store.GetOrgByDomain(ctx, domain)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Str("domain", domain).Msg("failed to load organization")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	status := "created"
	if org != nil {
		org.DNSToken = uuid.New().String()
		org.Verified = false
		status = "token_rotated"
	} else {
		org = &store.Organization{
			Name:       req.Name,
			AdminEmail: req.AdminEmail,
			Domain:     domain,
			LogoURL:    req.LogoURL,
			DNSToken:   uuid.New().String(),
			CreatedAt:  time.Now().Unix(),
		}
	}

	if err := h.store.SaveOrg(ctx, org); err != nil {
		h.log.Error().Err(err).Str("domain", domain).Msg("failed to save organization")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Str("domain", domain).Msg("organization registered")
	c.JSON(http.StatusCreated, gin.H{"status": status, "domain": domain, "dnsToken": org.DNSToken})
}

// VerifyOrgRequest confirms domain ownership with the issued DNS token.
type VerifyOrgRequest struct {
	Domain   string `json:"domain" binding:"required"`
	DNSToken string `json:"dnsToken" binding:"required"`
}

// Verify marks the organization verified when the presented token matches,
// and tells every online admin of the domain.
// POST /api/org/verify
func (h *OrgHandlers) Verify(c *gin.Context) {
	var req VerifyOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "domain and dnsToken required"})
		return
	}

	ctx := c.Request.Context()
	org, err := h.store.GetOrgByDomain(ctx, req.Domain)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "organization not found"})
			return
		}
		h.log.Error().Err(err).Str("domain", req.Domain).Msg("failed to load organization")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if org.DNSToken != req.DNSToken {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid token"})
		return
	}

	org.Verified = true
	if err := h.store.SaveOrg(ctx, org); err != nil {
		h.log.Error().Err(err).Str("domain", req.Domain).Msg("failed to save organization")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	domain := org.Domain
	h.hub.ScopedBroadcast(ctx, func(m realtime.Meta) bool {
		return m.Domain == domain && m.Role == "admin"
	}, gin.H{"type": "org_verified", "domain": domain})

	c.JSON(http.StatusOK, gin.H{"status": "verified", "domain": domain})
}

// InvitePermissionsRequest updates a user's invite permissions.
type InvitePermissionsRequest struct {
	UserID      int64                   `json:"userId" binding:"required"`
	Permissions store.InvitePermissions `json:"permissions"`
}

// SetInvitePermissions stores new invite permissions for a user and pushes
// the change to their live connections.
// PUT /api/org/invite-permissions
func (h *OrgHandlers) SetInvitePermissions(c *gin.Context) {
	var req InvitePermissionsRequest
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
		h.log.Error().Err(err).Int64("user_id", req.UserID).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	user.Invite = req.Permissions
	if err := h.store.UpdateUser(ctx, user); err != nil {
		h.log.Error().Err(err).Int64("user_id", req.UserID).Msg("failed to update user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.hub.SendToUser(ctx, req.UserID, gin.H{
		"type":        "invite_permissions_updated",
		"permissions": req.Permissions,
	})

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
