package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/auth"
	"github.com/spaceshq/spaces-server/internal/realtime"
	"github.com/spaceshq/spaces-server/internal/store"
)

// UserHandlers provides HTTP handlers for user endpoints.
type UserHandlers struct {
	store store.Store
	auth  *auth.Service
	hub   *realtime.Hub
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.Store, authService *auth.Service, hub *realtime.Hub, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{store: st, auth: authService, hub: hub, log: logger}
}

// SignupRequest represents the signup request body.
type SignupRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID       int64                   `json:"id"`
	Name     string                  `json:"name"`
	Email    string                  `json:"email"`
	Role     string                  `json:"role"`
	Friends  []int64                 `json:"friends"`
	Invite   store.InvitePermissions `json:"invitePermissions"`
	Creation string                  `json:"createdAt"`
}

// AuthResponse carries a user and its token.
type AuthResponse struct {
	User  UserResponse `json:"user"`
	Token string       `json:"token"`
}

func userResponse(u *store.User) UserResponse {
	friends := u.Friends
	if friends == nil {
		friends = []int64{}
	}
	return UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Role:     u.Role,
		Friends:  friends,
		Invite:   u.Invite,
		Creation: u.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// Signup handles user registration.
// POST /api/users/signup
func (h *UserHandlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid signup request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, token, err := h.auth.Signup(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			c.JSON(http.StatusConflict, ErrorResponse{Error: "email already registered"})
			return
		}
		h.log.Error().Err(err).Str("email", req.Email).Msg("failed to sign up user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", user.ID).Msg("user registered")
	c.JSON(http.StatusCreated, AuthResponse{User: userResponse(user), Token: token})
}

// Login handles user login.
// POST /api/users/login
func (h *UserHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	user, token, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{User: userResponse(user), Token: token})
}

// List returns all users.
// GET /api/users
func (h *UserHandlers) List(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse(u))
	}
	c.JSON(http.StatusOK, out)
}

// ByEmail looks a user up by their email address, case-insensitively.
// GET /api/users/by-email/:email
func (h *UserHandlers) ByEmail(c *gin.Context) {
	user, err := h.store.GetUserByEmail(c.Request.Context(), c.Param("email"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to load user by email")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, userResponse(user))
}

// Search finds users by name.
// GET /api/users/search/:query
func (h *UserHandlers) Search(c *gin.Context) {
	users, err := h.store.SearchUsers(c.Request.Context(), c.Param("query"))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse(u))
	}
	c.JSON(http.StatusOK, out)
}

// UpdateUserRequest represents the profile update body.
type UpdateUserRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// Update changes a user's profile and notifies the user's own connections
// and friends.
// PUT /api/users/:id
func (h *UserHandlers) Update(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", id).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	user.Name = req.Name
	if err := h.store.UpdateUser(ctx, user); err != nil {
		h.log.Error().Err(err).Int64("user_id", id).Msg("failed to update user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	update := gin.H{"type": "profileUpdated", "user": userResponse(user)}
	h.hub.SendToUser(ctx, id, update)
	for _, friendID := range user.Friends {
		h.hub.SendToUser(ctx, friendID, update)
	}

	c.JSON(http.StatusOK, userResponse(user))
}
