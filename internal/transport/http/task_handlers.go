package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/spaceshq/spaces-server/internal/identity"
	"github.com/spaceshq/spaces-server/internal/realtime"
	"github.com/spaceshq/spaces-server/internal/store"
)

// TaskHandlers provides HTTP handlers for task endpoints.
type TaskHandlers struct {
	store store.Store
	hub   *realtime.Hub
	log   *zerolog.Logger
}

// NewTaskHandlers creates a new task handlers instance.
func NewTaskHandlers(st store.Store, hub *realtime.Hub, logger *zerolog.Logger) *TaskHandlers {
	return &TaskHandlers{store: st, hub: hub, log: logger}
}

// List returns every task in a space.
// GET /api/tasks/:spaceID
func (h *TaskHandlers) List(c *gin.Context) {
	spaceID, err := strconv.ParseInt(c.Param("spaceID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid space id"})
		return
	}

	tasks, err := h.store.ListTasks(c.Request.Context(), spaceID)
	if err != nil {
		h.log.Error().Err(err).Int64("space_id", spaceID).Msg("failed to list tasks")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

// CreateTaskRequest is the body for creating a task.
type CreateTaskRequest struct {
	Title     string `json:"title" binding:"required"`
	Status    string `json:"status"`
	Assignees []any  `json:"assignees"`
}

// Create persists a task, drops a task message into each channel's history
// so it survives reloads, broadcasts it to the space's channels and notifies
// each assignee directly.
// POST /api/tasks/:spaceID
func (h *TaskHandlers) Create(c *gin.Context) {
	callerID, ok := requireUser(c)
	if !ok {
		return
	}
	spaceID, err := strconv.ParseInt(c.Param("spaceID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid space id"})
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Status == "" {
		req.Status = "pending"
	}

	ctx := c.Request.Context()
	task := &store.Task{
		ID:        uuid.NewString(),
		SpaceID:   spaceID,
		Title:     req.Title,
		Status:    req.Status,
		Assignees: req.Assignees,
		CreatedBy: callerID,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.store.SaveTask(ctx, task); err != nil {
		h.log.Error().Err(err).Int64("space_id", spaceID).Msg("failed to save task")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.recordTaskMessages(c, spaceID, task)

	frame := gin.H{"type": "task", "task": task}
	h.broadcastToSpaceChannels(c, spaceID, frame)
	for _, assignee := range task.Assignees {
		h.hub.SendToUser(ctx, assignee, gin.H{"type": "task_created", "task": task})
	}

	c.JSON(http.StatusCreated, gin.H{"status": "created", "task": task})
}

// UpdateTaskRequest changes a task's status.
type UpdateTaskRequest struct {
	Status string `json:"status" binding:"required"`
}

// Update changes a task's status and pushes the updated task to the space's
// channels, the assignees and the creator.
// PATCH /api/tasks/:spaceID/:taskID
func (h *TaskHandlers) Update(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
		return
	}
	spaceID, err := strconv.ParseInt(c.Param("spaceID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid space id"})
		return
	}
	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "status required"})
		return
	}

	ctx := c.Request.Context()
	task, err := h.store.GetTask(ctx, spaceID, c.Param("taskID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "task not found"})
			return
		}
		h.log.Error().Err(err).Msg("failed to load task")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	task.Status = req.Status
	if err := h.store.SaveTask(ctx, task); err != nil {
		h.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to save task")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	update := gin.H{"type": "task_updated", "task": task}
	seen := map[string]struct{}{}
	targets := append([]any{}, task.Assignees...)
	if task.CreatedBy != nil {
		targets = append(targets, task.CreatedBy)
	}
	for _, target := range targets {
		key, ok := identity.Normalize(target)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		h.hub.SendToUser(ctx, target, update)
	}
	h.broadcastToSpaceChannels(c, spaceID, gin.H{"type": "task", "task": task})

	c.JSON(http.StatusOK, gin.H{"status": "updated", "task": task})
}

// recordTaskMessages appends a task-typed message to every channel history
// in the space.
func (h *TaskHandlers) recordTaskMessages(c *gin.Context, spaceID int64, task *store.Task) {
	ctx := c.Request.Context()
	space, err := h.store.SpaceByID(ctx, spaceID)
	if err != nil {
		return
	}
	msg, err := json.Marshal(gin.H{
		"id":        task.ID,
		"userId":    task.CreatedBy,
		"text":      task.Title,
		"type":      "task",
		"status":    task.Status,
		"assignees": task.Assignees,
		"timestamp": task.CreatedAt,
	})
	if err != nil {
		return
	}
	for _, ch := range space.Channels {
		key, ok := identity.Normalize(ch.ID)
		if !ok {
			continue
		}
		if err := h.store.SaveMessage(ctx, key, msg); err != nil {
			h.log.Warn().Err(err).Str("chat_id", key).Msg("failed to record task message")
		}
	}
}

// broadcastToSpaceChannels fans a frame out to every channel in the space.
func (h *TaskHandlers) broadcastToSpaceChannels(c *gin.Context, spaceID int64, payload any) {
	ctx := c.Request.Context()
	space, err := h.store.SpaceByID(ctx, spaceID)
	if err != nil {
		return
	}
	for _, ch := range space.Channels {
		if key, ok := identity.Normalize(ch.ID); ok {
			h.hub.BroadcastToChannel(ctx, key, payload)
		}
	}
}
