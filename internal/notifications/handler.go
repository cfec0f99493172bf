package notifications

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/middleware"
	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

// Handler exposes the notification HTTP API. All routes operate on the
// caller's own notifications.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a notification handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts notification routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/notifications")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/unread-count", h.UnreadCount)
	g.POST("/read-all", h.MarkAllRead)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Patch)
	g.DELETE("/:id", h.Delete)
}

func callerID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(middleware.ContextUserID)
	id, _ := v.(uuid.UUID)
	return id
}

// List pages notifications with userId, isRead and type filters. Without a
// userId the caller's own inbox is listed.
func (h *Handler) List(c *gin.Context) {
	userID := callerID(c)
	if s := c.Query("userId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid userId")
			return
		}
		userID = id
	}
	f := ListFilter{UserID: &userID}
	if s := c.Query("isRead"); s != "" {
		read := s == "true"
		f.IsRead = &read
	}
	if s := c.Query("type"); s != "" {
		typ, ok := models.ParseNotificationType(s)
		if !ok {
			response.BadRequest(c, "invalid type")
			return
		}
		f.Type = &typ
	}

	page := response.ParsePage(c)
	list, total, err := h.repo.List(c.Request.Context(), f, page)
	if err != nil {
		h.logger.Error("list notifications failed", zap.Error(err))
		response.Internal(c, "failed to list notifications")
		return
	}
	response.OK(c, response.NewPaginated(list, total, page))
}

type createRequest struct {
	Title    string          `json:"title" binding:"required"`
	Message  string          `json:"message" binding:"required"`
	Type     string          `json:"type"`
	UserID   uuid.UUID       `json:"userId" binding:"required"`
	Metadata json.RawMessage `json:"metadata"`
}

// Create persists a notification addressed to an arbitrary user.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "title, message and userId are required")
		return
	}
	typ := models.NotifyInfo
	if req.Type != "" {
		t, ok := models.ParseNotificationType(req.Type)
		if !ok {
			response.BadRequest(c, "invalid type")
			return
		}
		typ = t
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		response.BadRequest(c, "metadata must be valid JSON")
		return
	}

	n := &models.Notification{
		Title:    req.Title,
		Message:  req.Message,
		Type:     typ,
		UserID:   req.UserID,
		Metadata: req.Metadata,
	}
	if err := h.repo.Create(c.Request.Context(), n); err != nil {
		h.logger.Error("create notification failed", zap.Error(err))
		response.Internal(c, "failed to create notification")
		return
	}
	response.Created(c, n)
}

// Get returns one of the caller's notifications.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	n, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get notification failed", zap.Error(err))
		response.Internal(c, "failed to get notification")
		return
	}
	if n == nil || n.UserID != callerID(c) {
		response.NotFound(c, "notification not found")
		return
	}
	response.OK(c, n)
}

// UnreadCount returns the caller's unread notification count.
func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.repo.UnreadCount(c.Request.Context(), callerID(c))
	if err != nil {
		h.logger.Error("unread count failed", zap.Error(err))
		response.Internal(c, "failed to count notifications")
		return
	}
	response.OK(c, gin.H{"unread": n})
}

// Patch updates one of the caller's notifications. Only the read flag is
// mutable.
func (h *Handler) Patch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	var req struct {
		IsRead *bool `json:"isRead"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.IsRead == nil || !*req.IsRead {
		response.BadRequest(c, "isRead=true is the only supported update")
		return
	}
	ok, err := h.repo.MarkRead(c.Request.Context(), id, callerID(c))
	if err != nil {
		h.logger.Error("mark read failed", zap.Error(err))
		response.Internal(c, "failed to mark notification read")
		return
	}
	if !ok {
		response.NotFound(c, "notification not found")
		return
	}
	response.OK(c, gin.H{"read": true})
}

// MarkAllRead marks all the caller's notifications read.
func (h *Handler) MarkAllRead(c *gin.Context) {
	n, err := h.repo.MarkAllRead(c.Request.Context(), callerID(c))
	if err != nil {
		h.logger.Error("mark all read failed", zap.Error(err))
		response.Internal(c, "failed to mark notifications read")
		return
	}
	response.OK(c, gin.H{"updated": n})
}

// Delete removes one of the caller's notifications.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	ok, err := h.repo.Delete(c.Request.Context(), id, callerID(c))
	if err != nil {
		h.logger.Error("delete notification failed", zap.Error(err))
		response.Internal(c, "failed to delete notification")
		return
	}
	if !ok {
		response.NotFound(c, "notification not found")
		return
	}
	response.NoContent(c)
}
