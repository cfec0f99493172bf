package participants

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
	"github.com/qikhub/backend/pkg/storage"
)

// EventLookup checks that an event exists before registering a participant into it.
type EventLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
}

// Handler exposes the participant HTTP API.
type Handler struct {
	repo   *Repository
	events EventLookup
	s3     *storage.S3 // nil disables avatar uploads
	logger *zap.Logger
}

// NewHandler creates a participant handler.
func NewHandler(repo *Repository, events EventLookup, s3 *storage.S3, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, events: events, s3: s3, logger: logger}
}

// RegisterRoutes mounts participant routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/participants")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/avatar-upload-url", h.AvatarUploadURL)
	g.POST("/:id/avatar-confirm", h.AvatarConfirm)
	rg.GET("/events/:id/participants", h.ListByEvent)
}

type createRequest struct {
	EventID    uuid.UUID       `json:"eventId" binding:"required"`
	Name       string          `json:"name" binding:"required"`
	Email      string          `json:"email" binding:"required,email"`
	Phone      *string         `json:"phone"`
	Status     string          `json:"status"`
	CustomData json.RawMessage `json:"customData"`
}

// Create registers a participant for an event you can see. Registration state
// starts at REGISTERED unless the event requires approval, or the caller sets
// it explicitly.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "eventId, name and a valid email are required")
		return
	}
	if len(req.CustomData) > 0 && !json.Valid(req.CustomData) {
		response.BadRequest(c, "customData must be valid JSON")
		return
	}
	event, err := h.events.GetByID(c.Request.Context(), req.EventID)
	if err != nil {
		h.logger.Error("lookup event failed", zap.Error(err))
		response.Internal(c, "failed to register participant")
		return
	}
	if event == nil {
		response.NotFound(c, "event not found")
		return
	}
	if !event.RegistrationOpen {
		response.BadRequest(c, "registration is closed for this event")
		return
	}

	status := models.ParticipantRegistered
	if req.Status != "" {
		var ok bool
		if status, ok = models.ParseParticipantStatus(req.Status); !ok {
			response.BadRequest(c, "invalid participant status")
			return
		}
	} else if !event.RequireApproval {
		status = models.ParticipantApproved
	}

	p := &models.Participant{
		EventID:    req.EventID,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Status:     status,
		CustomData: req.CustomData,
	}
	if err := h.repo.Create(c.Request.Context(), p); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			response.Conflict(c, "email already registered for event")
			return
		}
		h.logger.Error("create participant failed", zap.Error(err))
		response.Internal(c, "failed to register participant")
		return
	}
	response.Created(c, p)
}

// List pages participants with eventId, status and search filters.
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	if s := c.Query("eventId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid eventId")
			return
		}
		f.EventID = &id
	}
	if s := c.Query("status"); s != "" {
		status, ok := models.ParseParticipantStatus(s)
		if !ok {
			response.BadRequest(c, "invalid status")
			return
		}
		f.Status = &status
	}
	f.Search = c.Query("search")

	page := response.ParsePage(c)
	list, total, err := h.repo.List(c.Request.Context(), f, page)
	if err != nil {
		h.logger.Error("list participants failed", zap.Error(err))
		response.Internal(c, "failed to list participants")
		return
	}
	response.OK(c, response.NewPaginated(list, total, page))
}

// ListByEvent pages one event's participants, with the same status and search
// filters as List.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	f := ListFilter{EventID: &eventID, Search: c.Query("search")}
	if s := c.Query("status"); s != "" {
		status, ok := models.ParseParticipantStatus(s)
		if !ok {
			response.BadRequest(c, "invalid status")
			return
		}
		f.Status = &status
	}
	page := response.ParsePage(c)
	list, total, err := h.repo.List(c.Request.Context(), f, page)
	if err != nil {
		h.logger.Error("list participants failed", zap.Error(err))
		response.Internal(c, "failed to list participants")
		return
	}
	response.OK(c, response.NewPaginated(list, total, page))
}

// Get returns one participant.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get participant failed", zap.Error(err))
		response.Internal(c, "failed to get participant")
		return
	}
	if p == nil {
		response.NotFound(c, "participant not found")
		return
	}
	response.OK(c, p)
}

type updateRequest struct {
	Name       *string         `json:"name"`
	Email      *string         `json:"email"`
	Phone      *string         `json:"phone"`
	Status     *string         `json:"status"`
	CustomData json.RawMessage `json:"customData"`
}

// Update applies a partial update.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if len(req.CustomData) > 0 && !json.Valid(req.CustomData) {
		response.BadRequest(c, "customData must be valid JSON")
		return
	}
	u := UpdateParams{Name: req.Name, Email: req.Email, Phone: req.Phone, CustomData: req.CustomData}
	if req.Status != nil {
		status, ok := models.ParseParticipantStatus(*req.Status)
		if !ok {
			response.BadRequest(c, "invalid participant status")
			return
		}
		u.Status = &status
	}
	p, err := h.repo.Update(c.Request.Context(), id, u)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			response.Conflict(c, "email already registered for event")
			return
		}
		h.logger.Error("update participant failed", zap.Error(err))
		response.Internal(c, "failed to update participant")
		return
	}
	if p == nil {
		response.NotFound(c, "participant not found")
		return
	}
	response.OK(c, p)
}

// Delete removes a participant.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	ok, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("delete participant failed", zap.Error(err))
		response.Internal(c, "failed to delete participant")
		return
	}
	if !ok {
		response.NotFound(c, "participant not found")
		return
	}
	response.NoContent(c)
}

type avatarURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType"`
}

// AvatarUploadURL returns a pre-signed PUT URL the client uploads the avatar to
// directly, keeping image bytes off this server.
func (h *Handler) AvatarUploadURL(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "avatar uploads are not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	var req avatarURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "filename is required")
		return
	}
	if !storage.ValidateAvatarFileType(req.ContentType, req.Filename) {
		response.BadRequest(c, "file type not allowed: use jpeg, png or webp")
		return
	}
	p, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get participant failed", zap.Error(err))
		response.Internal(c, "failed to prepare upload")
		return
	}
	if p == nil {
		response.NotFound(c, "participant not found")
		return
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(req.Filename)
	}
	key := storage.AvatarKey(id.String(), req.Filename)
	url, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(),
		h.s3.AvatarBucket(), key, contentType, h.s3.PresignExpire())
	if err != nil {
		h.logger.Error("presign avatar upload failed", zap.Error(err))
		response.Internal(c, "failed to prepare upload")
		return
	}
	response.OK(c, gin.H{
		"uploadUrl":   url,
		"key":         key,
		"publicUrl":   h.s3.PublicObjectURL(h.s3.AvatarBucket(), key),
		"contentType": contentType,
		"maxFileSize": storage.MaxAvatarFileSize,
	})
}

type avatarConfirmRequest struct {
	Key string `json:"key" binding:"required"`
}

// AvatarConfirm records the uploaded object as the participant's avatar.
func (h *Handler) AvatarConfirm(c *gin.Context) {
	if h.s3 == nil {
		response.ServiceUnavailable(c, "avatar uploads are not configured")
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	var req avatarConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "key is required")
		return
	}
	url := h.s3.PublicObjectURL(h.s3.AvatarBucket(), req.Key)
	ok, err := h.repo.SetAvatar(c.Request.Context(), id, url)
	if err != nil {
		h.logger.Error("set avatar failed", zap.Error(err))
		response.Internal(c, "failed to set avatar")
		return
	}
	if !ok {
		response.NotFound(c, "participant not found")
		return
	}
	response.OK(c, gin.H{"avatar": url})
}
