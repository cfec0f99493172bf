package events

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/middleware"
	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

// Handler exposes the event HTTP API.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// RegisterRoutes mounts event routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/events")
	g.POST("", middleware.RequireRole("admin", "organizer"), h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.GET("/:id/stats", h.Stats)
}

type createRequest struct {
	Name             string          `json:"name" binding:"required"`
	Description      string          `json:"description"`
	StartDate        time.Time       `json:"startDate" binding:"required"`
	EndDate          time.Time       `json:"endDate" binding:"required"`
	MaxAttendees     int             `json:"maxAttendees"`
	Status           string          `json:"status"`
	VenueName        string          `json:"venueName"`
	VenueAddress     string          `json:"venueAddress"`
	VenueLat         *float64        `json:"venueLat"`
	VenueLng         *float64        `json:"venueLng"`
	RegistrationOpen bool            `json:"registrationOpen"`
	RequireApproval  bool            `json:"requireApproval"`
	CustomFields     json.RawMessage `json:"customFields"`
}

// Create registers an event with the caller as organizer.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name, startDate and endDate are required")
		return
	}
	if !req.EndDate.After(req.StartDate) {
		response.BadRequest(c, "endDate must be after startDate")
		return
	}
	status := models.EventDraft
	if req.Status != "" {
		var ok bool
		if status, ok = models.ParseEventStatus(req.Status); !ok {
			response.BadRequest(c, "invalid event status")
			return
		}
	}
	if len(req.CustomFields) > 0 && !json.Valid(req.CustomFields) {
		response.BadRequest(c, "customFields must be valid JSON")
		return
	}
	organizerID, _ := c.Get(middleware.ContextUserID)
	organizer, _ := organizerID.(uuid.UUID)

	e := &models.Event{
		Name:             req.Name,
		Description:      req.Description,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		MaxAttendees:     req.MaxAttendees,
		Status:           status,
		VenueName:        req.VenueName,
		VenueAddress:     req.VenueAddress,
		VenueLat:         req.VenueLat,
		VenueLng:         req.VenueLng,
		RegistrationOpen: req.RegistrationOpen,
		RequireApproval:  req.RequireApproval,
		CustomFields:     req.CustomFields,
		OrganizerID:      organizer,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// List pages events with search, status, organizer, date-range and sort filters.
func (h *Handler) List(c *gin.Context) {
	f := ListFilter{
		Search:   c.Query("search"),
		SortBy:   c.Query("sortBy"),
		SortDesc: c.Query("sortOrder") == "desc",
	}
	if s := c.Query("status"); s != "" {
		status, ok := models.ParseEventStatus(s)
		if !ok {
			response.BadRequest(c, "invalid status")
			return
		}
		f.Status = &status
	}
	if s := c.Query("organizerId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid organizerId")
			return
		}
		f.OrganizerID = &id
	}
	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.BadRequest(c, "invalid from date")
			return
		}
		f.From = &t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			response.BadRequest(c, "invalid to date")
			return
		}
		f.To = &t
	}

	page := response.ParsePage(c)
	list, total, err := h.repo.List(c.Request.Context(), f, page)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, response.NewPaginated(list, total, page))
}

// Get returns one event.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get event failed", zap.Error(err))
		response.Internal(c, "failed to get event")
		return
	}
	if e == nil {
		response.NotFound(c, "event not found")
		return
	}
	response.OK(c, e)
}

type updateRequest struct {
	Name             *string         `json:"name"`
	Description      *string         `json:"description"`
	StartDate        *time.Time      `json:"startDate"`
	EndDate          *time.Time      `json:"endDate"`
	MaxAttendees     *int            `json:"maxAttendees"`
	Status           *string         `json:"status"`
	VenueName        *string         `json:"venueName"`
	VenueAddress     *string         `json:"venueAddress"`
	VenueLat         *float64        `json:"venueLat"`
	VenueLng         *float64        `json:"venueLng"`
	RegistrationOpen *bool           `json:"registrationOpen"`
	RequireApproval  *bool           `json:"requireApproval"`
	CustomFields     json.RawMessage `json:"customFields"`
}

// Update applies a partial update.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	u := UpdateParams{
		Name:             req.Name,
		Description:      req.Description,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		MaxAttendees:     req.MaxAttendees,
		VenueName:        req.VenueName,
		VenueAddress:     req.VenueAddress,
		VenueLat:         req.VenueLat,
		VenueLng:         req.VenueLng,
		RegistrationOpen: req.RegistrationOpen,
		RequireApproval:  req.RequireApproval,
		CustomFields:     req.CustomFields,
	}
	if req.Status != nil {
		status, ok := models.ParseEventStatus(*req.Status)
		if !ok {
			response.BadRequest(c, "invalid event status")
			return
		}
		u.Status = &status
	}
	if len(req.CustomFields) > 0 && !json.Valid(req.CustomFields) {
		response.BadRequest(c, "customFields must be valid JSON")
		return
	}
	e, err := h.repo.Update(c.Request.Context(), id, u)
	if err != nil {
		h.logger.Error("update event failed", zap.Error(err))
		response.Internal(c, "failed to update event")
		return
	}
	if e == nil {
		response.NotFound(c, "event not found")
		return
	}
	response.OK(c, e)
}

// Delete removes an event.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ok, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("delete event failed", zap.Error(err))
		response.Internal(c, "failed to delete event")
		return
	}
	if !ok {
		response.NotFound(c, "event not found")
		return
	}
	response.NoContent(c)
}

// Stats returns the attendance summary for an event.
func (h *Handler) Stats(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get event failed", zap.Error(err))
		response.Internal(c, "failed to get event")
		return
	}
	if e == nil {
		response.NotFound(c, "event not found")
		return
	}
	stats, err := h.repo.GetStats(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("event stats failed", zap.Error(err))
		response.Internal(c, "failed to compute stats")
		return
	}
	response.OK(c, stats)
}
