package devices

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/middleware"
	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

// Broadcaster pushes device liveness changes to dashboard subscribers.
type Broadcaster interface {
	Publish(eventID uuid.UUID, kind string, payload interface{})
}

// Handler exposes the device HTTP API.
type Handler struct {
	repo        *Repository
	liveness    *Liveness
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewHandler creates a device handler.
func NewHandler(repo *Repository, liveness *Liveness, broadcaster Broadcaster, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, liveness: liveness, broadcaster: broadcaster, logger: logger}
}

// RegisterRoutes mounts device routes. pingLimiter throttles the heartbeat
// endpoint per device identifier. The ping route's :id is the external
// device identifier the hardware knows itself by, not the row UUID.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, pingLimiter gin.HandlerFunc) {
	g := rg.Group("/devices")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/assign-event", h.AssignEvent)
	g.POST("/:id/unassign-event", h.UnassignEvent)
	if pingLimiter != nil {
		g.POST("/:id/ping", pingLimiter, h.Ping)
	} else {
		g.POST("/:id/ping", h.Ping)
	}
	rg.GET("/events/:id/devices", h.ListByEvent)
}

type createRequest struct {
	Name            string          `json:"name" binding:"required"`
	DeviceType      string          `json:"deviceType" binding:"required"`
	DeviceID        string          `json:"deviceId" binding:"required"`
	Status          string          `json:"status"`
	LocationName    string          `json:"locationName"`
	LocationLat     *float64        `json:"locationLat"`
	LocationLng     *float64        `json:"locationLng"`
	FirmwareVersion string          `json:"firmwareVersion"`
	Configuration   json.RawMessage `json:"configuration"`
	EventID         *uuid.UUID      `json:"eventId"`
}

// Create registers a new device owned by the caller.
func (h *Handler) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "name, deviceType and deviceId are required")
		return
	}
	devType, ok := models.ParseDeviceType(req.DeviceType)
	if !ok {
		response.BadRequest(c, "invalid device type")
		return
	}
	status := models.DeviceActive
	if req.Status != "" {
		if status, ok = models.ParseDeviceStatus(req.Status); !ok {
			response.BadRequest(c, "invalid device status")
			return
		}
	}
	if len(req.Configuration) > 0 && !json.Valid(req.Configuration) {
		response.BadRequest(c, "configuration must be valid JSON")
		return
	}
	ownerID, _ := c.Get(middleware.ContextUserID)
	owner, _ := ownerID.(uuid.UUID)

	d := &models.Device{
		Name:            req.Name,
		DeviceType:      devType,
		DeviceID:        req.DeviceID,
		Status:          status,
		LocationName:    req.LocationName,
		LocationLat:     req.LocationLat,
		LocationLng:     req.LocationLng,
		FirmwareVersion: req.FirmwareVersion,
		Configuration:   req.Configuration,
		OwnerID:         owner,
		EventID:         req.EventID,
	}
	if err := h.repo.Create(c.Request.Context(), d); err != nil {
		if errors.Is(err, ErrDuplicateDeviceID) {
			response.Conflict(c, "device id already registered")
			return
		}
		h.logger.Error("create device failed", zap.Error(err))
		response.Internal(c, "failed to create device")
		return
	}
	response.Created(c, d)
}

// List pages devices with optional ownerId, eventId, status and isOnline filters.
func (h *Handler) List(c *gin.Context) {
	var f ListFilter
	if s := c.Query("ownerId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid ownerId")
			return
		}
		f.OwnerID = &id
	}
	if s := c.Query("eventId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid eventId")
			return
		}
		f.EventID = &id
	}
	if s := c.Query("status"); s != "" {
		status, ok := models.ParseDeviceStatus(s)
		if !ok {
			response.BadRequest(c, "invalid status")
			return
		}
		f.Status = &status
	}
	if s := c.Query("isOnline"); s != "" {
		online := s == "true"
		f.IsOnline = &online
	}

	page := response.ParsePage(c)
	list, total, err := h.repo.List(c.Request.Context(), f, page)
	if err != nil {
		h.logger.Error("list devices failed", zap.Error(err))
		response.Internal(c, "failed to list devices")
		return
	}
	response.OK(c, response.NewPaginated(list, total, page))
}

// Get returns a device by primary key.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid device id")
		return
	}
	d, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get device failed", zap.Error(err))
		response.Internal(c, "failed to get device")
		return
	}
	if d == nil {
		response.NotFound(c, "device not found")
		return
	}
	response.OK(c, d)
}

type updateRequest struct {
	Name            *string         `json:"name"`
	Status          *string         `json:"status"`
	LocationName    *string         `json:"locationName"`
	LocationLat     *float64        `json:"locationLat"`
	LocationLng     *float64        `json:"locationLng"`
	FirmwareVersion *string         `json:"firmwareVersion"`
	Configuration   json.RawMessage `json:"configuration"`
}

// Update applies a partial operator update.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid device id")
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	u := UpdateParams{
		Name:            req.Name,
		LocationName:    req.LocationName,
		LocationLat:     req.LocationLat,
		LocationLng:     req.LocationLng,
		FirmwareVersion: req.FirmwareVersion,
		Configuration:   req.Configuration,
	}
	if req.Status != nil {
		status, ok := models.ParseDeviceStatus(*req.Status)
		if !ok {
			response.BadRequest(c, "invalid device status")
			return
		}
		u.Status = &status
	}
	if len(req.Configuration) > 0 && !json.Valid(req.Configuration) {
		response.BadRequest(c, "configuration must be valid JSON")
		return
	}
	d, err := h.repo.Update(c.Request.Context(), id, u)
	if err != nil {
		h.logger.Error("update device failed", zap.Error(err))
		response.Internal(c, "failed to update device")
		return
	}
	if d == nil {
		response.NotFound(c, "device not found")
		return
	}
	response.OK(c, d)
}

// Delete removes a device.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid device id")
		return
	}
	ok, err := h.repo.Delete(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("delete device failed", zap.Error(err))
		response.Internal(c, "failed to delete device")
		return
	}
	if !ok {
		response.NotFound(c, "device not found")
		return
	}
	response.NoContent(c)
}

type assignEventRequest struct {
	EventID *uuid.UUID `json:"eventId"` // null unbinds
}

// AssignEvent binds or unbinds the device's event.
func (h *Handler) AssignEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid device id")
		return
	}
	var req assignEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	ok, err := h.repo.AssignEvent(c.Request.Context(), id, req.EventID)
	if err != nil {
		h.logger.Error("assign device event failed", zap.Error(err))
		response.Internal(c, "failed to assign event")
		return
	}
	if !ok {
		response.NotFound(c, "device not found")
		return
	}
	response.OK(c, gin.H{"assigned": req.EventID != nil})
}

// UnassignEvent clears the device's event binding.
func (h *Handler) UnassignEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid device id")
		return
	}
	ok, err := h.repo.AssignEvent(c.Request.Context(), id, nil)
	if err != nil {
		h.logger.Error("unassign device event failed", zap.Error(err))
		response.Internal(c, "failed to unassign event")
		return
	}
	if !ok {
		response.NotFound(c, "device not found")
		return
	}
	response.OK(c, gin.H{"assigned": false})
}

// ListByEvent pages the devices bound to one event.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	page := response.ParsePage(c)
	list, total, err := h.repo.List(c.Request.Context(), ListFilter{EventID: &eventID}, page)
	if err != nil {
		h.logger.Error("list devices failed", zap.Error(err))
		response.Internal(c, "failed to list devices")
		return
	}
	response.OK(c, response.NewPaginated(list, total, page))
}

type pingRequest struct {
	BatteryLevel   *int            `json:"batteryLevel"`
	SignalStrength *int            `json:"signalStrength"`
	HealthData     json.RawMessage `json:"healthData"`
	IsOnline       *bool           `json:"isOnline"`
}

// Ping records a device heartbeat by external identifier. An empty body is a
// bare heartbeat.
func (h *Handler) Ping(c *gin.Context) {
	externalID := c.Param("id")
	var req pingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}
	if len(req.HealthData) > 0 && !json.Valid(req.HealthData) {
		response.BadRequest(c, "healthData must be valid JSON")
		return
	}
	dev, err := h.liveness.ApplyPing(c.Request.Context(), Ping{
		DeviceID:       externalID,
		BatteryLevel:   req.BatteryLevel,
		SignalStrength: req.SignalStrength,
		HealthData:     req.HealthData,
		IsOnline:       req.IsOnline,
	})
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			response.NotFound(c, "device not found")
			return
		}
		h.logger.Error("device ping failed", zap.Error(err), zap.String("device_id", externalID))
		response.Internal(c, "failed to record ping")
		return
	}
	if h.broadcaster != nil && dev.EventID != nil {
		h.broadcaster.Publish(*dev.EventID, "device-ping", gin.H{
			"deviceId": dev.DeviceID,
			"isOnline": dev.IsOnline,
			"lastSeen": dev.LastSeen,
		})
	}
	response.OK(c, dev)
}
