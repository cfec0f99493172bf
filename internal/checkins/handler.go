package checkins

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/middleware"
	"github.com/qikhub/backend/pkg/response"
)

// Broadcaster pushes live attendance events to dashboard subscribers.
// Best effort; send failures drop the message.
type Broadcaster interface {
	Publish(eventID uuid.UUID, kind string, payload interface{})
}

// Handler exposes the attendance HTTP API.
type Handler struct {
	engine      *Engine
	broadcaster Broadcaster
	logger      *zap.Logger
}

// NewHandler creates a check-in handler.
func NewHandler(engine *Engine, broadcaster Broadcaster, logger *zap.Logger) *Handler {
	return &Handler{engine: engine, broadcaster: broadcaster, logger: logger}
}

// RegisterRoutes mounts the attendance routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/checkins")
	g.POST("/check-in", h.CheckIn)
	g.POST("/check-out", h.CheckOut)
	rg.GET("/events/:id/checkins", h.ListByEvent)
	rg.GET("/participants/:id/checkins", h.ListByParticipant)
}

type transitionRequest struct {
	ParticipantID uuid.UUID       `json:"participantId" binding:"required"`
	EventID       uuid.UUID       `json:"eventId" binding:"required"`
	DeviceID      *uuid.UUID      `json:"deviceId"`
	Metadata      json.RawMessage `json:"metadata"`
}

func (h *Handler) params(c *gin.Context) (Params, bool) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "participantId and eventId are required")
		return Params{}, false
	}
	// Metadata is stored opaque, so malformed JSON is rejected here rather
	// than at read time. A JSON null means "not supplied".
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		response.BadRequest(c, "metadata must be valid JSON")
		return Params{}, false
	}
	if string(req.Metadata) == "null" {
		req.Metadata = nil
	}
	userID, _ := c.Get(middleware.ContextUserID)
	operator, _ := userID.(uuid.UUID)
	return Params{
		ParticipantID: req.ParticipantID,
		EventID:       req.EventID,
		UserID:        operator,
		DeviceID:      req.DeviceID,
		Metadata:      req.Metadata,
	}, true
}

// CheckIn opens a new attendance session.
func (h *Handler) CheckIn(c *gin.Context) {
	p, ok := h.params(c)
	if !ok {
		return
	}
	rec, err := h.engine.CheckIn(c.Request.Context(), p)
	if err != nil {
		if errors.Is(err, ErrParticipantNotFound) {
			response.NotFound(c, "participant not found for event")
			return
		}
		h.logger.Error("check-in failed", zap.Error(err),
			zap.String("participant_id", p.ParticipantID.String()))
		response.Internal(c, "failed to check in")
		return
	}
	if h.broadcaster != nil {
		h.broadcaster.Publish(p.EventID, "check-in", rec)
	}
	response.Created(c, rec)
}

// CheckOut closes the newest open session, or records an instant visit when
// none is open. The response carries a success flag only.
func (h *Handler) CheckOut(c *gin.Context) {
	p, ok := h.params(c)
	if !ok {
		return
	}
	if err := h.engine.CheckOut(c.Request.Context(), p); err != nil {
		if errors.Is(err, ErrParticipantNotFound) {
			response.NotFound(c, "participant not found for event")
			return
		}
		h.logger.Error("check-out failed", zap.Error(err),
			zap.String("participant_id", p.ParticipantID.String()))
		response.Internal(c, "failed to check out")
		return
	}
	if h.broadcaster != nil {
		h.broadcaster.Publish(p.EventID, "check-out", gin.H{
			"participantId": p.ParticipantID,
			"eventId":       p.EventID,
		})
	}
	response.OK(c, gin.H{"checkedOut": true})
}

// ListByEvent returns the event's attendance records, newest first.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	page := response.ParsePage(c)
	list, total, err := h.engine.ListByEvent(c.Request.Context(), eventID, page)
	if err != nil {
		h.logger.Error("list check-ins failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to list check-ins")
		return
	}
	response.OK(c, response.NewPaginated(list, total, page))
}

// ListByParticipant returns the participant's attendance history, newest first.
func (h *Handler) ListByParticipant(c *gin.Context) {
	participantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	page := response.ParsePage(c)
	list, total, err := h.engine.ListByParticipant(c.Request.Context(), participantID, page)
	if err != nil {
		h.logger.Error("list check-ins failed", zap.Error(err), zap.String("participant_id", participantID.String()))
		response.Internal(c, "failed to list check-ins")
		return
	}
	response.OK(c, response.NewPaginated(list, total, page))
}
