// Package analytics serves the per-event attendance analytics view the
// dashboard charts are built from.
package analytics

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/events"
	"github.com/qikhub/backend/pkg/response"
)

// Handler handles GET /events/:id/analytics.
type Handler struct {
	pool      *pgxpool.Pool
	eventRepo *events.Repository
	logger    *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(pool *pgxpool.Pool, eventRepo *events.Repository, logger *zap.Logger) *Handler {
	return &Handler{pool: pool, eventRepo: eventRepo, logger: logger}
}

// RegisterRoutes mounts the analytics route on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events/:id/analytics", h.GetByEvent)
}

// HourBucket is one hour of check-in volume.
type HourBucket struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// StatusCount is one participant status with its population.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// DeviceCount is one device's share of check-ins. Records without a device
// bucket under a nil DeviceID.
type DeviceCount struct {
	DeviceID *uuid.UUID `json:"deviceId"`
	Count    int        `json:"count"`
}

// SummaryResponse is the analytics payload for one event.
type SummaryResponse struct {
	Stats          *events.Stats `json:"stats"`
	CheckInsByHour []HourBucket  `json:"checkInsByHour"`
	ByStatus       []StatusCount `json:"byStatus"`
	ByDevice       []DeviceCount `json:"byDevice"`
	AvgStaySeconds int64         `json:"avgStaySeconds"`
}

// GetByEvent handles GET /events/:id/analytics.
func (h *Handler) GetByEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ctx := c.Request.Context()

	event, err := h.eventRepo.GetByID(ctx, id)
	if err != nil {
		h.logger.Error("get event failed", zap.Error(err))
		response.Internal(c, "failed to load analytics")
		return
	}
	if event == nil {
		response.NotFound(c, "event not found")
		return
	}

	stats, err := h.eventRepo.GetStats(ctx, id)
	if err != nil {
		h.logger.Error("event stats failed", zap.Error(err))
		response.Internal(c, "failed to load analytics")
		return
	}

	summary := SummaryResponse{Stats: stats}
	if summary.CheckInsByHour, err = h.checkInsByHour(ctx, id); err != nil {
		h.logger.Error("check-ins by hour failed", zap.Error(err))
		response.Internal(c, "failed to load analytics")
		return
	}
	if summary.ByStatus, err = h.byStatus(ctx, id); err != nil {
		h.logger.Error("participants by status failed", zap.Error(err))
		response.Internal(c, "failed to load analytics")
		return
	}
	if summary.ByDevice, err = h.byDevice(ctx, id); err != nil {
		h.logger.Error("check-ins by device failed", zap.Error(err))
		response.Internal(c, "failed to load analytics")
		return
	}
	if summary.AvgStaySeconds, err = h.avgStaySeconds(ctx, id); err != nil {
		h.logger.Error("avg stay failed", zap.Error(err))
		response.Internal(c, "failed to load analytics")
		return
	}

	response.OK(c, summary)
}

func (h *Handler) checkInsByHour(ctx context.Context, eventID uuid.UUID) ([]HourBucket, error) {
	rows, err := h.pool.Query(ctx,
		`SELECT date_trunc('hour', check_in_time) AS hour, COUNT(*)
		 FROM check_ins WHERE event_id = $1
		 GROUP BY hour ORDER BY hour`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HourBucket
	for rows.Next() {
		var b HourBucket
		if err := rows.Scan(&b.Hour, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (h *Handler) byStatus(ctx context.Context, eventID uuid.UUID) ([]StatusCount, error) {
	rows, err := h.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM participants WHERE event_id = $1
		 GROUP BY status ORDER BY status`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusCount
	for rows.Next() {
		var s StatusCount
		if err := rows.Scan(&s.Status, &s.Count); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (h *Handler) byDevice(ctx context.Context, eventID uuid.UUID) ([]DeviceCount, error) {
	rows, err := h.pool.Query(ctx,
		`SELECT device_id, COUNT(*) FROM check_ins WHERE event_id = $1
		 GROUP BY device_id ORDER BY COUNT(*) DESC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DeviceCount
	for rows.Next() {
		var d DeviceCount
		if err := rows.Scan(&d.DeviceID, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (h *Handler) avgStaySeconds(ctx context.Context, eventID uuid.UUID) (int64, error) {
	var avg *float64
	err := h.pool.QueryRow(ctx,
		`SELECT EXTRACT(EPOCH FROM AVG(check_out_time - check_in_time))
		 FROM check_ins WHERE event_id = $1 AND check_out_time IS NOT NULL`, eventID).Scan(&avg)
	if err != nil {
		return 0, err
	}
	if avg == nil {
		return 0, nil
	}
	return int64(*avg), nil
}
