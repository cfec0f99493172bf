package notifications

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/queue"
)

// Sink records notifications fire-and-forget by pushing delivery jobs onto the
// queue. Enqueue failures are logged and dropped; the transition that produced
// the notification never fails because of them.
type Sink struct {
	queue  *queue.Queue
	logger *zap.Logger
}

// NewSink creates a queue-backed notification sink.
func NewSink(q *queue.Queue, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{queue: q, logger: logger}
}

// Record enqueues a notification delivery job.
func (s *Sink) Record(ctx context.Context, title, message string, typ models.NotificationType, userID uuid.UUID) {
	err := s.queue.EnqueueNotification(ctx, queue.NotificationPayload{
		Title:   title,
		Message: message,
		Type:    string(typ),
		UserID:  userID,
	})
	if err != nil {
		s.logger.Warn("notification enqueue failed", zap.Error(err), zap.String("title", title))
	}
}
