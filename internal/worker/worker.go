// Package worker runs background jobs: persisting queued notifications and
// keeping the queue drained.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/internal/notifications"
	"github.com/qikhub/backend/pkg/queue"
)

// NotificationProcessor consumes notification delivery jobs and persists them.
type NotificationProcessor struct {
	repo   *notifications.Repository
	queue  *queue.Queue
	logger *zap.Logger
}

// NewNotificationProcessor creates a notification delivery processor.
func NewNotificationProcessor(repo *notifications.Repository, q *queue.Queue, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{repo: repo, queue: q, logger: logger}
}

// Process executes one notification delivery job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeNotification {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.NotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	typ, ok := models.ParseNotificationType(payload.Type)
	if !ok {
		typ = models.NotifyInfo
	}
	n := &models.Notification{
		Title:    payload.Title,
		Message:  payload.Message,
		Type:     typ,
		UserID:   payload.UserID,
		Metadata: payload.Metadata,
	}
	if err := p.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	p.logger.Debug("notification delivered",
		zap.String("job_id", job.ID), zap.String("user_id", payload.UserID.String()))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
