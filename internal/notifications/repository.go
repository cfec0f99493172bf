// Package notifications stores and serves per-user notifications. Attendance
// and device transitions record them fire-and-forget through a queue; failures
// there never surface to the operation that triggered them.
package notifications

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

// Repository handles notification persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const notificationColumns = `id, title, message, type, user_id, is_read, metadata, created_at, updated_at`

func scanNotification(row pgx.Row, n *models.Notification) error {
	return row.Scan(&n.ID, &n.Title, &n.Message, &n.Type, &n.UserID, &n.IsRead,
		&n.Metadata, &n.CreatedAt, &n.UpdatedAt)
}

// Create inserts a notification.
func (r *Repository) Create(ctx context.Context, n *models.Notification) error {
	const q = `INSERT INTO notifications (id, title, message, type, user_id, metadata)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, is_read, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, n.Title, n.Message, n.Type, n.UserID, n.Metadata).
		Scan(&n.ID, &n.IsRead, &n.CreatedAt, &n.UpdatedAt)
}

// GetByID returns a notification, or (nil, nil).
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	q := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	var n models.Notification
	err := scanNotification(r.pool.QueryRow(ctx, q, id), &n)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListFilter narrows notification listings.
type ListFilter struct {
	UserID *uuid.UUID
	IsRead *bool
	Type   *models.NotificationType
}

// List pages notifications under the filter, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter, page response.Page) ([]models.Notification, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 0
	add := func(clause string, v interface{}) {
		n++
		where += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, v)
	}
	if f.UserID != nil {
		add(`user_id = `, *f.UserID)
	}
	if f.IsRead != nil {
		add(`is_read = `, *f.IsRead)
	}
	if f.Type != nil {
		add(`type = `, *f.Type)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + notificationColumns + ` FROM notifications` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := tx.Query(ctx, q, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Notification
	for rows.Next() {
		var m models.Notification
		if err := scanNotification(rows, &m); err != nil {
			return nil, 0, err
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, tx.Commit(ctx)
}

// MarkRead flips is_read for one notification belonging to the user.
func (r *Repository) MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, updated_at = NOW() WHERE id = $1 AND user_id = $2`,
		id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkAllRead flips is_read for every unread notification of the user.
func (r *Repository) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE, updated_at = NOW() WHERE user_id = $1 AND is_read = FALSE`,
		userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// UnreadCount returns how many unread notifications the user has.
func (r *Repository) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&n)
	return n, err
}

// Delete removes one notification belonging to the user.
func (r *Repository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
