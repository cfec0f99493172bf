package checkins

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

// Repository is the Postgres-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a check-in repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const checkInColumns = `id, event_id, participant_id, user_id, device_id, check_in_time, check_out_time, metadata, created_at`

func scanCheckIn(row pgx.Row, c *models.CheckIn) error {
	return row.Scan(&c.ID, &c.EventID, &c.ParticipantID, &c.UserID, &c.DeviceID,
		&c.CheckInTime, &c.CheckOutTime, &c.Metadata, &c.CreatedAt)
}

// GetParticipantInEvent returns the participant only when it belongs to the event.
func (r *Repository) GetParticipantInEvent(ctx context.Context, participantID, eventID uuid.UUID) (*models.Participant, error) {
	const q = `SELECT id, event_id, name, email, phone, avatar_url, status, custom_data,
			checked_in_at, checked_out_at, created_at, updated_at
		FROM participants WHERE id = $1 AND event_id = $2`
	var p models.Participant
	err := r.pool.QueryRow(ctx, q, participantID, eventID).Scan(
		&p.ID, &p.EventID, &p.Name, &p.Email, &p.Phone, &p.Avatar, &p.Status, &p.CustomData,
		&p.CheckedInAt, &p.CheckedOutAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateCheckIn inserts a session record, open or already closed.
func (r *Repository) CreateCheckIn(ctx context.Context, rec *models.CheckIn) error {
	const q = `INSERT INTO check_ins (id, event_id, participant_id, user_id, device_id, check_in_time, check_out_time, metadata)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, rec.EventID, rec.ParticipantID, rec.UserID, rec.DeviceID,
		rec.CheckInTime, rec.CheckOutTime, rec.Metadata).Scan(&rec.ID, &rec.CreatedAt)
}

// FindOpenSession returns the newest open session for the pair, or (nil, nil).
func (r *Repository) FindOpenSession(ctx context.Context, participantID, eventID uuid.UUID) (*models.CheckIn, error) {
	q := `SELECT ` + checkInColumns + ` FROM check_ins
		WHERE participant_id = $1 AND event_id = $2 AND check_out_time IS NULL
		ORDER BY check_in_time DESC LIMIT 1`
	var c models.CheckIn
	err := scanCheckIn(r.pool.QueryRow(ctx, q, participantID, eventID), &c)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CloseSession closes the session iff it is still open. A nil metadata keeps
// the stored value; non-nil replaces it wholesale.
func (r *Repository) CloseSession(ctx context.Context, id uuid.UUID, checkOutTime time.Time, metadata json.RawMessage) (bool, error) {
	const q = `UPDATE check_ins
		SET check_out_time = $2, metadata = COALESCE($3, metadata)
		WHERE id = $1 AND check_out_time IS NULL`
	tag, err := r.pool.Exec(ctx, q, id, checkOutTime, metadata)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetParticipantCheckedIn mirrors the latest transition onto the participant.
func (r *Repository) SetParticipantCheckedIn(ctx context.Context, participantID uuid.UUID, at time.Time) error {
	const q = `UPDATE participants SET status = $2, checked_in_at = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, participantID, models.ParticipantCheckedIn, at)
	return err
}

// SetParticipantCheckedOut mirrors the latest transition onto the participant.
func (r *Repository) SetParticipantCheckedOut(ctx context.Context, participantID uuid.UUID, at time.Time) error {
	const q = `UPDATE participants SET status = $2, checked_out_at = $3, updated_at = NOW() WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, participantID, models.ParticipantCheckedOut, at)
	return err
}

// ListByEvent pages the event's check-ins, newest first. Count and page come
// from one repeatable-read transaction so total never disagrees with the rows.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID, page response.Page) ([]models.CheckIn, int, error) {
	return r.list(ctx, "event_id", eventID, page)
}

// ListByParticipant pages the participant's check-ins, newest first.
func (r *Repository) ListByParticipant(ctx context.Context, participantID uuid.UUID, page response.Page) ([]models.CheckIn, int, error) {
	return r.list(ctx, "participant_id", participantID, page)
}

func (r *Repository) list(ctx context.Context, column string, id uuid.UUID, page response.Page) ([]models.CheckIn, int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM check_ins WHERE `+column+` = $1`, id).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + checkInColumns + ` FROM check_ins WHERE ` + column + ` = $1
		ORDER BY check_in_time DESC LIMIT $2 OFFSET $3`
	rows, err := tx.Query(ctx, q, id, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.CheckIn
	for rows.Next() {
		var c models.CheckIn
		if err := scanCheckIn(rows, &c); err != nil {
			return nil, 0, err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, tx.Commit(ctx)
}
