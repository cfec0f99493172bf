// Package participants manages event attendees: registration, partial updates,
// listing and avatar storage.
package participants

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

// ErrDuplicateEmail is returned when the email is already registered for the event.
var ErrDuplicateEmail = errors.New("email already registered for event")

// Repository handles participant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participant repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const participantColumns = `id, event_id, name, email, phone, avatar_url, status, custom_data,
	checked_in_at, checked_out_at, created_at, updated_at`

func scanParticipant(row pgx.Row, p *models.Participant) error {
	return row.Scan(&p.ID, &p.EventID, &p.Name, &p.Email, &p.Phone, &p.Avatar, &p.Status,
		&p.CustomData, &p.CheckedInAt, &p.CheckedOutAt, &p.CreatedAt, &p.UpdatedAt)
}

// Create registers a participant for an event. One email per event.
func (r *Repository) Create(ctx context.Context, p *models.Participant) error {
	const q = `INSERT INTO participants (id, event_id, name, email, phone, status, custom_data)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, p.EventID, p.Name, p.Email, p.Phone, p.Status, p.CustomData).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	return err
}

// GetByID returns a participant, or (nil, nil).
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	q := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`
	var p models.Participant
	err := scanParticipant(r.pool.QueryRow(ctx, q, id), &p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListFilter narrows participant listings.
type ListFilter struct {
	EventID *uuid.UUID
	Status  *models.ParticipantStatus
	Search  string // matches name or email
}

// List pages participants under the filter, newest registration first.
func (r *Repository) List(ctx context.Context, f ListFilter, page response.Page) ([]models.Participant, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 0
	if f.EventID != nil {
		n++
		where += ` AND event_id = $` + strconv.Itoa(n)
		args = append(args, *f.EventID)
	}
	if f.Status != nil {
		n++
		where += ` AND status = $` + strconv.Itoa(n)
		args = append(args, *f.Status)
	}
	if f.Search != "" {
		n++
		p := `$` + strconv.Itoa(n)
		where += ` AND (name ILIKE ` + p + ` OR email ILIKE ` + p + `)`
		args = append(args, "%"+f.Search+"%")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM participants`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + participantColumns + ` FROM participants` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := tx.Query(ctx, q, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := scanParticipant(rows, &p); err != nil {
			return nil, 0, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, tx.Commit(ctx)
}

// UpdateParams are the editable participant fields; nil keeps the stored value.
type UpdateParams struct {
	Name       *string
	Email      *string
	Phone      *string
	Status     *models.ParticipantStatus
	CustomData json.RawMessage
}

// Update applies a partial update and returns the new row, or (nil, nil).
func (r *Repository) Update(ctx context.Context, id uuid.UUID, u UpdateParams) (*models.Participant, error) {
	q := `UPDATE participants SET
			name = COALESCE($2, name),
			email = COALESCE($3, email),
			phone = COALESCE($4, phone),
			status = COALESCE($5, status),
			custom_data = COALESCE($6, custom_data),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + participantColumns
	var p models.Participant
	err := scanParticipant(r.pool.QueryRow(ctx, q, id, u.Name, u.Email, u.Phone, u.Status, u.CustomData), &p)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetAvatar stores the avatar URL after a confirmed upload.
func (r *Repository) SetAvatar(ctx context.Context, id uuid.UUID, url string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE participants SET avatar_url = $2, updated_at = NOW() WHERE id = $1`, id, url)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a participant and their check-ins via foreign keys.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM participants WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
