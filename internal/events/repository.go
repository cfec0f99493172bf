// Package events manages the event catalogue: CRUD, listing with filters and
// the per-event attendance summary.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

// Repository handles event persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, name, description, start_date, end_date, max_attendees, status,
	venue_name, venue_address, venue_lat, venue_lng, registration_open, require_approval,
	custom_fields, organizer_id, created_at, updated_at`

func scanEvent(row pgx.Row, e *models.Event) error {
	return row.Scan(&e.ID, &e.Name, &e.Description, &e.StartDate, &e.EndDate, &e.MaxAttendees,
		&e.Status, &e.VenueName, &e.VenueAddress, &e.VenueLat, &e.VenueLng,
		&e.RegistrationOpen, &e.RequireApproval, &e.CustomFields, &e.OrganizerID,
		&e.CreatedAt, &e.UpdatedAt)
}

// Create inserts an event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (id, name, description, start_date, end_date, max_attendees, status,
			venue_name, venue_address, venue_lat, venue_lng, registration_open, require_approval,
			custom_fields, organizer_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, e.Name, e.Description, e.StartDate, e.EndDate, e.MaxAttendees,
		e.Status, e.VenueName, e.VenueAddress, e.VenueLat, e.VenueLng,
		e.RegistrationOpen, e.RequireApproval, e.CustomFields, e.OrganizerID).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event, or (nil, nil) when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	var e models.Event
	err := scanEvent(r.pool.QueryRow(ctx, q, id), &e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListFilter narrows event listings. Nil fields match everything. Search does
// a case-insensitive substring match on name, description and venue name.
type ListFilter struct {
	Search      string
	Status      *models.EventStatus
	OrganizerID *uuid.UUID
	From        *time.Time // start_date >= From
	To          *time.Time // start_date <= To
	SortBy      string     // allowlisted column, default start_date
	SortDesc    bool
}

var sortColumns = map[string]string{
	"startDate":    "start_date",
	"endDate":      "end_date",
	"name":         "name",
	"createdAt":    "created_at",
	"maxAttendees": "max_attendees",
}

// List pages events under the filter. The sort column goes through an
// allowlist; anything unrecognized falls back to start_date.
func (r *Repository) List(ctx context.Context, f ListFilter, page response.Page) ([]models.Event, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 0
	add := func(clause string, v interface{}) {
		n++
		where += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, v)
	}
	if f.Search != "" {
		n++
		p := `$` + strconv.Itoa(n)
		where += ` AND (name ILIKE ` + p + ` OR description ILIKE ` + p + ` OR venue_name ILIKE ` + p + `)`
		args = append(args, "%"+f.Search+"%")
	}
	if f.Status != nil {
		add(`status = `, *f.Status)
	}
	if f.OrganizerID != nil {
		add(`organizer_id = `, *f.OrganizerID)
	}
	if f.From != nil {
		add(`start_date >= `, *f.From)
	}
	if f.To != nil {
		add(`start_date <= `, *f.To)
	}

	sortBy := sortColumns[f.SortBy]
	if sortBy == "" {
		sortBy = "start_date"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + eventColumns + ` FROM events` + where +
		` ORDER BY ` + sortBy + ` ` + dir +
		` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := tx.Query(ctx, q, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Event
	for rows.Next() {
		var e models.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, 0, err
		}
		list = append(list, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, tx.Commit(ctx)
}

// UpdateParams are the editable event fields; nil keeps the stored value.
type UpdateParams struct {
	Name             *string
	Description      *string
	StartDate        *time.Time
	EndDate          *time.Time
	MaxAttendees     *int
	Status           *models.EventStatus
	VenueName        *string
	VenueAddress     *string
	VenueLat         *float64
	VenueLng         *float64
	RegistrationOpen *bool
	RequireApproval  *bool
	CustomFields     json.RawMessage
}

// Update applies a partial update and returns the new row, or (nil, nil).
func (r *Repository) Update(ctx context.Context, id uuid.UUID, u UpdateParams) (*models.Event, error) {
	q := `UPDATE events SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			start_date = COALESCE($4, start_date),
			end_date = COALESCE($5, end_date),
			max_attendees = COALESCE($6, max_attendees),
			status = COALESCE($7, status),
			venue_name = COALESCE($8, venue_name),
			venue_address = COALESCE($9, venue_address),
			venue_lat = COALESCE($10, venue_lat),
			venue_lng = COALESCE($11, venue_lng),
			registration_open = COALESCE($12, registration_open),
			require_approval = COALESCE($13, require_approval),
			custom_fields = COALESCE($14, custom_fields),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + eventColumns
	var e models.Event
	err := scanEvent(r.pool.QueryRow(ctx, q, id, u.Name, u.Description, u.StartDate, u.EndDate,
		u.MaxAttendees, u.Status, u.VenueName, u.VenueAddress, u.VenueLat, u.VenueLng,
		u.RegistrationOpen, u.RequireApproval, u.CustomFields), &e)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Delete removes an event and, via foreign keys, its participants, check-ins
// and device bindings.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Stats is the per-event attendance summary.
type Stats struct {
	TotalParticipants int `json:"totalParticipants"`
	CheckedIn         int `json:"checkedIn"`
	CheckedOut        int `json:"checkedOut"`
	TotalCheckIns     int `json:"totalCheckIns"`
	OpenSessions      int `json:"openSessions"`
	DevicesAssigned   int `json:"devicesAssigned"`
	DevicesOnline     int `json:"devicesOnline"`
}

// GetStats computes the attendance summary for an event.
func (r *Repository) GetStats(ctx context.Context, eventID uuid.UUID) (*Stats, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM participants WHERE event_id = $1),
		(SELECT COUNT(*) FROM participants WHERE event_id = $1 AND status = 'CHECKED_IN'),
		(SELECT COUNT(*) FROM participants WHERE event_id = $1 AND status = 'CHECKED_OUT'),
		(SELECT COUNT(*) FROM check_ins WHERE event_id = $1),
		(SELECT COUNT(*) FROM check_ins WHERE event_id = $1 AND check_out_time IS NULL),
		(SELECT COUNT(*) FROM devices WHERE event_id = $1),
		(SELECT COUNT(*) FROM devices WHERE event_id = $1 AND is_online = TRUE)`
	var s Stats
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&s.TotalParticipants, &s.CheckedIn, &s.CheckedOut,
		&s.TotalCheckIns, &s.OpenSessions, &s.DevicesAssigned, &s.DevicesOnline)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
