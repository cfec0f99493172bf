package devices

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

// ErrDuplicateDeviceID is returned when the external device identifier is
// already registered.
var ErrDuplicateDeviceID = errors.New("device id already registered")

// Repository handles device persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a device repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ LivenessStore = (*Repository)(nil)

const deviceColumns = `id, name, device_type, device_id, status, location_name, location_lat, location_lng,
	firmware_version, battery_level, signal_strength, is_online, last_seen, health_data, configuration,
	owner_id, event_id, created_at, updated_at`

func scanDevice(row pgx.Row, d *models.Device) error {
	return row.Scan(&d.ID, &d.Name, &d.DeviceType, &d.DeviceID, &d.Status,
		&d.LocationName, &d.LocationLat, &d.LocationLng, &d.FirmwareVersion,
		&d.BatteryLevel, &d.SignalStrength, &d.IsOnline, &d.LastSeen,
		&d.HealthData, &d.Configuration, &d.OwnerID, &d.EventID, &d.CreatedAt, &d.UpdatedAt)
}

// Create registers a device. The external device_id must be unique.
func (r *Repository) Create(ctx context.Context, d *models.Device) error {
	const q = `INSERT INTO devices (id, name, device_type, device_id, status, location_name, location_lat, location_lng,
			firmware_version, configuration, owner_id, event_id)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, is_online, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, d.Name, d.DeviceType, d.DeviceID, d.Status,
		d.LocationName, d.LocationLat, d.LocationLng, d.FirmwareVersion,
		d.Configuration, d.OwnerID, d.EventID).
		Scan(&d.ID, &d.IsOnline, &d.CreatedAt, &d.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateDeviceID
	}
	return err
}

// GetByID returns a device by primary key, or (nil, nil).
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	q := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`
	var d models.Device
	err := scanDevice(r.pool.QueryRow(ctx, q, id), &d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// List pages devices, optionally filtered by owner, event, status or online flag.
func (r *Repository) List(ctx context.Context, f ListFilter, page response.Page) ([]models.Device, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 0
	add := func(clause string, v interface{}) {
		n++
		where += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, v)
	}
	if f.OwnerID != nil {
		add(`owner_id = `, *f.OwnerID)
	}
	if f.EventID != nil {
		add(`event_id = `, *f.EventID)
	}
	if f.Status != nil {
		add(`status = `, *f.Status)
	}
	if f.IsOnline != nil {
		add(`is_online = `, *f.IsOnline)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM devices`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + deviceColumns + ` FROM devices` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := tx.Query(ctx, q, append(args, page.PageSize, page.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Device
	for rows.Next() {
		var d models.Device
		if err := scanDevice(rows, &d); err != nil {
			return nil, 0, err
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, tx.Commit(ctx)
}

// ListFilter narrows device listings. Nil fields match everything.
type ListFilter struct {
	OwnerID  *uuid.UUID
	EventID  *uuid.UUID
	Status   *models.DeviceStatus
	IsOnline *bool
}

// Update applies a partial update; nil fields keep their stored value.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, u UpdateParams) (*models.Device, error) {
	q := `UPDATE devices SET
			name = COALESCE($2, name),
			status = COALESCE($3, status),
			location_name = COALESCE($4, location_name),
			location_lat = COALESCE($5, location_lat),
			location_lng = COALESCE($6, location_lng),
			firmware_version = COALESCE($7, firmware_version),
			configuration = COALESCE($8, configuration),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + deviceColumns
	var d models.Device
	err := scanDevice(r.pool.QueryRow(ctx, q, id, u.Name, u.Status, u.LocationName,
		u.LocationLat, u.LocationLng, u.FirmwareVersion, u.Configuration), &d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateParams are the operator-editable device fields.
type UpdateParams struct {
	Name            *string
	Status          *models.DeviceStatus
	LocationName    *string
	LocationLat     *float64
	LocationLng     *float64
	FirmwareVersion *string
	Configuration   json.RawMessage
}

// AssignEvent binds the device to an event; a nil eventID unbinds it.
func (r *Repository) AssignEvent(ctx context.Context, id uuid.UUID, eventID *uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE devices SET event_id = $2, updated_at = NOW() WHERE id = $1`, id, eventID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a device.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyPing moves last_seen to the ping time and merges the supplied
// telemetry. Unsupplied fields keep their stored values. IsOnline defaults to
// true unless the ping explicitly says otherwise.
func (r *Repository) ApplyPing(ctx context.Context, ping Ping, at time.Time) (*models.Device, error) {
	online := true
	if ping.IsOnline != nil {
		online = *ping.IsOnline
	}
	q := `UPDATE devices SET
			last_seen = $2,
			is_online = $3,
			battery_level = COALESCE($4, battery_level),
			signal_strength = COALESCE($5, signal_strength),
			health_data = COALESCE($6, health_data),
			updated_at = NOW()
		WHERE device_id = $1
		RETURNING ` + deviceColumns
	var d models.Device
	err := scanDevice(r.pool.QueryRow(ctx, q, ping.DeviceID, at, online,
		ping.BatteryLevel, ping.SignalStrength, ping.HealthData), &d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// MarkStaleOffline flips every online device with last_seen before cutoff to
// offline in a single statement. Devices that never pinged have a NULL
// last_seen and are left alone until their first ping.
func (r *Repository) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE devices SET is_online = FALSE, updated_at = NOW()
		 WHERE is_online = TRUE AND last_seen < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
