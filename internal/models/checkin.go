package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CheckIn is one attendance session. A record with a nil CheckOutTime is an open
// session; check-out closes the newest open session for the participant, or
// creates an already-closed record when none exists.
type CheckIn struct {
	ID            uuid.UUID       `json:"id"`
	EventID       uuid.UUID       `json:"event_id"`
	ParticipantID uuid.UUID       `json:"participant_id"`
	UserID        uuid.UUID       `json:"user_id"`
	DeviceID      *uuid.UUID      `json:"device_id,omitempty"`
	CheckInTime   time.Time       `json:"check_in_time"`
	CheckOutTime  *time.Time      `json:"check_out_time,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Open reports whether the session is still open.
func (c *CheckIn) Open() bool {
	return c.CheckOutTime == nil
}
