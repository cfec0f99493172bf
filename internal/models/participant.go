package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ParticipantStatus is the attendance lifecycle state of a participant.
type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "REGISTERED"
	ParticipantApproved   ParticipantStatus = "APPROVED"
	ParticipantCheckedIn  ParticipantStatus = "CHECKED_IN"
	ParticipantCheckedOut ParticipantStatus = "CHECKED_OUT"
	ParticipantCancelled  ParticipantStatus = "CANCELLED"
)

// ParseParticipantStatus validates a participant status string at the API boundary.
func ParseParticipantStatus(s string) (ParticipantStatus, bool) {
	switch ParticipantStatus(s) {
	case ParticipantRegistered, ParticipantApproved, ParticipantCheckedIn, ParticipantCheckedOut, ParticipantCancelled:
		return ParticipantStatus(s), true
	}
	return "", false
}

// Participant is an attendee registered for one event. It belongs to that event
// for its lifetime. CheckedOutAt, when set, is never earlier than CheckedInAt.
type Participant struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	Phone        *string           `json:"phone,omitempty"`
	Avatar       *string           `json:"avatar,omitempty"`
	CustomData   json.RawMessage   `json:"custom_data,omitempty"`
	Status       ParticipantStatus `json:"status"`
	CheckedInAt  *time.Time        `json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time        `json:"checked_out_at,omitempty"`
	EventID      uuid.UUID         `json:"event_id"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
