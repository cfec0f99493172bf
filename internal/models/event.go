package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventActive    EventStatus = "ACTIVE"
	EventCompleted EventStatus = "COMPLETED"
	EventCancelled EventStatus = "CANCELLED"
)

// ParseEventStatus validates an event status string at the API boundary.
func ParseEventStatus(s string) (EventStatus, bool) {
	switch EventStatus(s) {
	case EventDraft, EventPublished, EventActive, EventCompleted, EventCancelled:
		return EventStatus(s), true
	}
	return "", false
}

// Event represents a managed event with venue and registration settings.
type Event struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	MaxAttendees     int             `json:"max_attendees"`
	Status           EventStatus     `json:"status"`
	VenueName        string          `json:"venue_name"`
	VenueAddress     string          `json:"venue_address"`
	VenueLat         *float64        `json:"venue_lat,omitempty"`
	VenueLng         *float64        `json:"venue_lng,omitempty"`
	RegistrationOpen bool            `json:"registration_open"`
	RequireApproval  bool            `json:"require_approval"`
	CustomFields     json.RawMessage `json:"custom_fields,omitempty"`
	OrganizerID      uuid.UUID       `json:"organizer_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
