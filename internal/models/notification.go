package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// NotificationType is the severity of a notification.
type NotificationType string

const (
	NotifyInfo    NotificationType = "INFO"
	NotifyWarning NotificationType = "WARNING"
	NotifyError   NotificationType = "ERROR"
	NotifySuccess NotificationType = "SUCCESS"
)

// ParseNotificationType validates a notification type string at the API boundary.
func ParseNotificationType(s string) (NotificationType, bool) {
	switch NotificationType(s) {
	case NotifyInfo, NotifyWarning, NotifyError, NotifySuccess:
		return NotificationType(s), true
	}
	return "", false
}

// Notification is a best-effort side-effect record of a state transition,
// delivered to the target user's inbox.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	UserID    uuid.UUID        `json:"user_id"`
	IsRead    bool             `json:"is_read"`
	Metadata  json.RawMessage  `json:"metadata,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
