// Package checkins owns the participant attendance lifecycle: check-in opens a
// session, check-out closes the newest open one. State lives entirely in the
// store; the engine re-derives everything per call.
package checkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

// ErrParticipantNotFound is returned when the participant does not exist or
// does not belong to the claimed event.
var ErrParticipantNotFound = errors.New("participant not found for event")

// Store is the narrow persistence surface the engine needs. Implementations
// must make CloseSession conditional on the session still being open and
// report whether a row was updated, and must produce list data and total from
// a single snapshot.
type Store interface {
	// GetParticipantInEvent returns the participant only if it belongs to the
	// event; (nil, nil) when absent.
	GetParticipantInEvent(ctx context.Context, participantID, eventID uuid.UUID) (*models.Participant, error)
	CreateCheckIn(ctx context.Context, rec *models.CheckIn) error
	// FindOpenSession returns the newest open session for the pair, or (nil, nil).
	FindOpenSession(ctx context.Context, participantID, eventID uuid.UUID) (*models.CheckIn, error)
	// CloseSession sets checkOutTime (and metadata, when non-nil) iff the
	// session is still open. Returns false when another writer already closed it.
	CloseSession(ctx context.Context, id uuid.UUID, checkOutTime time.Time, metadata json.RawMessage) (bool, error)
	SetParticipantCheckedIn(ctx context.Context, participantID uuid.UUID, at time.Time) error
	SetParticipantCheckedOut(ctx context.Context, participantID uuid.UUID, at time.Time) error
	ListByEvent(ctx context.Context, eventID uuid.UUID, page response.Page) ([]models.CheckIn, int, error)
	ListByParticipant(ctx context.Context, participantID uuid.UUID, page response.Page) ([]models.CheckIn, int, error)
}

// Notifier records a state-transition notification, best effort. Failures are
// the implementation's problem; the engine never sees them.
type Notifier interface {
	Record(ctx context.Context, title, message string, typ models.NotificationType, userID uuid.UUID)
}

type noopNotifier struct{}

func (noopNotifier) Record(context.Context, string, string, models.NotificationType, uuid.UUID) {}

// Params are the inputs for a check-in or check-out.
type Params struct {
	ParticipantID uuid.UUID
	EventID       uuid.UUID
	UserID        uuid.UUID // operator
	DeviceID      *uuid.UUID
	Metadata      json.RawMessage // opaque; validated by the facade, nil = not supplied
}

// Engine applies attendance transitions. Stateless between calls.
type Engine struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates an attendance engine.
func NewEngine(store Store, notifier Notifier, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Engine{store: store, notifier: notifier, logger: logger, now: time.Now}
}

// CheckIn creates a new open session and marks the participant checked in.
// A second check-in while a session is open is permitted and opens another
// session; check-out drains them newest first.
func (e *Engine) CheckIn(ctx context.Context, p Params) (*models.CheckIn, error) {
	participant, err := e.store.GetParticipantInEvent(ctx, p.ParticipantID, p.EventID)
	if err != nil {
		return nil, fmt.Errorf("lookup participant: %w", err)
	}
	if participant == nil {
		return nil, ErrParticipantNotFound
	}

	now := e.now()
	rec := &models.CheckIn{
		EventID:       p.EventID,
		ParticipantID: p.ParticipantID,
		UserID:        p.UserID,
		DeviceID:      p.DeviceID,
		CheckInTime:   now,
		Metadata:      p.Metadata,
	}
	if err := e.store.CreateCheckIn(ctx, rec); err != nil {
		return nil, fmt.Errorf("create check-in: %w", err)
	}

	if err := e.store.SetParticipantCheckedIn(ctx, p.ParticipantID, now); err != nil {
		return nil, fmt.Errorf("update participant: %w", err)
	}

	e.notifier.Record(ctx, "Check-In",
		fmt.Sprintf("Participant %s checked in", participant.Name),
		models.NotifySuccess, p.UserID)

	return rec, nil
}

// CheckOut closes the newest open session for the participant, or creates an
// already-closed record (checkInTime = checkOutTime) when none exists, so a
// checkout without a matching scan never fails. When the caller supplies
// metadata on close it replaces the stored value wholesale; otherwise the
// original metadata is preserved.
func (e *Engine) CheckOut(ctx context.Context, p Params) error {
	participant, err := e.store.GetParticipantInEvent(ctx, p.ParticipantID, p.EventID)
	if err != nil {
		return fmt.Errorf("lookup participant: %w", err)
	}
	if participant == nil {
		return ErrParticipantNotFound
	}

	now := e.now()
	for {
		open, err := e.store.FindOpenSession(ctx, p.ParticipantID, p.EventID)
		if err != nil {
			return fmt.Errorf("find open session: %w", err)
		}
		if open == nil {
			rec := &models.CheckIn{
				EventID:       p.EventID,
				ParticipantID: p.ParticipantID,
				UserID:        p.UserID,
				DeviceID:      p.DeviceID,
				CheckInTime:   now,
				CheckOutTime:  &now,
				Metadata:      p.Metadata,
			}
			if err := e.store.CreateCheckIn(ctx, rec); err != nil {
				return fmt.Errorf("create closed check-in: %w", err)
			}
			break
		}
		closed, err := e.store.CloseSession(ctx, open.ID, now, p.Metadata)
		if err != nil {
			return fmt.Errorf("close session: %w", err)
		}
		if closed {
			break
		}
		// Lost the race: another writer closed this session between the read
		// and the conditional update. Re-query rather than fabricating a record.
	}

	if err := e.store.SetParticipantCheckedOut(ctx, p.ParticipantID, now); err != nil {
		return fmt.Errorf("update participant: %w", err)
	}

	e.notifier.Record(ctx, "Check-Out",
		fmt.Sprintf("Participant %s checked out", participant.Name),
		models.NotifyInfo, p.UserID)

	return nil
}

// ListByEvent returns the event's check-ins, newest first, with a count
// consistent with the page snapshot.
func (e *Engine) ListByEvent(ctx context.Context, eventID uuid.UUID, page response.Page) ([]models.CheckIn, int, error) {
	return e.store.ListByEvent(ctx, eventID, page)
}

// ListByParticipant returns the participant's check-ins, newest first.
func (e *Engine) ListByParticipant(ctx context.Context, participantID uuid.UUID, page response.Page) ([]models.CheckIn, int, error) {
	return e.store.ListByParticipant(ctx, participantID, page)
}
