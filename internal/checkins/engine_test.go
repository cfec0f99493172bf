package checkins

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qikhub/backend/internal/models"
	"github.com/qikhub/backend/pkg/response"
)

type fakeStore struct {
	participants map[uuid.UUID]*models.Participant
	sessions     []*models.CheckIn

	// closeHook runs before CloseSession applies, letting tests interleave a
	// competing writer between the read and the conditional update.
	closeHook func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{participants: map[uuid.UUID]*models.Participant{}}
}

func (f *fakeStore) addParticipant(eventID uuid.UUID) *models.Participant {
	p := &models.Participant{ID: uuid.New(), EventID: eventID, Name: "Ada", Status: models.ParticipantRegistered}
	f.participants[p.ID] = p
	return p
}

func (f *fakeStore) GetParticipantInEvent(_ context.Context, participantID, eventID uuid.UUID) (*models.Participant, error) {
	p, ok := f.participants[participantID]
	if !ok || p.EventID != eventID {
		return nil, nil
	}
	return p, nil
}

func (f *fakeStore) CreateCheckIn(_ context.Context, rec *models.CheckIn) error {
	rec.ID = uuid.New()
	rec.CreatedAt = rec.CheckInTime
	f.sessions = append(f.sessions, rec)
	return nil
}

func (f *fakeStore) FindOpenSession(_ context.Context, participantID, eventID uuid.UUID) (*models.CheckIn, error) {
	var newest *models.CheckIn
	for _, s := range f.sessions {
		if s.ParticipantID != participantID || s.EventID != eventID || !s.Open() {
			continue
		}
		if newest == nil || s.CheckInTime.After(newest.CheckInTime) {
			newest = s
		}
	}
	if newest == nil {
		return nil, nil
	}
	cp := *newest
	return &cp, nil
}

func (f *fakeStore) CloseSession(_ context.Context, id uuid.UUID, checkOutTime time.Time, metadata json.RawMessage) (bool, error) {
	if f.closeHook != nil {
		f.closeHook()
	}
	for _, s := range f.sessions {
		if s.ID != id || !s.Open() {
			continue
		}
		t := checkOutTime
		s.CheckOutTime = &t
		if metadata != nil {
			s.Metadata = metadata
		}
		return true, nil
	}
	return false, nil
}

func (f *fakeStore) SetParticipantCheckedIn(_ context.Context, participantID uuid.UUID, at time.Time) error {
	p := f.participants[participantID]
	p.Status = models.ParticipantCheckedIn
	t := at
	p.CheckedInAt = &t
	return nil
}

func (f *fakeStore) SetParticipantCheckedOut(_ context.Context, participantID uuid.UUID, at time.Time) error {
	p := f.participants[participantID]
	p.Status = models.ParticipantCheckedOut
	t := at
	p.CheckedOutAt = &t
	return nil
}

func (f *fakeStore) ListByEvent(_ context.Context, eventID uuid.UUID, page response.Page) ([]models.CheckIn, int, error) {
	var all []models.CheckIn
	for _, s := range f.sessions {
		if s.EventID == eventID {
			all = append(all, *s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CheckInTime.After(all[j].CheckInTime) })
	total := len(all)
	lo := page.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + page.PageSize
	if hi > total {
		hi = total
	}
	return all[lo:hi], total, nil
}

func (f *fakeStore) ListByParticipant(_ context.Context, participantID uuid.UUID, page response.Page) ([]models.CheckIn, int, error) {
	var all []models.CheckIn
	for _, s := range f.sessions {
		if s.ParticipantID == participantID {
			all = append(all, *s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CheckInTime.After(all[j].CheckInTime) })
	return all, len(all), nil
}

type fakeNotifier struct {
	titles []string
}

func (f *fakeNotifier) Record(_ context.Context, title, _ string, _ models.NotificationType, _ uuid.UUID) {
	f.titles = append(f.titles, title)
}

func newTestEngine(store *fakeStore) (*Engine, *fakeNotifier) {
	n := &fakeNotifier{}
	e := NewEngine(store, n, nil)
	return e, n
}

func TestCheckInOpensSession(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	p := store.addParticipant(eventID)
	engine, notifier := newTestEngine(store)

	rec, err := engine.CheckIn(context.Background(), Params{ParticipantID: p.ID, EventID: eventID, UserID: uuid.New()})
	require.NoError(t, err)

	assert.True(t, rec.Open())
	assert.Equal(t, models.ParticipantCheckedIn, p.Status)
	require.NotNil(t, p.CheckedInAt)
	assert.Equal(t, rec.CheckInTime, *p.CheckedInAt)
	assert.Equal(t, []string{"Check-In"}, notifier.titles)
}

func TestCheckInUnknownParticipant(t *testing.T) {
	store := newFakeStore()
	engine, _ := newTestEngine(store)

	_, err := engine.CheckIn(context.Background(), Params{ParticipantID: uuid.New(), EventID: uuid.New()})
	assert.ErrorIs(t, err, ErrParticipantNotFound)
	assert.Empty(t, store.sessions)
}

func TestCheckInWrongEvent(t *testing.T) {
	store := newFakeStore()
	p := store.addParticipant(uuid.New())
	engine, _ := newTestEngine(store)

	_, err := engine.CheckIn(context.Background(), Params{ParticipantID: p.ID, EventID: uuid.New()})
	assert.ErrorIs(t, err, ErrParticipantNotFound)
}

func TestDoubleCheckInOpensSecondSession(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	p := store.addParticipant(eventID)
	engine, _ := newTestEngine(store)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }
	_, err := engine.CheckIn(context.Background(), Params{ParticipantID: p.ID, EventID: eventID})
	require.NoError(t, err)

	engine.now = func() time.Time { return base.Add(time.Minute) }
	_, err = engine.CheckIn(context.Background(), Params{ParticipantID: p.ID, EventID: eventID})
	require.NoError(t, err)

	open := 0
	for _, s := range store.sessions {
		if s.Open() {
			open++
		}
	}
	assert.Equal(t, 2, open)
}

func TestCheckOutClosesNewestOpenSession(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	p := store.addParticipant(eventID)
	engine, notifier := newTestEngine(store)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return base }
	first, err := engine.CheckIn(context.Background(), Params{ParticipantID: p.ID, EventID: eventID})
	require.NoError(t, err)
	engine.now = func() time.Time { return base.Add(time.Minute) }
	second, err := engine.CheckIn(context.Background(), Params{ParticipantID: p.ID, EventID: eventID})
	require.NoError(t, err)

	out := base.Add(2 * time.Minute)
	engine.now = func() time.Time { return out }
	require.NoError(t, engine.CheckOut(context.Background(), Params{ParticipantID: p.ID, EventID: eventID}))

	byID := map[uuid.UUID]*models.CheckIn{}
	for _, s := range store.sessions {
		byID[s.ID] = s
	}
	assert.True(t, byID[first.ID].Open(), "older session stays open")
	require.False(t, byID[second.ID].Open(), "newest session is closed")
	assert.Equal(t, out, *byID[second.ID].CheckOutTime)
	assert.Equal(t, models.ParticipantCheckedOut, p.Status)
	assert.Equal(t, []string{"Check-In", "Check-In", "Check-Out"}, notifier.titles)
}

func TestCheckOutMetadata(t *testing.T) {
	t.Run("preserved when absent", func(t *testing.T) {
		store := newFakeStore()
		eventID := uuid.New()
		p := store.addParticipant(eventID)
		engine, _ := newTestEngine(store)

		_, err := engine.CheckIn(context.Background(),
			Params{ParticipantID: p.ID, EventID: eventID, Metadata: json.RawMessage(`{"gate":"A"}`)})
		require.NoError(t, err)
		require.NoError(t, engine.CheckOut(context.Background(), Params{ParticipantID: p.ID, EventID: eventID}))

		assert.JSONEq(t, `{"gate":"A"}`, string(store.sessions[0].Metadata))
	})

	t.Run("replaced wholesale when supplied", func(t *testing.T) {
		store := newFakeStore()
		eventID := uuid.New()
		p := store.addParticipant(eventID)
		engine, _ := newTestEngine(store)

		_, err := engine.CheckIn(context.Background(),
			Params{ParticipantID: p.ID, EventID: eventID, Metadata: json.RawMessage(`{"gate":"A","note":"x"}`)})
		require.NoError(t, err)
		require.NoError(t, engine.CheckOut(context.Background(),
			Params{ParticipantID: p.ID, EventID: eventID, Metadata: json.RawMessage(`{"gate":"B"}`)}))

		assert.JSONEq(t, `{"gate":"B"}`, string(store.sessions[0].Metadata))
	})
}

func TestCheckOutWithoutOpenSessionRecordsInstantVisit(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	p := store.addParticipant(eventID)
	engine, _ := newTestEngine(store)

	now := time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	require.NoError(t, engine.CheckOut(context.Background(), Params{ParticipantID: p.ID, EventID: eventID}))

	require.Len(t, store.sessions, 1)
	rec := store.sessions[0]
	require.NotNil(t, rec.CheckOutTime)
	assert.Equal(t, rec.CheckInTime, *rec.CheckOutTime)
	assert.Equal(t, models.ParticipantCheckedOut, p.Status)
}

func TestCheckOutRaceReQueries(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	p := store.addParticipant(eventID)
	engine, _ := newTestEngine(store)

	_, err := engine.CheckIn(context.Background(), Params{ParticipantID: p.ID, EventID: eventID})
	require.NoError(t, err)

	// A competing writer closes the session after our read but before the
	// conditional update. The engine must loop back to the read, see no open
	// session, and record an instant visit rather than double-close.
	raced := false
	store.closeHook = func() {
		if raced {
			return
		}
		raced = true
		other := time.Now()
		store.sessions[0].CheckOutTime = &other
	}

	require.NoError(t, engine.CheckOut(context.Background(), Params{ParticipantID: p.ID, EventID: eventID}))
	require.Len(t, store.sessions, 2)
	assert.False(t, store.sessions[1].Open())
	assert.Equal(t, store.sessions[1].CheckInTime, *store.sessions[1].CheckOutTime)
}

func TestListByEventPagination(t *testing.T) {
	store := newFakeStore()
	eventID := uuid.New()
	p := store.addParticipant(eventID)
	engine, _ := newTestEngine(store)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		engine.now = func() time.Time { return at }
		_, err := engine.CheckIn(context.Background(), Params{ParticipantID: p.ID, EventID: eventID})
		require.NoError(t, err)
	}

	list, total, err := engine.ListByEvent(context.Background(), eventID, response.ClampPage(1, 2))
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, list, 2)
	assert.True(t, list[0].CheckInTime.After(list[1].CheckInTime))
}
