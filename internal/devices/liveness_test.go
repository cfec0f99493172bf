package devices

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qikhub/backend/internal/models"
)

type fakeLivenessStore struct {
	devices map[string]*models.Device
}

func newFakeLivenessStore() *fakeLivenessStore {
	return &fakeLivenessStore{devices: map[string]*models.Device{}}
}

func (f *fakeLivenessStore) add(externalID string) *models.Device {
	d := &models.Device{DeviceID: externalID, Name: externalID, DeviceType: models.DeviceNFC, Status: models.DeviceActive}
	f.devices[externalID] = d
	return d
}

func (f *fakeLivenessStore) ApplyPing(_ context.Context, ping Ping, at time.Time) (*models.Device, error) {
	d, ok := f.devices[ping.DeviceID]
	if !ok {
		return nil, nil
	}
	t := at
	d.LastSeen = &t
	d.IsOnline = ping.IsOnline == nil || *ping.IsOnline
	if ping.BatteryLevel != nil {
		d.BatteryLevel = ping.BatteryLevel
	}
	if ping.SignalStrength != nil {
		d.SignalStrength = ping.SignalStrength
	}
	if ping.HealthData != nil {
		d.HealthData = ping.HealthData
	}
	cp := *d
	return &cp, nil
}

func (f *fakeLivenessStore) MarkStaleOffline(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for _, d := range f.devices {
		if d.IsOnline && d.LastSeen != nil && d.LastSeen.Before(cutoff) {
			d.IsOnline = false
			n++
		}
	}
	return n, nil
}

func intPtr(n int) *int    { return &n }
func boolPtr(b bool) *bool { return &b }

func TestPingMovesLastSeenAndDefaultsOnline(t *testing.T) {
	store := newFakeLivenessStore()
	store.add("scanner-1")
	l := NewLiveness(store, 5*time.Minute, nil)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return at }

	d, err := l.ApplyPing(context.Background(), Ping{DeviceID: "scanner-1"})
	require.NoError(t, err)
	assert.True(t, d.IsOnline)
	require.NotNil(t, d.LastSeen)
	assert.Equal(t, at, *d.LastSeen)
}

func TestPingPartialTelemetry(t *testing.T) {
	store := newFakeLivenessStore()
	store.add("scanner-1")
	l := NewLiveness(store, 5*time.Minute, nil)

	_, err := l.ApplyPing(context.Background(), Ping{
		DeviceID:       "scanner-1",
		BatteryLevel:   intPtr(80),
		SignalStrength: intPtr(-60),
		HealthData:     json.RawMessage(`{"temp":41}`),
	})
	require.NoError(t, err)

	// A later bare ping must not wipe the reported telemetry.
	d, err := l.ApplyPing(context.Background(), Ping{DeviceID: "scanner-1"})
	require.NoError(t, err)
	require.NotNil(t, d.BatteryLevel)
	assert.Equal(t, 80, *d.BatteryLevel)
	require.NotNil(t, d.SignalStrength)
	assert.Equal(t, -60, *d.SignalStrength)
	assert.JSONEq(t, `{"temp":41}`, string(d.HealthData))
}

func TestPingExplicitOfflineWinsButLastSeenStillMoves(t *testing.T) {
	store := newFakeLivenessStore()
	store.add("scanner-1")
	l := NewLiveness(store, 5*time.Minute, nil)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return at }

	d, err := l.ApplyPing(context.Background(), Ping{DeviceID: "scanner-1", IsOnline: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, d.IsOnline)
	require.NotNil(t, d.LastSeen)
	assert.Equal(t, at, *d.LastSeen)
}

func TestPingUnknownDevice(t *testing.T) {
	store := newFakeLivenessStore()
	l := NewLiveness(store, 5*time.Minute, nil)

	_, err := l.ApplyPing(context.Background(), Ping{DeviceID: "ghost"})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestSweepMarksOnlyStaleOnlineDevices(t *testing.T) {
	store := newFakeLivenessStore()
	l := NewLiveness(store, 5*time.Minute, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stale := store.add("stale")
	staleSeen := base.Add(-10 * time.Minute)
	stale.IsOnline = true
	stale.LastSeen = &staleSeen

	fresh := store.add("fresh")
	freshSeen := base.Add(-1 * time.Minute)
	fresh.IsOnline = true
	fresh.LastSeen = &freshSeen

	neverPinged := store.add("silent")

	l.now = func() time.Time { return base }
	n, err := l.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, stale.IsOnline)
	assert.True(t, fresh.IsOnline)
	assert.False(t, neverPinged.IsOnline)
}

func TestSweepIdempotent(t *testing.T) {
	store := newFakeLivenessStore()
	l := NewLiveness(store, 5*time.Minute, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := store.add("stale")
	seen := base.Add(-time.Hour)
	d.IsOnline = true
	d.LastSeen = &seen

	l.now = func() time.Time { return base }
	n, err := l.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = l.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPingAfterSweepBringsDeviceBack(t *testing.T) {
	store := newFakeLivenessStore()
	l := NewLiveness(store, 5*time.Minute, nil)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := store.add("scanner-1")
	seen := base.Add(-time.Hour)
	d.IsOnline = true
	d.LastSeen = &seen

	l.now = func() time.Time { return base }
	_, err := l.SweepStale(context.Background())
	require.NoError(t, err)
	assert.False(t, d.IsOnline)

	got, err := l.ApplyPing(context.Background(), Ping{DeviceID: "scanner-1"})
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
	assert.Equal(t, base, *got.LastSeen)
}
