// Package devices tracks scanner hardware and its liveness. Devices report in
// with pings; a periodic sweep flips devices offline once their last ping is
// older than the configured threshold. Offline is only ever derived, never
// reported by the device itself going silent.
package devices

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/qikhub/backend/internal/models"
)

// ErrDeviceNotFound is returned when the external device identifier is unknown.
var ErrDeviceNotFound = errors.New("device not found")

// Ping carries a heartbeat from a device. Telemetry fields are partial: nil
// means "not reported this time" and leaves the stored value untouched.
// IsOnline defaults to true when omitted; an explicit false wins, letting a
// device announce a clean shutdown.
type Ping struct {
	DeviceID       string // external identifier
	BatteryLevel   *int
	SignalStrength *int
	HealthData     json.RawMessage
	IsOnline       *bool
}

// LivenessStore is the persistence surface the liveness engine needs.
type LivenessStore interface {
	// ApplyPing updates last_seen and the supplied telemetry for the device
	// with the external identifier, returning the updated device or (nil, nil)
	// when unknown.
	ApplyPing(ctx context.Context, ping Ping, at time.Time) (*models.Device, error)
	// MarkStaleOffline flips is_online=false for every online device whose
	// last_seen is older than cutoff, in one statement. Returns rows affected.
	MarkStaleOffline(ctx context.Context, cutoff time.Time) (int64, error)
}

// Liveness applies pings and sweeps stale devices.
type Liveness struct {
	store     LivenessStore
	threshold time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewLiveness creates a liveness engine. threshold is how long a device may go
// without a ping before the sweep marks it offline.
func NewLiveness(store LivenessStore, threshold time.Duration, logger *zap.Logger) *Liveness {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Liveness{store: store, threshold: threshold, logger: logger, now: time.Now}
}

// ApplyPing records a heartbeat. last_seen always moves to now, whatever the
// telemetry says; a ping with IsOnline=false still proves the device was
// reachable a moment ago.
func (l *Liveness) ApplyPing(ctx context.Context, ping Ping) (*models.Device, error) {
	dev, err := l.store.ApplyPing(ctx, ping, l.now())
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, ErrDeviceNotFound
	}
	return dev, nil
}

// SweepStale marks every device offline whose last ping is older than the
// threshold. Silent: no notifications, no per-device records.
func (l *Liveness) SweepStale(ctx context.Context) (int64, error) {
	cutoff := l.now().Add(-l.threshold)
	return l.store.MarkStaleOffline(ctx, cutoff)
}

// Run sweeps on the given interval until ctx is cancelled. Sweep errors are
// logged and swallowed; the next tick retries.
func (l *Liveness) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	l.logger.Info("liveness sweeper started",
		zap.Duration("interval", interval), zap.Duration("threshold", l.threshold))
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("liveness sweeper stopped")
			return
		case <-ticker.C:
			n, err := l.SweepStale(ctx)
			if err != nil {
				l.logger.Error("liveness sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				l.logger.Info("devices marked offline", zap.Int64("count", n))
			}
		}
	}
}
