package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeviceType identifies the scanning hardware variant.
type DeviceType string

const (
	DeviceNFC    DeviceType = "NFC"
	DeviceQR     DeviceType = "QR"
	DeviceHybrid DeviceType = "HYBRID"
)

// ParseDeviceType validates a device type string at the API boundary.
func ParseDeviceType(s string) (DeviceType, bool) {
	switch DeviceType(s) {
	case DeviceNFC, DeviceQR, DeviceHybrid:
		return DeviceType(s), true
	}
	return "", false
}

// DeviceStatus is the operational state of a device, set by operators. It is
// independent of IsOnline, which liveness tracking derives from pings.
type DeviceStatus string

const (
	DeviceActive      DeviceStatus = "ACTIVE"
	DeviceInactive    DeviceStatus = "INACTIVE"
	DeviceMaintenance DeviceStatus = "MAINTENANCE"
	DeviceError       DeviceStatus = "ERROR"
)

// ParseDeviceStatus validates a device status string at the API boundary.
func ParseDeviceStatus(s string) (DeviceStatus, bool) {
	switch DeviceStatus(s) {
	case DeviceActive, DeviceInactive, DeviceMaintenance, DeviceError:
		return DeviceStatus(s), true
	}
	return "", false
}

// Device is a physical scanning endpoint. IsOnline=true should imply LastSeen is
// within the configured staleness threshold; the sweep enforces this lazily, so
// momentary violations between pings and sweeps are expected.
type Device struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	DeviceType      DeviceType      `json:"device_type"`
	DeviceID        string          `json:"device_id"` // externally visible identifier, unique
	Status          DeviceStatus    `json:"status"`
	LocationName    string          `json:"location_name"`
	LocationLat     *float64        `json:"location_lat,omitempty"`
	LocationLng     *float64        `json:"location_lng,omitempty"`
	FirmwareVersion string          `json:"firmware_version"`
	BatteryLevel    *int            `json:"battery_level,omitempty"`
	SignalStrength  *int            `json:"signal_strength,omitempty"`
	IsOnline        bool            `json:"is_online"`
	LastSeen        *time.Time      `json:"last_seen,omitempty"`
	HealthData      json.RawMessage `json:"health_data,omitempty"`
	Configuration   json.RawMessage `json:"configuration,omitempty"`
	OwnerID         uuid.UUID       `json:"owner_id"`
	EventID         *uuid.UUID      `json:"event_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
