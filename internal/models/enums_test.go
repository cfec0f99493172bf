package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseParticipantStatus(t *testing.T) {
	got, ok := ParseParticipantStatus("CHECKED_IN")
	assert.True(t, ok)
	assert.Equal(t, ParticipantCheckedIn, got)

	// lowercase and unknown values are rejected, not coerced
	_, ok = ParseParticipantStatus("checked_in")
	assert.False(t, ok)
	_, ok = ParseParticipantStatus("UNKNOWN")
	assert.False(t, ok)
	_, ok = ParseParticipantStatus("")
	assert.False(t, ok)
}

func TestParseDeviceEnums(t *testing.T) {
	typ, ok := ParseDeviceType("HYBRID")
	assert.True(t, ok)
	assert.Equal(t, DeviceHybrid, typ)
	_, ok = ParseDeviceType("BLE")
	assert.False(t, ok)

	st, ok := ParseDeviceStatus("MAINTENANCE")
	assert.True(t, ok)
	assert.Equal(t, DeviceMaintenance, st)
	_, ok = ParseDeviceStatus("OFFLINE") // liveness is not a status
	assert.False(t, ok)
}

func TestParseEventStatus(t *testing.T) {
	st, ok := ParseEventStatus("ACTIVE")
	assert.True(t, ok)
	assert.Equal(t, EventActive, st)
	_, ok = ParseEventStatus("ARCHIVED")
	assert.False(t, ok)
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole("organizer")
	assert.True(t, ok)
	assert.Equal(t, RoleOrganizer, r)
	_, ok = ParseRole("superadmin")
	assert.False(t, ok)
}

func TestCheckInOpen(t *testing.T) {
	c := CheckIn{}
	assert.True(t, c.Open())
	now := c.CheckInTime
	c.CheckOutTime = &now
	assert.False(t, c.Open())
}
