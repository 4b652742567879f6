package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/facilityhub/permit-tracker/constants"
)

func TestPermitStatusAt(t *testing.T) {
	today := time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time { return today.AddDate(0, 0, offset) }

	tests := []struct {
		name     string
		expiry   time.Time
		isActive bool
		want     constants.PermitStatus
	}{
		{"expiry yesterday", day(-1), true, constants.StatusExpired},
		{"expiry today counts as expired", day(0), true, constants.StatusExpired},
		{"expiry tomorrow is expiring", day(1), true, constants.StatusExpiring},
		{"expiry at window edge", day(constants.ExpiringWindowDays), true, constants.StatusExpiring},
		{"expiry past window", day(constants.ExpiringWindowDays + 1), true, constants.StatusActive},
		{"inactive wins over dates", day(365), false, constants.StatusSuperseded},
		{"inactive and expired is still superseded", day(-365), false, constants.StatusSuperseded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Permit{ExpiryDate: tt.expiry, IsActive: tt.isActive}
			assert.Equal(t, tt.want, p.StatusAt(today))
		})
	}
}

func TestPermitStatusAt_IgnoresTimeOfDay(t *testing.T) {
	// A permit expiring later today is still expired; only the calendar
	// day matters.
	now := time.Date(2025, time.May, 10, 8, 30, 0, 0, time.UTC)
	p := &Permit{
		ExpiryDate: time.Date(2025, time.May, 10, 23, 59, 0, 0, time.UTC),
		IsActive:   true,
	}
	assert.Equal(t, constants.StatusExpired, p.StatusAt(now))
}

func TestParseYMD(t *testing.T) {
	d, err := ParseYMD("2025-03-15")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC), d)
	assert.Equal(t, "2025-03-15", FormatYMD(d))

	_, err = ParseYMD("03/15/2025")
	assert.Error(t, err)

	_, err = ParseYMD("2025-02-30")
	assert.Error(t, err)
}
