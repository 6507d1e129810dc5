package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func boolPtr(v bool) *bool { return &v }

func TestMemberAttending(t *testing.T) {
	assert.True(t, (&Member{}).Attending(), "unanswered preference form counts as eligible")
	assert.True(t, (&Member{PreferredAttending: boolPtr(true)}).Attending())
	assert.False(t, (&Member{PreferredAttending: boolPtr(false)}).Attending())
}

func TestMemberContactChannel(t *testing.T) {
	tests := []struct {
		name   string
		email  string
		mobile string
		expect ContactChannel
	}{
		{"real email", "jo@example.org.nz", "", ChannelEmail},
		{"real email wins over mobile", "jo@example.org.nz", "0211234567", ChannelEmail},
		{"placeholder email with mobile", "12345@temp-email.example.org", "0211234567", ChannelSMSExport},
		{"placeholder email without mobile", "12345@temp-email.example.org", "", ChannelNone},
		{"placeholder subdomain", "a@temp-email.union.org.nz", "021555000", ChannelSMSExport},
		{"no contact details", "", "", ChannelNone},
		{"whitespace mobile only", "", "   ", ChannelNone},
		{"mobile only", "", "0275550123", ChannelSMSExport},
		{"malformed email with mobile", "not-an-email", "0275550123", ChannelSMSExport},
		{"trailing at sign", "jo@", "", ChannelNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			member := &Member{PrimaryEmail: tc.email, Mobile: tc.mobile}
			assert.Equal(t, tc.expect, member.ContactChannel())
		})
	}
}

func TestSlotRemainingAndLoad(t *testing.T) {
	slot := Slot{Capacity: 100, Occupancy: 60}
	assert.Equal(t, 40, slot.Remaining())
	assert.False(t, slot.Full())
	assert.InDelta(t, 0.6, slot.Load(), 0.0001)

	full := Slot{Capacity: 50, Occupancy: 50}
	assert.Equal(t, 0, full.Remaining())
	assert.True(t, full.Full())

	zero := Slot{Capacity: 0, Occupancy: 0}
	assert.True(t, zero.Full())
	assert.Equal(t, float64(1), zero.Load())
}
