package domain

import (
	"strings"
	"time"
)

// ContactChannel is the derived delivery channel for a member.
type ContactChannel string

const (
	ChannelEmail     ContactChannel = "EMAIL"
	ChannelSMSExport ContactChannel = "SMS_EXPORT"
	ChannelNone      ContactChannel = "NONE"
)

// tempEmailHostPrefix marks placeholder addresses created by the membership
// sync when no real email is on file. They must never be used for delivery.
const tempEmailHostPrefix = "temp-email."

// Preference is one ranked venue/session choice. Rank is zero-based; lower
// ranks are preferred.
type Preference struct {
	Rank      int
	VenueName string
	SlotTime  time.Time
}

// Member is the registration aggregate. It is created by the external
// membership sync in stage INVITED and only ever mutated through the stage
// transition and assignment APIs. Members are never deleted.
type Member struct {
	MembershipNumber    string
	Name                string
	Region              string
	PrimaryEmail        string
	Mobile              string
	Stage               Stage
	PreferredAttending  *bool
	SpecialVoteEligible bool
	Preferences         []Preference
	Assignment          *Assignment
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Attending reports whether the member is eligible for allocation and bulk
// sends. An explicit "not attending" excludes them; an unanswered preference
// form does not.
func (m *Member) Attending() bool {
	return m.PreferredAttending == nil || *m.PreferredAttending
}

// ContactChannel derives the delivery channel: a usable email wins, then a
// mobile number (handed off to the bulk SMS gateway), else NONE.
func (m *Member) ContactChannel() ContactChannel {
	if usableEmail(m.PrimaryEmail) {
		return ChannelEmail
	}
	if strings.TrimSpace(m.Mobile) != "" {
		return ChannelSMSExport
	}
	return ChannelNone
}

func usableEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return false
	}
	host := strings.ToLower(addr[at+1:])
	return !strings.HasPrefix(host, tempEmailHostPrefix)
}

// StageHistoryEntry is one immutable audit record of a stage change.
type StageHistoryEntry struct {
	ID               string
	MembershipNumber string
	FromStage        Stage
	ToStage          Stage
	Override         bool
	Evidence         string
	CreatedAt        time.Time
}
