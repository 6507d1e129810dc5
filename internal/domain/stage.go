package domain

import "fmt"

// Stage enumerates the ordered registration pipeline for a member.
// Transitions move strictly forward one step at a time; anything else
// requires an explicit override.
type Stage string

const (
	StageInvited             Stage = "INVITED"
	StagePreferenceSubmitted Stage = "PREFERENCE_SUBMITTED"
	StageVenueAssigned       Stage = "VENUE_ASSIGNED"
	StageAttendanceConfirmed Stage = "ATTENDANCE_CONFIRMED"
	StageTicketIssued        Stage = "TICKET_ISSUED"
	StageCheckedIn           Stage = "CHECKED_IN"
)

// stageOrder is the authoritative transition table. A stage's successor is
// the only legal non-override target.
var stageOrder = []Stage{
	StageInvited,
	StagePreferenceSubmitted,
	StageVenueAssigned,
	StageAttendanceConfirmed,
	StageTicketIssued,
	StageCheckedIn,
}

var stageIndex = func() map[Stage]int {
	idx := make(map[Stage]int, len(stageOrder))
	for i, s := range stageOrder {
		idx[s] = i
	}
	return idx
}()

// ParseStage validates a raw string against the closed enumeration.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if _, ok := stageIndex[s]; !ok {
		return "", fmt.Errorf("unknown stage %q", raw)
	}
	return s, nil
}

// Valid reports whether the stage belongs to the enumeration.
func (s Stage) Valid() bool {
	_, ok := stageIndex[s]
	return ok
}

// Ordinal returns the position of the stage in the pipeline.
func (s Stage) Ordinal() int {
	return stageIndex[s]
}

// Next returns the immediate successor stage, or false when the stage is
// terminal or unknown.
func (s Stage) Next() (Stage, bool) {
	idx, ok := stageIndex[s]
	if !ok || idx == len(stageOrder)-1 {
		return "", false
	}
	return stageOrder[idx+1], true
}

// CanAdvanceTo reports whether target is the immediate successor of s.
func (s Stage) CanAdvanceTo(target Stage) bool {
	next, ok := s.Next()
	return ok && next == target
}

// AtLeast reports whether the stage is at or past the given stage.
func (s Stage) AtLeast(other Stage) bool {
	si, ok := stageIndex[s]
	if !ok {
		return false
	}
	oi, ok := stageIndex[other]
	if !ok {
		return false
	}
	return si >= oi
}
