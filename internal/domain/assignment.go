package domain

import "time"

// AssignmentSource records whether an assignment was placed by an admin or
// by the bulk allocator.
type AssignmentSource string

const (
	AssignmentManual AssignmentSource = "MANUAL"
	AssignmentAuto   AssignmentSource = "AUTO"
)

// Assignment binds a member to one venue slot. It exists if and only if the
// member's stage is at least VENUE_ASSIGNED; creating one is the only way
// slot occupancy increases.
type Assignment struct {
	MembershipNumber string
	VenueName        string
	SlotTime         time.Time
	Source           AssignmentSource
	AppliedAt        time.Time
}

// SlotKey returns the slot the assignment occupies.
func (a Assignment) SlotKey() SlotKey {
	return SlotKey{VenueName: a.VenueName, SlotTime: a.SlotTime}
}

// AssignmentOutcome classifies the result for one member of a bulk
// allocation run.
type AssignmentOutcome string

const (
	OutcomeAssigned          AssignmentOutcome = "ASSIGNED"
	OutcomeSkipped           AssignmentOutcome = "ALREADY_ASSIGNED_SKIPPED"
	OutcomeCapacityExhausted AssignmentOutcome = "CAPACITY_EXHAUSTED"
	OutcomeNoSlotInRegion    AssignmentOutcome = "NO_SLOT_IN_REGION"
	OutcomeFailed            AssignmentOutcome = "FAILED"
)

// AssignmentResult is the per-member line of a bulk allocation report. The
// batch is never collapsed into a single pass/fail.
type AssignmentResult struct {
	MembershipNumber string
	Outcome          AssignmentOutcome
	VenueName        string
	SlotTime         *time.Time
	Detail           string
}
