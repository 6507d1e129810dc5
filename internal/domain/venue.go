package domain

import (
	"fmt"
	"time"
)

// Venue groups the sessions held at one physical location.
type Venue struct {
	Name    string
	Region  string
	Address string
	Slots   []Slot
}

// Slot is a single venue session with finite capacity. Occupancy is the
// authoritative counter; it must never exceed Capacity.
type Slot struct {
	VenueName string
	Region    string
	SlotTime  time.Time
	Capacity  int
	Occupancy int
}

// Key identifies the slot for reservation bookkeeping.
func (s Slot) Key() SlotKey {
	return SlotKey{VenueName: s.VenueName, SlotTime: s.SlotTime}
}

// Full reports whether the slot has no remaining capacity.
func (s Slot) Full() bool {
	return s.Occupancy >= s.Capacity
}

// Remaining returns the unreserved units of capacity.
func (s Slot) Remaining() int {
	if r := s.Capacity - s.Occupancy; r > 0 {
		return r
	}
	return 0
}

// Load returns the occupancy fraction, used to pick the least-loaded
// fallback slot during auto assignment.
func (s Slot) Load() float64 {
	if s.Capacity <= 0 {
		return 1
	}
	return float64(s.Occupancy) / float64(s.Capacity)
}

// SlotKey is the (venue, datetime) identity of a slot.
type SlotKey struct {
	VenueName string
	SlotTime  time.Time
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s@%s", k.VenueName, k.SlotTime.Format(time.RFC3339))
}
