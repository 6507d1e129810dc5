package events

import (
	"time"

	"github.com/etu-nz/bmm-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMemberStageAdvanced EventType = "member_stage_advanced"
	EventVenueAssigned       EventType = "venue_assigned"
	EventTicketDispatched    EventType = "ticket_dispatched"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID               string      `json:"id"`
	Type             EventType   `json:"type"`
	MembershipNumber string      `json:"membership_number"`
	Timestamp        time.Time   `json:"timestamp"`
	Payload          interface{} `json:"payload"`
}

// MemberStageAdvancedPayload payload.
type MemberStageAdvancedPayload struct {
	FromStage domain.Stage `json:"from_stage"`
	ToStage   domain.Stage `json:"to_stage"`
	Override  bool         `json:"override"`
}

// VenueAssignedPayload payload.
type VenueAssignedPayload struct {
	VenueName string                  `json:"venue_name"`
	SlotTime  time.Time               `json:"slot_time"`
	Source    domain.AssignmentSource `json:"source"`
}

// TicketDispatchedPayload payload.
type TicketDispatchedPayload struct {
	TemplateKind domain.TemplateKind       `json:"template_kind"`
	Channel      domain.ContactChannel     `json:"channel"`
	Status       domain.NotificationStatus `json:"status"`
}
