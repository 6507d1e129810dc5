package dto

import "time"

// LoginRequest carries admin credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ManualAssignRequest places one member into a specific venue slot.
type ManualAssignRequest struct {
	MembershipNumber string    `json:"membershipNumber"`
	VenueName        string    `json:"venueName"`
	SlotTime         time.Time `json:"slotTime"`
}

// BulkAssignRequest applies an explicit list of per-member placements.
type BulkAssignRequest struct {
	Assignments []ManualAssignRequest `json:"assignments"`
}

// AutoAssignRequest starts the automatic allocation job.
type AutoAssignRequest struct {
	Region          string `json:"region,omitempty"`
	ReplaceExisting bool   `json:"replaceExisting,omitempty"`
}

// SendNotificationRequest triggers a single-member dispatch.
type SendNotificationRequest struct {
	TemplateKind string `json:"templateKind"`
	Provider     string `json:"provider,omitempty"`
	Force        bool   `json:"force,omitempty"`
}

// BulkNotifyRequest starts a batch dispatch job.
type BulkNotifyRequest struct {
	MembershipNumbers []string `json:"membershipNumbers,omitempty"`
	Region            string   `json:"region,omitempty"`
	TemplateKind      string   `json:"templateKind"`
	Provider          string   `json:"provider,omitempty"`
	Force             bool     `json:"force,omitempty"`
}

// AdvanceStageRequest moves a member forward one stage.
type AdvanceStageRequest struct {
	Stage    string `json:"stage"`
	Override bool   `json:"override,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}
