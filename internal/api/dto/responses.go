package dto

import "time"

// LoginResponse returns the issued bearer token.
type LoginResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// PreferenceResponse is one ranked choice on the member view.
type PreferenceResponse struct {
	Rank      int       `json:"rank"`
	VenueName string    `json:"venueName"`
	SlotTime  time.Time `json:"slotTime"`
}

// AssignmentResponse is the member's current venue placement.
type AssignmentResponse struct {
	VenueName string    `json:"venueName"`
	SlotTime  time.Time `json:"slotTime"`
	Source    string    `json:"source"`
	AppliedAt time.Time `json:"appliedAt"`
}

// MemberResponse is the admin view of one member.
type MemberResponse struct {
	MembershipNumber    string               `json:"membershipNumber"`
	Name                string               `json:"name"`
	Region              string               `json:"region"`
	PrimaryEmail        string               `json:"primaryEmail,omitempty"`
	Mobile              string               `json:"mobile,omitempty"`
	Stage               string               `json:"stage"`
	PreferredAttending  *bool                `json:"preferredAttending"`
	SpecialVoteEligible bool                 `json:"specialVoteEligible"`
	ContactChannel      string               `json:"contactChannel"`
	Preferences         []PreferenceResponse `json:"preferences"`
	Assignment          *AssignmentResponse  `json:"assignment,omitempty"`
	CreatedAt           time.Time            `json:"createdAt"`
	UpdatedAt           time.Time            `json:"updatedAt"`
}

// StageHistoryResponse is one audit entry of a member's stage changes.
type StageHistoryResponse struct {
	FromStage string    `json:"fromStage"`
	ToStage   string    `json:"toStage"`
	Override  bool      `json:"override"`
	Evidence  string    `json:"evidence,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SlotResponse is the capacity view of one venue session.
type SlotResponse struct {
	SlotTime  time.Time `json:"slotTime"`
	Capacity  int       `json:"capacity"`
	Assigned  int       `json:"assigned"`
	Remaining int       `json:"remaining"`
	Percent   int       `json:"percent"`
	Full      bool      `json:"full"`
}

// VenueResponse groups the capacity view per venue.
type VenueResponse struct {
	Name    string         `json:"name"`
	Region  string         `json:"region"`
	Address string         `json:"address,omitempty"`
	Slots   []SlotResponse `json:"slots"`
}

// AssignmentResultResponse is the per-member line of a bulk report.
type AssignmentResultResponse struct {
	MembershipNumber string     `json:"membershipNumber"`
	Outcome          string     `json:"outcome"`
	VenueName        string     `json:"venueName,omitempty"`
	SlotTime         *time.Time `json:"slotTime,omitempty"`
	Detail           string     `json:"detail,omitempty"`
}

// JobAcceptedResponse acknowledges an asynchronous job.
type JobAcceptedResponse struct {
	JobID  string `json:"jobId"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// JobProgressResponse is the pollable progress view.
type JobProgressResponse struct {
	JobID      string    `json:"jobId"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	Processed  int       `json:"processed"`
	Total      int       `json:"total"`
	ErrorCount int       `json:"errorCount"`
	Percentage int       `json:"percentage"`
	Detail     string    `json:"detail,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DispatchResponse reports a single-member notification send.
type DispatchResponse struct {
	MembershipNumber string `json:"membershipNumber"`
	Channel          string `json:"channel"`
	Status           string `json:"status"`
	AlreadySent      bool   `json:"alreadySent"`
	Excluded         bool   `json:"excluded"`
}
