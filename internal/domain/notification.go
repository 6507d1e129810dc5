package domain

import "time"

// TemplateKind identifies what a notification says. Together with the
// membership number it keys the idempotency record.
type TemplateKind string

const (
	TemplateAssignmentConfirmation TemplateKind = "ASSIGNMENT_CONFIRMATION"
	TemplateTicket                 TemplateKind = "TICKET"
	TemplateSpecialVote            TemplateKind = "SPECIAL_VOTE"
)

// ParseTemplateKind validates a raw template kind string.
func ParseTemplateKind(raw string) (TemplateKind, bool) {
	switch TemplateKind(raw) {
	case TemplateAssignmentConfirmation, TemplateTicket, TemplateSpecialVote:
		return TemplateKind(raw), true
	}
	return "", false
}

// NotificationStatus is the delivery state of one (member, template) pair.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// NotificationRecord is the durable idempotency record for a send. A SENT
// record short-circuits any re-dispatch unless explicitly forced. The ticket
// token lives here because generation is a prerequisite of the first send
// and must survive a failed delivery.
type NotificationRecord struct {
	MembershipNumber string
	TemplateKind     TemplateKind
	Channel          ContactChannel
	Status           NotificationStatus
	AttemptCount     int
	TicketToken      string
	QRPayload        string
	LastAttemptAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
