package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// TicketCredentials is what the ticket/QR generation boundary hands back.
type TicketCredentials struct {
	TicketToken string
	QRPayload   string
}

// TicketGenerator is the ticket-token/QR generation boundary. Generation
// happens once per member before the first send; the credentials are stored
// on the notification record so a failed delivery never regenerates them.
type TicketGenerator interface {
	Generate(ctx context.Context, membershipNumber string) (TicketCredentials, error)
}

type uuidTicketGenerator struct{}

// NewTicketGenerator returns the default generator producing opaque UUID
// tokens and a scannable QR payload.
func NewTicketGenerator() TicketGenerator {
	return uuidTicketGenerator{}
}

func (uuidTicketGenerator) Generate(ctx context.Context, membershipNumber string) (TicketCredentials, error) {
	token := uuid.NewString()
	return TicketCredentials{
		TicketToken: token,
		QRPayload:   fmt.Sprintf("BMM:%s:%s", membershipNumber, token),
	}, nil
}
