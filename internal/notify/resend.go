package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendProvider sends email through the Resend API.
type ResendProvider struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

// NewResendProvider builds the provider from an API key and sender address.
func NewResendProvider(apiKey, from string, logger *zap.Logger) *ResendProvider {
	return &ResendProvider{
		client: resend.NewClient(apiKey),
		from:   from,
		logger: logger,
	}
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) Send(ctx context.Context, msg Message) error {
	params := &resend.SendEmailRequest{
		From:    p.from,
		To:      []string{msg.Recipient},
		Subject: msg.Subject,
		Html:    msg.Body,
	}
	sent, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	p.logger.Debug("resend email sent",
		zap.String("message_id", sent.Id),
		zap.String("membership_number", msg.MembershipNumber))
	return nil
}
