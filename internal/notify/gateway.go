package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// GatewayProvider posts messages to an internal email gateway as JSON. It
// is the second interchangeable email backend.
type GatewayProvider struct {
	url    string
	from   string
	client *http.Client
	logger *zap.Logger
}

// NewGatewayProvider builds the provider for the given endpoint.
func NewGatewayProvider(url, from string, logger *zap.Logger) *GatewayProvider {
	return &GatewayProvider{
		url:    url,
		from:   from,
		client: &http.Client{},
		logger: logger,
	}
}

func (p *GatewayProvider) Name() string { return "gateway" }

type gatewayPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (p *GatewayProvider) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(gatewayPayload{
		From:    p.from,
		To:      msg.Recipient,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("gateway send: unexpected status %d", resp.StatusCode)
	}
	p.logger.Debug("gateway email sent",
		zap.String("membership_number", msg.MembershipNumber))
	return nil
}
