package notify

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SMSExportProvider queues messages for the external bulk-SMS gateway by
// appending rows to a daily CSV hand-off file. Nothing is sent directly;
// the gateway ingests the file out of band.
type SMSExportProvider struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
}

// NewSMSExportProvider builds the provider writing under dir.
func NewSMSExportProvider(dir string, logger *zap.Logger) *SMSExportProvider {
	return &SMSExportProvider{dir: dir, logger: logger}
}

func (p *SMSExportProvider) Name() string { return "smsexport" }

func (p *SMSExportProvider) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("sms export dir: %w", err)
	}
	path := filepath.Join(p.dir, fmt.Sprintf("sms-export-%s.csv", time.Now().Format("2006-01-02")))

	newFile := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		newFile = true
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sms export open: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if newFile {
		if err := writer.Write([]string{"mobile", "membership_number", "ticket_token", "message"}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{msg.Recipient, msg.MembershipNumber, msg.TicketToken, msg.Body}); err != nil {
		return err
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("sms export write: %w", err)
	}

	p.logger.Debug("sms export queued",
		zap.String("membership_number", msg.MembershipNumber),
		zap.String("file", path))
	return nil
}
