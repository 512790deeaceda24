package delivery

import (
	"context"
	"log"

	"github.com/ignite/bulkmailer/internal/pkg/logger"
	"github.com/ignite/bulkmailer/internal/service/dispatch"
)

// Log is a no-op deliverer that only logs. It stands in for a real provider
// in development so the full dispatch flow can be exercised without
// credentials.
type Log struct{}

// NewLog creates a log-only deliverer.
func NewLog() *Log { return &Log{} }

// Deliver logs the message and reports success.
func (l *Log) Deliver(_ context.Context, email *dispatch.OutboundEmail) error {
	log.Printf("[LogDeliverer] Would send %q to %s", email.Subject, logger.RedactEmail(email.ToEmail))
	return nil
}
