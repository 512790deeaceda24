package dispatch

import "context"

// OutboundEmail is a single rendered message ready for handoff to an ESP.
type OutboundEmail struct {
	ToName  string
	ToEmail string
	Subject string
	Body    string
}

// Deliverer hands one rendered email to an email service provider. A nil
// error means the provider accepted the message; any error is recorded
// against the recipient and the run moves on.
type Deliverer interface {
	Deliver(ctx context.Context, email *OutboundEmail) error
}
