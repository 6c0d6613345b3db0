package payment

import "time"

// Webhook event types sent by the processor. Any other type is ignored.
const (
	EventInvoiceSettled = "InvoiceSettled"
	EventInvoiceExpired = "InvoiceExpired"
	EventInvoiceInvalid = "InvoiceInvalid"
)

// IsTerminal reports whether status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusPaid, StatusExpired, StatusInvalid:
		return true
	}
	return false
}

// Rules configures the lifecycle transition policy.
type Rules struct {
	// LockTerminal prevents a later event from overwriting a terminal
	// status (e.g. paid -> expired). When false, a conflicting terminal
	// event wins, matching the processor's last delivery.
	LockTerminal bool
}

// Decision is the outcome of applying a webhook event to a payment.
type Decision struct {
	NewStatus string
	PaidAt    *time.Time // set only on the transition into paid
	Ignored   bool       // unrecognized event type, acknowledge without error
	NoOp      bool       // recognized event, no write required
}

// Decide maps an incoming event type onto the payment's next status.
//
// Replaying an event that yields the current status is a no-op, which makes
// the webhook handler safe under the processor's at-least-once delivery.
// The handler persists a transition only when both Ignored and NoOp are false.
func (r Rules) Decide(current, eventType string, now time.Time) Decision {
	var target string
	var paidAt *time.Time

	switch eventType {
	case EventInvoiceSettled:
		target = StatusPaid
		paidAt = &now
	case EventInvoiceExpired:
		target = StatusExpired
	case EventInvoiceInvalid:
		target = StatusInvalid
	default:
		return Decision{Ignored: true}
	}

	if target == current {
		return Decision{NewStatus: current, NoOp: true}
	}
	if r.LockTerminal && IsTerminal(current) {
		return Decision{NewStatus: current, NoOp: true}
	}

	return Decision{NewStatus: target, PaidAt: paidAt}
}
