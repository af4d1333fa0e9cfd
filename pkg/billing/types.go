package billing

import "fmt"

// Plan is the internal product tier. Gateway-side plan identifiers are mapped
// onto this enum through configuration; an unrecognized identifier resolves to
// PlanFree so a payment confirmation never silently upgrades anyone.
type Plan string

const (
	PlanFree     Plan = "free"
	PlanStarter  Plan = "starter"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// ParsePlan validates a user-supplied plan name.
func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanFree, PlanStarter, PlanPro, PlanBusiness:
		return Plan(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
}

// Status is the canonical, provider-agnostic lifecycle state. All entitlement
// decisions read this enum, never the gateway's own vocabulary.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// PaymentStatus is the lifecycle of a one-time catalog order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// StatusFromGateway maps the gateway's subscription status vocabulary onto the
// canonical set. The second return is false for vocabulary this mapping does
// not know, in which case the caller treats the snapshot as non-committing.
func StatusFromGateway(s string) (Status, bool) {
	switch s {
	case "created", "pending":
		return StatusPending, true
	case "authenticated", "active", "resumed":
		return StatusActive, true
	case "completed", "cancelled":
		// A fully consumed fixed-cycle subscription is treated as ended.
		return StatusCanceled, true
	case "paused", "halted":
		return StatusPastDue, true
	default:
		return StatusPending, false
	}
}

// EventKind is a normalized webhook event.
type EventKind string

const (
	EventActivated     EventKind = "activated"
	EventCharged       EventKind = "charged"
	EventCompleted     EventKind = "completed"
	EventCancelled     EventKind = "cancelled"
	EventPaused        EventKind = "paused"
	EventResumed       EventKind = "resumed"
	EventPending       EventKind = "pending"
	EventHalted        EventKind = "halted"
	EventPaymentFailed EventKind = "payment_failed"
)

// EventFromWebhook maps the provider's event name to a normalized kind.
// Unknown names return false and are logged and ignored upstream, keeping the
// webhook endpoint forward-compatible with new provider events.
func EventFromWebhook(name string) (EventKind, bool) {
	switch name {
	case "subscription.activated", "subscription.authenticated":
		return EventActivated, true
	case "subscription.charged":
		return EventCharged, true
	case "subscription.completed":
		return EventCompleted, true
	case "subscription.cancelled":
		return EventCancelled, true
	case "subscription.paused":
		return EventPaused, true
	case "subscription.resumed":
		return EventResumed, true
	case "subscription.pending":
		return EventPending, true
	case "subscription.halted":
		return EventHalted, true
	case "payment.failed":
		return EventPaymentFailed, true
	default:
		return "", false
	}
}
