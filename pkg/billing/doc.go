// Package billing owns the canonical subscription lifecycle and its
// reconciliation with the payment gateway.
//
// The gateway holds authoritative billing state; this package keeps a locally
// persisted Subscription row in agreement with it through two channels: the
// gateway's webhook push and an on-demand client pull. Both channels funnel
// through the ReconciliationEngine, which verifies trust boundaries, maps the
// gateway's status vocabulary onto the canonical state machine and writes the
// result exactly once per causal event.
//
// Canonical lifecycle:
//
//	pending → active → {past_due, canceled}
//	past_due → {active, canceled}
//
// One-time purchases enter directly at active with CancelAtPeriodEnd set and
// are never cancelled explicitly; readers interpret them as expired once the
// period end has passed (lazy expiry, no background job).
package billing
