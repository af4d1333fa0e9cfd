package billing

import "errors"

var (
	// ErrStoreUnavailable wraps persistence failures. The engine logs and
	// surfaces these to its caller; it never pretends success.
	ErrStoreUnavailable = errors.New("subscription store unavailable")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrOrderNotFound        = errors.New("catalog order not found")

	// ErrPlanMismatch marks an unrecognized gateway plan identifier. The
	// engine resolves it by defaulting to the free plan rather than failing,
	// so a successful payment confirmation is never blocked by it; the
	// sentinel exists for logging and tests.
	ErrPlanMismatch = errors.New("unrecognized gateway plan reference")

	// ErrPaymentNotCompleted means the payment exists but is not captured or
	// authorized. The condition is "not yet", retryable by the client.
	ErrPaymentNotCompleted = errors.New("payment is not in a completed state")

	ErrNotOwner       = errors.New("subscription does not belong to the caller")
	ErrInvalidPlan    = errors.New("invalid plan")
	ErrNotCancellable = errors.New("one-time purchases cannot be cancelled")
	ErrMalformedEvent = errors.New("malformed webhook event payload")
)
