package gateway

import "errors"

var (
	// ErrGatewayUnavailable means provider credentials are absent or the
	// provider client could not be constructed. Callers must fail fast rather
	// than silently proceed as if the user were on a free tier.
	ErrGatewayUnavailable = errors.New("payment gateway is not configured")

	// ErrGatewayRejected means the provider returned a non-2xx response.
	// The provider's human-readable description is joined onto this error.
	ErrGatewayRejected = errors.New("payment gateway rejected the request")

	// ErrInvalidSignature means a payment or webhook signature did not verify
	// against the raw input. Hard reject, no state change.
	ErrInvalidSignature = errors.New("invalid gateway signature")

	ErrUnknownProvider    = errors.New("unknown payment gateway provider")
	ErrCustomerNotFound   = errors.New("gateway customer not found")
	ErrMalformedResponse  = errors.New("malformed gateway response")
	ErrMissingPlanRef     = errors.New("gateway plan reference is required")
	ErrMissingGatewayRef  = errors.New("gateway subscription reference is required")
	ErrMissingPaymentRef  = errors.New("gateway payment reference is required")
	ErrInvalidOrderAmount = errors.New("order amount must be positive")
)
