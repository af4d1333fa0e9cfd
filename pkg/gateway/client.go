package gateway

import (
	"context"
	"time"
)

// OrderCreator creates one-time payment orders on the provider side.
type OrderCreator interface {
	// CreateOrder registers an order for a one-time payment. Amount is in the
	// smallest currency unit (paise, cents). The receipt is an internal
	// reference echoed back by the provider; notes are free-form metadata.
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*OrderRef, error)
}

// SubscriptionManager manages recurring billing objects on the provider side.
type SubscriptionManager interface {
	// CreateSubscription creates a recurring subscription against a provider
	// plan. The provider customer is resolved idempotently: an existing
	// customer with the same contact details is reused instead of failing.
	CreateSubscription(ctx context.Context, planRef string, customer CustomerParams, totalCycles int) (*SubscriptionSnapshot, error)

	// FetchSubscription is a read-only pull of the current remote state.
	FetchSubscription(ctx context.Context, ref string) (*SubscriptionSnapshot, error)

	// CancelSubscription cancels the remote subscription, either at the end of
	// the current billing cycle or immediately.
	CancelSubscription(ctx context.Context, ref string, atCycleEnd bool) (*SubscriptionSnapshot, error)
}

// PaymentReader reads the state of individual payments.
type PaymentReader interface {
	FetchPayment(ctx context.Context, paymentRef string) (*PaymentSnapshot, error)
}

// Client is the full capability set the reconciliation engine depends on.
// Providers differ in which snapshot fields they populate; absent dates are
// nil rather than zero so callers can apply their own fallback rules.
type Client interface {
	OrderCreator
	SubscriptionManager
	PaymentReader
}

// CustomerParams identifies the paying customer on the provider side.
type CustomerParams struct {
	Name    string
	Email   string
	Contact string
}

// OrderRef is a provider-side order for a one-time payment.
type OrderRef struct {
	ID          string
	AmountMinor int64
	Currency    string
	Receipt     string
}

// SubscriptionSnapshot is the provider's view of a recurring subscription at a
// point in time. Status carries the provider's own vocabulary; mapping onto
// the canonical lifecycle is the caller's concern.
type SubscriptionSnapshot struct {
	ID           string
	CustomerID   string
	PlanRef      string
	Status       string
	CurrentStart *time.Time
	CurrentEnd   *time.Time
	NextChargeAt *time.Time
	CheckoutURL  string // hosted authorization page for new subscriptions
	PaidCycles   int
	TotalCycles  int
}

// PaymentSnapshot is the provider's view of a single payment.
type PaymentSnapshot struct {
	ID          string
	OrderRef    string
	Status      string
	AmountMinor int64
	Currency    string
	Method      string
	CreatedAt   *time.Time
}

// PaymentCompleted reports whether a payment reached a money-collected state.
// Only captured and authorized count; everything else is "not yet".
func (p *PaymentSnapshot) PaymentCompleted() bool {
	return p.Status == "captured" || p.Status == "authorized"
}

// Config selects and configures the gateway provider.
// Credentials are intentionally not marked required: a deployment without a
// gateway still boots, and billing operations fail with ErrGatewayUnavailable.
type Config struct {
	Provider      string `env:"BILLING_GATEWAY_PROVIDER" envDefault:"razorpay"`
	KeyID         string `env:"BILLING_GATEWAY_KEY_ID"`
	KeySecret     string `env:"BILLING_GATEWAY_KEY_SECRET"`
	WebhookSecret string `env:"BILLING_GATEWAY_WEBHOOK_SECRET"`
}

// New constructs the provider selected by cfg.Provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "razorpay":
		return NewRazorpayProvider(cfg)
	default:
		return nil, ErrUnknownProvider
	}
}
