package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// RazorpayProvider implements Client on top of the official Razorpay SDK.
// The SDK exposes every resource as map[string]any, so this provider owns all
// of the response shape knowledge and hands typed snapshots to callers.
type RazorpayProvider struct {
	client *razorpay.Client
	cfg    Config
}

// NewRazorpayProvider constructs the provider. Missing credentials surface as
// ErrGatewayUnavailable so a misconfigured deployment fails fast on first use
// instead of quietly degrading paying users to the free tier.
func NewRazorpayProvider(cfg Config) (*RazorpayProvider, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, ErrGatewayUnavailable
	}
	return &RazorpayProvider{
		client: razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		cfg:    cfg,
	}, nil
}

// CreateOrder registers a one-time payment order.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*OrderRef, error) {
	if amountMinor <= 0 {
		return nil, ErrInvalidOrderAmount
	}

	data := map[string]any{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		noteData := make(map[string]any, len(notes))
		for k, v := range notes {
			noteData[k] = v
		}
		data["notes"] = noteData
	}

	body, err := p.client.Order.Create(data, nil)
	if err != nil {
		return nil, errors.Join(ErrGatewayRejected, err)
	}

	id := asString(body, "id")
	if id == "" {
		return nil, ErrMalformedResponse
	}

	return &OrderRef{
		ID:          id,
		AmountMinor: asInt64(body, "amount"),
		Currency:    asString(body, "currency"),
		Receipt:     asString(body, "receipt"),
	}, nil
}

// CreateSubscription resolves the gateway customer and creates a recurring
// subscription against the given provider plan.
func (p *RazorpayProvider) CreateSubscription(ctx context.Context, planRef string, customer CustomerParams, totalCycles int) (*SubscriptionSnapshot, error) {
	if planRef == "" {
		return nil, ErrMissingPlanRef
	}

	customerID, err := p.resolveCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"plan_id":         planRef,
		"customer_id":     customerID,
		"total_count":     totalCycles,
		"customer_notify": 1,
	}

	body, err := p.client.Subscription.Create(data, nil)
	if err != nil {
		return nil, errors.Join(ErrGatewayRejected, err)
	}

	snap := snapshotFromEntity(body)
	if snap.ID == "" {
		return nil, ErrMalformedResponse
	}
	// Creation responses may omit customer_id depending on API version.
	if snap.CustomerID == "" {
		snap.CustomerID = customerID
	}
	return snap, nil
}

// FetchSubscription pulls the current remote state of a subscription.
func (p *RazorpayProvider) FetchSubscription(ctx context.Context, ref string) (*SubscriptionSnapshot, error) {
	if ref == "" {
		return nil, ErrMissingGatewayRef
	}

	body, err := p.client.Subscription.Fetch(ref, nil, nil)
	if err != nil {
		return nil, errors.Join(ErrGatewayRejected, err)
	}

	snap := snapshotFromEntity(body)
	if snap.ID == "" {
		return nil, ErrMalformedResponse
	}
	return snap, nil
}

// CancelSubscription cancels the remote subscription and returns its state
// after cancellation.
func (p *RazorpayProvider) CancelSubscription(ctx context.Context, ref string, atCycleEnd bool) (*SubscriptionSnapshot, error) {
	if ref == "" {
		return nil, ErrMissingGatewayRef
	}

	cycleEnd := 0
	if atCycleEnd {
		cycleEnd = 1
	}

	body, err := p.client.Subscription.Cancel(ref, map[string]any{
		"cancel_at_cycle_end": cycleEnd,
	}, nil)
	if err != nil {
		return nil, errors.Join(ErrGatewayRejected, err)
	}

	snap := snapshotFromEntity(body)
	if snap.ID == "" {
		return nil, ErrMalformedResponse
	}
	return snap, nil
}

// FetchPayment reads a single payment.
func (p *RazorpayProvider) FetchPayment(ctx context.Context, paymentRef string) (*PaymentSnapshot, error) {
	if paymentRef == "" {
		return nil, ErrMissingPaymentRef
	}

	body, err := p.client.Payment.Fetch(paymentRef, nil, nil)
	if err != nil {
		return nil, errors.Join(ErrGatewayRejected, err)
	}

	id := asString(body, "id")
	if id == "" {
		return nil, ErrMalformedResponse
	}

	return &PaymentSnapshot{
		ID:          id,
		OrderRef:    asString(body, "order_id"),
		Status:      asString(body, "status"),
		AmountMinor: asInt64(body, "amount"),
		Currency:    asString(body, "currency"),
		Method:      asString(body, "method"),
		CreatedAt:   asUnixTime(body, "created_at"),
	}, nil
}

// resolveCustomer creates the gateway customer, falling back to a lookup when
// the provider reports the customer already exists. Reusing the customer keeps
// renewals attached to one payment profile instead of multiplying customers.
func (p *RazorpayProvider) resolveCustomer(ctx context.Context, customer CustomerParams) (string, error) {
	body, err := p.client.Customer.Create(map[string]any{
		"name":    customer.Name,
		"email":   customer.Email,
		"contact": customer.Contact,
	}, nil)
	if err == nil {
		if id := asString(body, "id"); id != "" {
			return id, nil
		}
		return "", ErrMalformedResponse
	}

	if !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return "", errors.Join(ErrGatewayRejected, err)
	}

	return p.lookupCustomer(ctx, customer)
}

// lookupCustomer scans the customer list for a matching email or contact.
// The provider has no direct lookup-by-contact endpoint.
func (p *RazorpayProvider) lookupCustomer(ctx context.Context, customer CustomerParams) (string, error) {
	const pageSize = 100

	for skip := 0; skip < 1000; skip += pageSize {
		body, err := p.client.Customer.All(map[string]any{
			"count": pageSize,
			"skip":  skip,
		}, nil)
		if err != nil {
			return "", errors.Join(ErrGatewayRejected, err)
		}

		items, ok := body["items"].([]any)
		if !ok || len(items) == 0 {
			break
		}

		for _, it := range items {
			entity, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if customer.Email != "" && strings.EqualFold(asString(entity, "email"), customer.Email) {
				return asString(entity, "id"), nil
			}
			if customer.Contact != "" && asString(entity, "contact") == customer.Contact {
				return asString(entity, "id"), nil
			}
		}

		if len(items) < pageSize {
			break
		}
	}

	return "", ErrCustomerNotFound
}

// snapshotFromEntity converts a raw subscription entity into a typed snapshot.
// Absent or zero timestamps become nil; different lifecycle stages populate
// different subsets of the date fields.
func snapshotFromEntity(entity map[string]any) *SubscriptionSnapshot {
	return &SubscriptionSnapshot{
		ID:           asString(entity, "id"),
		CustomerID:   asString(entity, "customer_id"),
		PlanRef:      asString(entity, "plan_id"),
		Status:       asString(entity, "status"),
		CurrentStart: asUnixTime(entity, "current_start"),
		CurrentEnd:   asUnixTime(entity, "current_end"),
		NextChargeAt: asUnixTime(entity, "charge_at"),
		CheckoutURL:  asString(entity, "short_url"),
		PaidCycles:   int(asInt64(entity, "paid_count")),
		TotalCycles:  int(asInt64(entity, "total_count")),
	}
}

func asString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// asInt64 tolerates the numeric representations the SDK's JSON decoding can
// produce for the same field.
func asInt64(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func asUnixTime(m map[string]any, key string) *time.Time {
	ts := asInt64(m, key)
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
