package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OneTimeRefPrefix marks a synthetic gateway reference for a one-time
// purchase, distinguishing it from a true recurring subscription.
const OneTimeRefPrefix = "onetime_"

// OneTimeRef builds the synthetic gateway reference for a one-time payment.
func OneTimeRef(paymentRef string) string {
	return OneTimeRefPrefix + paymentRef
}

// Subscription is the locally persisted, canonical view of a user's billing
// state. One logical record per user; only the reconciliation engine mutates
// it, on webhook delivery or a verified client pull.
type Subscription struct {
	UserID                 uuid.UUID
	Plan                   Plan
	Status                 Status
	GatewaySubscriptionRef string // onetime_<paymentRef> for one-time purchases
	GatewayCustomerRef     string // reused across renewals
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	NextDueDate            *time.Time // nil when the gateway provides no forward-looking date
	CancelAtPeriodEnd      bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// IsOneTime reports whether the record represents a one-time purchase rather
// than a recurring gateway subscription.
func (s *Subscription) IsOneTime() bool {
	return strings.HasPrefix(s.GatewaySubscriptionRef, OneTimeRefPrefix)
}

// ExpiredAt reports lazy expiry: a one-time record stays active in storage
// after its period end (no background job flips it), and readers interpret it
// as expired instead.
func (s *Subscription) ExpiredAt(now time.Time) bool {
	if !s.IsOneTime() || s.CurrentPeriodEnd == nil {
		return false
	}
	return now.After(*s.CurrentPeriodEnd)
}

// EntitledAt reports whether the record grants its plan's entitlements at the
// given instant. Only active records count, and lazily expired one-time
// records do not.
func (s *Subscription) EntitledAt(now time.Time) bool {
	return s.Status == StatusActive && !s.ExpiredAt(now)
}

// CatalogOrder is the lighter-weight record for a non-recurring purchase. It
// feeds entitlement by being translated into a time-boxed active Subscription
// once its payment is confirmed.
type CatalogOrder struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Plan              Plan
	AmountMinor       int64
	Currency          string
	DurationMonths    int
	PaymentStatus     PaymentStatus
	GatewayOrderRef   string
	GatewayPaymentRef string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
