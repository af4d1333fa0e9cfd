package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionUpdate is a targeted field update. Nil fields are left
// unchanged; webhook handlers use it to touch only what the event carries.
type SubscriptionUpdate struct {
	Plan               *Plan
	Status             *Status
	GatewayCustomerRef *string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	NextDueDate        *time.Time
	CancelAtPeriodEnd  *bool
}

// Store persists canonical subscription records.
//
// Persistence failures surface wrapped in ErrStoreUnavailable and are never
// masked as success. The store must provide at least read-committed isolation
// so a supersede delete is visible to the insert that follows it within the
// same logical operation.
type Store interface {
	// Get returns the user's current record, preferring an active row over
	// pending or terminal ones. Returns ErrSubscriptionNotFound if none.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// GetByGatewayRef looks a record up by its gateway reference; webhook
	// payloads identify subscriptions this way, not by internal user id.
	GetByGatewayRef(ctx context.Context, ref string) (*Subscription, error)

	// UpsertByUser writes the user's record keyed by gateway reference,
	// superseding any stale pending rows the user accumulated. Last writer
	// wins on UpdatedAt.
	UpsertByUser(ctx context.Context, sub *Subscription) error

	// UpsertByGatewayRef applies a targeted update to the record with the
	// given gateway reference. Returns ErrSubscriptionNotFound when no such
	// record exists.
	UpsertByGatewayRef(ctx context.Context, ref string, upd SubscriptionUpdate) error

	// SupersedeActive deletes any other active rows for the user, keeping the
	// single-active-row invariant under concurrent activation attempts. An
	// empty exceptGatewayRef removes every active row.
	SupersedeActive(ctx context.Context, userID uuid.UUID, exceptGatewayRef string) error
}

// OrderStore persists one-time catalog orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *CatalogOrder) error

	// GetOrderByGatewayRef returns the order created for a gateway order
	// reference. Returns ErrOrderNotFound if none.
	GetOrderByGatewayRef(ctx context.Context, gatewayOrderRef string) (*CatalogOrder, error)

	// MarkOrderPaid flips the order to paid and records the payment ref.
	MarkOrderPaid(ctx context.Context, gatewayOrderRef, gatewayPaymentRef string) error
}
