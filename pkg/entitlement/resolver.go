package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/crmstack/billing/pkg/billing"
)

// PlanResolver resolves the effective plan ID for a user.
type PlanResolver func(ctx context.Context, userID uuid.UUID) (string, error)

// StorePlanResolver resolves the plan from the billing subscription store.
// Only an active, unexpired record grants its paid tier: pending, past-due
// and canceled subscriptions, lazily expired one-time purchases, and users
// with no record at all resolve to the free plan. Store outages surface as
// errors so a paid user is never silently degraded by infrastructure.
func StorePlanResolver(store billing.Store, now func() time.Time) PlanResolver {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return func(ctx context.Context, userID uuid.UUID) (string, error) {
		sub, err := store.Get(ctx, userID)
		if err != nil {
			if errors.Is(err, billing.ErrSubscriptionNotFound) {
				return string(billing.PlanFree), nil
			}
			return "", err
		}
		if !sub.EntitledAt(now()) {
			return string(billing.PlanFree), nil
		}
		return string(sub.Plan), nil
	}
}

// StaticPlanResolver always resolves to the given plan. Useful in tests and
// single-tenant deployments without billing.
func StaticPlanResolver(planID string) PlanResolver {
	return func(ctx context.Context, userID uuid.UUID) (string, error) {
		return planID, nil
	}
}
