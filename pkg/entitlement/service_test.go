package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmstack/billing/pkg/billing"
	"github.com/crmstack/billing/pkg/entitlement"
)

func newTestService(t *testing.T, counters entitlement.CounterRegistry, resolver entitlement.PlanResolver) entitlement.Service {
	t.Helper()
	svc, err := entitlement.NewService(context.Background(),
		entitlement.NewInMemSource(entitlement.DefaultPlans()), counters, resolver)
	require.NoError(t, err)
	return svc
}

func staticCounter(n int64) entitlement.CounterFunc {
	return func(ctx context.Context, userID uuid.UUID) (int64, error) {
		return n, nil
	}
}

func TestCanCreate(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("under limit", func(t *testing.T) {
		t.Parallel()
		counters := entitlement.NewRegistry()
		counters.Register(entitlement.ResourceCustomers, staticCounter(10))
		svc := newTestService(t, counters, entitlement.StaticPlanResolver("free"))

		assert.NoError(t, svc.CanCreate(context.Background(), userID, entitlement.ResourceCustomers))
	})

	t.Run("at limit", func(t *testing.T) {
		t.Parallel()
		counters := entitlement.NewRegistry()
		counters.Register(entitlement.ResourceCustomers, staticCounter(25))
		svc := newTestService(t, counters, entitlement.StaticPlanResolver("free"))

		err := svc.CanCreate(context.Background(), userID, entitlement.ResourceCustomers)
		assert.ErrorIs(t, err, entitlement.ErrLimitExceeded)
	})

	t.Run("zero limit blocks the first create", func(t *testing.T) {
		t.Parallel()
		counters := entitlement.NewRegistry()
		counters.Register(entitlement.ResourceProducts, staticCounter(0))
		svc := newTestService(t, counters, entitlement.StaticPlanResolver("free"))

		err := svc.CanCreate(context.Background(), userID, entitlement.ResourceProducts)
		assert.ErrorIs(t, err, entitlement.ErrLimitExceeded)
	})

	t.Run("unlimited skips the counter entirely", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, nil, entitlement.StaticPlanResolver("business"))

		assert.NoError(t, svc.CanCreate(context.Background(), userID, entitlement.ResourceCustomers))
	})

	t.Run("missing counter", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, nil, entitlement.StaticPlanResolver("free"))

		err := svc.CanCreate(context.Background(), userID, entitlement.ResourceCustomers)
		assert.ErrorIs(t, err, entitlement.ErrNoCounterRegistered)
	})

	t.Run("unknown resource", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, nil, entitlement.StaticPlanResolver("free"))

		err := svc.CanCreate(context.Background(), userID, entitlement.Resource("widgets"))
		assert.ErrorIs(t, err, entitlement.ErrInvalidResource)
	})

	t.Run("counter failure", func(t *testing.T) {
		t.Parallel()
		counters := entitlement.NewRegistry()
		counters.Register(entitlement.ResourceCustomers, func(ctx context.Context, userID uuid.UUID) (int64, error) {
			return 0, errors.New("db down")
		})
		svc := newTestService(t, counters, entitlement.StaticPlanResolver("free"))

		err := svc.CanCreate(context.Background(), userID, entitlement.ResourceCustomers)
		assert.ErrorIs(t, err, entitlement.ErrFailedToCountResourceUsage)
	})
}

func TestHasFeature(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("gated by tier", func(t *testing.T) {
		t.Parallel()
		free := newTestService(t, nil, entitlement.StaticPlanResolver("free"))
		starter := newTestService(t, nil, entitlement.StaticPlanResolver("starter"))
		pro := newTestService(t, nil, entitlement.StaticPlanResolver("pro"))

		assert.False(t, free.HasFeature(context.Background(), userID, entitlement.FeatureProductCatalog))
		assert.True(t, starter.HasFeature(context.Background(), userID, entitlement.FeatureProductCatalog))
		assert.False(t, starter.HasFeature(context.Background(), userID, entitlement.FeatureAPIAccess))
		assert.True(t, pro.HasFeature(context.Background(), userID, entitlement.FeatureAPIAccess))
	})

	t.Run("priority support starts at pro", func(t *testing.T) {
		t.Parallel()
		starter := newTestService(t, nil, entitlement.StaticPlanResolver("starter"))
		pro := newTestService(t, nil, entitlement.StaticPlanResolver("pro"))
		business := newTestService(t, nil, entitlement.StaticPlanResolver("business"))

		assert.False(t, starter.HasFeature(context.Background(), userID, entitlement.FeaturePrioritySupport))
		assert.True(t, pro.HasFeature(context.Background(), userID, entitlement.FeaturePrioritySupport))
		assert.True(t, business.HasFeature(context.Background(), userID, entitlement.FeaturePrioritySupport))
	})

	t.Run("fails closed on resolver error", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, nil, func(ctx context.Context, userID uuid.UUID) (string, error) {
			return "", errors.New("store down")
		})

		assert.False(t, svc.HasFeature(context.Background(), userID, entitlement.FeatureBulkExport))
	})
}

func TestGetUsagePercentage(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	counters := entitlement.NewRegistry()
	counters.Register(entitlement.ResourceInvoices, staticCounter(5))
	svc := newTestService(t, counters, entitlement.StaticPlanResolver("free"))

	assert.Equal(t, 50, svc.GetUsagePercentage(context.Background(), userID, entitlement.ResourceInvoices))

	unlimited := newTestService(t, counters, entitlement.StaticPlanResolver("business"))
	assert.Equal(t, -1, unlimited.GetUsagePercentage(context.Background(), userID, entitlement.ResourceInvoices))
}

func TestCanDowngrade(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("usage fits the target plan", func(t *testing.T) {
		t.Parallel()
		counters := entitlement.NewRegistry()
		counters.Register(entitlement.ResourceCustomers, staticCounter(20))
		counters.Register(entitlement.ResourceInvoices, staticCounter(5))
		counters.Register(entitlement.ResourceProducts, staticCounter(0))
		counters.Register(entitlement.ResourceTeamMembers, staticCounter(1))
		svc := newTestService(t, counters, entitlement.StaticPlanResolver("pro"))

		assert.NoError(t, svc.CanDowngrade(context.Background(), userID, "free"))
	})

	t.Run("usage exceeds the target plan", func(t *testing.T) {
		t.Parallel()
		counters := entitlement.NewRegistry()
		counters.Register(entitlement.ResourceCustomers, staticCounter(600))
		svc := newTestService(t, counters, entitlement.StaticPlanResolver("pro"))

		err := svc.CanDowngrade(context.Background(), userID, "starter")
		assert.ErrorIs(t, err, entitlement.ErrDowngradeNotPossible)
	})

	t.Run("unknown target plan", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t, nil, entitlement.StaticPlanResolver("pro"))

		err := svc.CanDowngrade(context.Background(), userID, "platinum")
		assert.ErrorIs(t, err, entitlement.ErrPlanNotFound)
	})
}

func TestStorePlanResolver(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	ctx := context.Background()

	seed := func(t *testing.T, sub *billing.Subscription) *billing.MemoryStore {
		t.Helper()
		store := billing.NewMemoryStore()
		if sub != nil {
			now := time.Now().UTC()
			sub.CreatedAt = now
			sub.UpdatedAt = now
			require.NoError(t, store.UpsertByUser(ctx, sub))
		}
		return store
	}

	t.Run("no record resolves to free", func(t *testing.T) {
		t.Parallel()
		resolver := entitlement.StorePlanResolver(seed(t, nil), nil)
		plan, err := resolver(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "free", plan)
	})

	t.Run("active subscription grants its tier", func(t *testing.T) {
		t.Parallel()
		resolver := entitlement.StorePlanResolver(seed(t, &billing.Subscription{
			UserID:                 userID,
			Plan:                   billing.PlanPro,
			Status:                 billing.StatusActive,
			GatewaySubscriptionRef: "sub_ent_1",
		}), nil)
		plan, err := resolver(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "pro", plan)
	})

	t.Run("pending and past due resolve to free", func(t *testing.T) {
		t.Parallel()
		for _, status := range []billing.Status{billing.StatusPending, billing.StatusPastDue, billing.StatusCanceled} {
			resolver := entitlement.StorePlanResolver(seed(t, &billing.Subscription{
				UserID:                 userID,
				Plan:                   billing.PlanPro,
				Status:                 status,
				GatewaySubscriptionRef: "sub_ent_2",
			}), nil)
			plan, err := resolver(ctx, userID)
			require.NoError(t, err)
			assert.Equal(t, "free", plan, "status %s", status)
		}
	})

	t.Run("expired one-time purchase resolves to free lazily", func(t *testing.T) {
		t.Parallel()
		end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		store := seed(t, &billing.Subscription{
			UserID:                 userID,
			Plan:                   billing.PlanStarter,
			Status:                 billing.StatusActive,
			GatewaySubscriptionRef: billing.OneTimeRef("pay_ent"),
			CurrentPeriodEnd:       &end,
		})

		before := entitlement.StorePlanResolver(store, func() time.Time { return end.Add(-time.Hour) })
		plan, err := before(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "starter", plan)

		after := entitlement.StorePlanResolver(store, func() time.Time { return end.Add(time.Hour) })
		plan, err = after(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, "free", plan)
	})

	t.Run("store outage surfaces as an error", func(t *testing.T) {
		t.Parallel()
		resolver := entitlement.StorePlanResolver(failingStore{}, nil)
		_, err := resolver(ctx, userID)
		assert.ErrorIs(t, err, billing.ErrStoreUnavailable)
	})
}

// failingStore simulates a storage outage for resolver tests.
type failingStore struct{}

func (failingStore) Get(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	return nil, billing.ErrStoreUnavailable
}

func (failingStore) GetByGatewayRef(ctx context.Context, ref string) (*billing.Subscription, error) {
	return nil, billing.ErrStoreUnavailable
}

func (failingStore) UpsertByUser(ctx context.Context, sub *billing.Subscription) error {
	return billing.ErrStoreUnavailable
}

func (failingStore) UpsertByGatewayRef(ctx context.Context, ref string, upd billing.SubscriptionUpdate) error {
	return billing.ErrStoreUnavailable
}

func (failingStore) SupersedeActive(ctx context.Context, userID uuid.UUID, exceptGatewayRef string) error {
	return billing.ErrStoreUnavailable
}
