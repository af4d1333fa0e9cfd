package entitlement

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"

	"github.com/crmstack/billing/pkg/billing"
)

// Service defines the public interface for plan entitlement checks.
type Service interface {
	// CanCreate checks if a user can create a new resource instance.
	CanCreate(ctx context.Context, userID uuid.UUID, res Resource) error

	// GetUsage returns the current usage and limit for a resource.
	GetUsage(ctx context.Context, userID uuid.UUID, res Resource) (used, limit int64, err error)

	// GetUsageSafe is a convenience wrapper for UI dashboards. It returns zero values if usage cannot be obtained.
	GetUsageSafe(ctx context.Context, userID uuid.UUID, res Resource) (used, limit int64)

	// HasFeature reports whether a feature is available on the user's plan.
	// Fails closed: resolution errors read as "not available".
	HasFeature(ctx context.Context, userID uuid.UUID, feature Feature) bool

	// GetUsagePercentage returns usage as percentage (0-100, or -1 for unlimited).
	GetUsagePercentage(ctx context.Context, userID uuid.UUID, res Resource) int

	// GetAllUsage returns all resource usage for a user's workspace.
	GetAllUsage(ctx context.Context, userID uuid.UUID) (map[Resource]UsageInfo, error)

	// CanDowngrade checks if a downgrade is possible given current usage.
	CanDowngrade(ctx context.Context, userID uuid.UUID, targetPlanID string) error

	// LimitsFor returns the entitlements of a plan by ID, for plan listings.
	LimitsFor(planID string) (Entitlements, error)

	// Plans returns the full catalog, for the public plan listing.
	Plans() map[string]Entitlements
}

type service struct {
	// Treated as immutable after initialization; thread-safety depends on
	// no runtime modification.
	plans    map[string]Entitlements
	counters CounterRegistry
	resolver PlanResolver
}

// NewService loads the plan catalog from src and wires the entitlement
// checks. A nil resolver defaults every user to the free plan.
func NewService(ctx context.Context, src Source, counters CounterRegistry, resolver PlanResolver) (Service, error) {
	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if plans == nil {
		plans = make(map[string]Entitlements)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	if counters == nil {
		counters = NewRegistry()
	}
	if resolver == nil {
		resolver = StaticPlanResolver(string(billing.PlanFree))
	}

	return &service{
		plans:    plans,
		counters: counters,
		resolver: resolver,
	}, nil
}

func (s *service) CanCreate(ctx context.Context, userID uuid.UUID, res Resource) error {
	plan, err := s.planFor(ctx, userID)
	if err != nil {
		return err
	}

	limit, exists := plan.Limits[res]
	if !exists {
		return ErrInvalidResource
	}
	if limit == Unlimited {
		return nil
	}

	counter, exists := s.counters[res]
	if !exists {
		return ErrNoCounterRegistered
	}

	current, err := counter(ctx, userID)
	if err != nil {
		return errors.Join(ErrFailedToCountResourceUsage, err)
	}
	if current >= limit {
		return ErrLimitExceeded
	}
	return nil
}

func (s *service) GetUsage(ctx context.Context, userID uuid.UUID, res Resource) (used, limit int64, err error) {
	plan, err := s.planFor(ctx, userID)
	if err != nil {
		return 0, 0, err
	}

	resourceLimit, exists := plan.Limits[res]
	if !exists {
		return 0, 0, ErrInvalidResource
	}

	counter, exists := s.counters[res]
	if !exists {
		return 0, 0, ErrNoCounterRegistered
	}

	current, err := counter(ctx, userID)
	if err != nil {
		return 0, 0, errors.Join(ErrFailedToCountResourceUsage, err)
	}
	return current, resourceLimit, nil
}

func (s *service) GetUsageSafe(ctx context.Context, userID uuid.UUID, res Resource) (used, limit int64) {
	used, limit, _ = s.GetUsage(ctx, userID, res)
	return used, limit
}

func (s *service) HasFeature(ctx context.Context, userID uuid.UUID, feature Feature) bool {
	plan, err := s.planFor(ctx, userID)
	if err != nil {
		return false
	}
	return slices.Contains(plan.Features, feature)
}

func (s *service) GetUsagePercentage(ctx context.Context, userID uuid.UUID, res Resource) int {
	used, limit, err := s.GetUsage(ctx, userID, res)
	if err != nil {
		return 0
	}
	if limit == Unlimited {
		return -1
	}
	if limit == 0 {
		return 100
	}
	return min(int((used*100)/limit), 100)
}

func (s *service) GetAllUsage(ctx context.Context, userID uuid.UUID) (map[Resource]UsageInfo, error) {
	plan, err := s.planFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := make(map[Resource]UsageInfo, len(plan.Limits))
	for resource, limit := range plan.Limits {
		usage := UsageInfo{Limit: limit}
		// Counter errors leave usage at 0 rather than failing the dashboard.
		if counter, exists := s.counters[resource]; exists {
			if current, err := counter(ctx, userID); err == nil {
				usage.Current = current
			}
		}
		result[resource] = usage
	}
	return result, nil
}

func (s *service) CanDowngrade(ctx context.Context, userID uuid.UUID, targetPlanID string) error {
	targetPlan, exists := s.plans[targetPlanID]
	if !exists {
		return ErrPlanNotFound
	}

	currentPlan, err := s.planFor(ctx, userID)
	if err != nil {
		return err
	}

	for resource, targetLimit := range targetPlan.Limits {
		if targetLimit == Unlimited {
			continue
		}
		currentLimit, hasResource := currentPlan.Limits[resource]
		if !hasResource {
			continue
		}
		if currentLimit == Unlimited || currentLimit > targetLimit {
			counter, exists := s.counters[resource]
			if !exists {
				// No counter means usage cannot be verified, so allow it.
				continue
			}
			currentUsage, err := counter(ctx, userID)
			if err != nil {
				return errors.Join(ErrFailedToCountResourceUsage, err)
			}
			if currentUsage > targetLimit {
				return ErrDowngradeNotPossible
			}
		}
	}
	return nil
}

func (s *service) LimitsFor(planID string) (Entitlements, error) {
	plan, exists := s.plans[planID]
	if !exists {
		return Entitlements{}, ErrPlanNotFound
	}
	return plan, nil
}

func (s *service) Plans() map[string]Entitlements {
	return clonePlans(s.plans)
}

func (s *service) planFor(ctx context.Context, userID uuid.UUID) (Entitlements, error) {
	planID, err := s.resolver(ctx, userID)
	if err != nil {
		return Entitlements{}, err
	}
	plan, exists := s.plans[planID]
	if !exists {
		return Entitlements{}, ErrPlanNotFound
	}
	return plan, nil
}

func validatePlans(plans map[string]Entitlements) error {
	for planID, plan := range plans {
		for res, limit := range plan.Limits {
			if limit < Unlimited {
				return errors.Join(ErrInvalidPlanConfiguration,
					errors.New("plan "+planID+" has invalid limit for "+string(res)))
			}
		}
	}
	return nil
}
