package entitlement

import "errors"

// Domain errors for entitlement operations
var (
	ErrPlanNotFound             = errors.New("entitlement.errors.plan_not_found")
	ErrInvalidPlanConfiguration = errors.New("entitlement.errors.invalid_plan_configuration")

	ErrLimitExceeded        = errors.New("entitlement.errors.limit_exceeded")
	ErrInvalidResource      = errors.New("entitlement.errors.invalid_resource")
	ErrNoCounterRegistered  = errors.New("entitlement.errors.no_counter_registered")
	ErrDowngradeNotPossible = errors.New("entitlement.errors.downgrade_not_possible")

	ErrFailedToLoadPlans          = errors.New("entitlement.errors.failed_to_load_plans")
	ErrFailedToCountResourceUsage = errors.New("entitlement.errors.failed_to_count_resource_usage")
)
