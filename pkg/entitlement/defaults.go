package entitlement

import "github.com/crmstack/billing/pkg/billing"

// DefaultPlans returns the compiled-in plan catalog. One entry per billing
// tier; a YAML catalog loaded via NewFileSource replaces this wholesale.
func DefaultPlans() map[string]Entitlements {
	return map[string]Entitlements{
		string(billing.PlanFree): {
			ID:   string(billing.PlanFree),
			Name: "Free",
			Limits: map[Resource]int64{
				ResourceCustomers:   25,
				ResourceInvoices:    10,
				ResourceProducts:    0,
				ResourceTeamMembers: 1,
			},
			Features: []Feature{},
		},
		string(billing.PlanStarter): {
			ID:   string(billing.PlanStarter),
			Name: "Starter",
			Limits: map[Resource]int64{
				ResourceCustomers:   500,
				ResourceInvoices:    100,
				ResourceProducts:    50,
				ResourceTeamMembers: 3,
			},
			Features: []Feature{FeatureProductCatalog},
		},
		string(billing.PlanPro): {
			ID:   string(billing.PlanPro),
			Name: "Pro",
			Limits: map[Resource]int64{
				ResourceCustomers:   5000,
				ResourceInvoices:    1000,
				ResourceProducts:    500,
				ResourceTeamMembers: 10,
			},
			Features: []Feature{FeatureProductCatalog, FeatureBulkExport, FeatureAPIAccess, FeaturePrioritySupport},
		},
		string(billing.PlanBusiness): {
			ID:   string(billing.PlanBusiness),
			Name: "Business",
			Limits: map[Resource]int64{
				ResourceCustomers:   Unlimited,
				ResourceInvoices:    Unlimited,
				ResourceProducts:    Unlimited,
				ResourceTeamMembers: Unlimited,
			},
			Features: []Feature{FeatureProductCatalog, FeatureBulkExport, FeatureAPIAccess, FeaturePrioritySupport},
		},
	}
}
