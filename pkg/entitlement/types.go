package entitlement

// Resource represents a countable workspace resource type.
type Resource string

// Resources quota-limited per plan.
const (
	ResourceCustomers   Resource = "customers"
	ResourceInvoices    Resource = "invoices"
	ResourceProducts    Resource = "products"
	ResourceTeamMembers Resource = "team_members"
)

// Unlimited represents a resource with no limit (-1)
const Unlimited int64 = -1

// Feature is a plan-gated capability flag.
type Feature string

// Features gated by plan tier.
const (
	FeatureProductCatalog  Feature = "product_catalog"
	FeatureBulkExport      Feature = "bulk_export"
	FeatureAPIAccess       Feature = "api_access"
	FeaturePrioritySupport Feature = "priority_support"
)

// Entitlements describes one plan tier's resource limits and features.
type Entitlements struct {
	ID       string             `yaml:"id"`
	Name     string             `yaml:"name"`
	Limits   map[Resource]int64 `yaml:"limits"`
	Features []Feature          `yaml:"features"`
}

// UsageInfo contains the current usage and limit for a resource.
type UsageInfo struct {
	Current int64 `json:"current"`
	Limit   int64 `json:"limit"`
}
