package billing

// Config carries the reconciliation engine's trust-boundary secrets and the
// gateway-side plan identifiers for each paid tier.
//
// Plan matching is exact: a gateway plan reference that matches none of the
// configured identifiers resolves to the free plan. Failing safe this way
// never silently upgrades anyone, and never blocks an otherwise-successful
// payment confirmation.
type Config struct {
	// WebhookSecret keys the HMAC over raw webhook bodies.
	WebhookSecret string `env:"BILLING_GATEWAY_WEBHOOK_SECRET"`
	// PaymentSecret keys the checkout payment signature (orderRef|paymentRef).
	PaymentSecret string `env:"BILLING_GATEWAY_KEY_SECRET"`

	PlanRefStarter  string `env:"BILLING_PLAN_REF_STARTER"`
	PlanRefPro      string `env:"BILLING_PLAN_REF_PRO"`
	PlanRefBusiness string `env:"BILLING_PLAN_REF_BUSINESS"`

	// SubscriptionCycles is the total charge count requested for new
	// recurring subscriptions (the gateway requires a finite cycle count).
	SubscriptionCycles int `env:"BILLING_SUBSCRIPTION_CYCLES" envDefault:"120"`
}

// PlanByRef maps a gateway plan identifier back to the internal plan enum.
func (c Config) PlanByRef(ref string) Plan {
	switch {
	case ref != "" && ref == c.PlanRefStarter:
		return PlanStarter
	case ref != "" && ref == c.PlanRefPro:
		return PlanPro
	case ref != "" && ref == c.PlanRefBusiness:
		return PlanBusiness
	default:
		return PlanFree
	}
}

// RefByPlan returns the configured gateway plan identifier for a paid tier.
func (c Config) RefByPlan(plan Plan) (string, error) {
	var ref string
	switch plan {
	case PlanStarter:
		ref = c.PlanRefStarter
	case PlanPro:
		ref = c.PlanRefPro
	case PlanBusiness:
		ref = c.PlanRefBusiness
	default:
		return "", ErrInvalidPlan
	}
	if ref == "" {
		return "", ErrPlanMismatch
	}
	return ref, nil
}
