// Package entitlement enforces plan-based resource quotas and feature flags
// for CRM workspaces. It answers "can this user create another customer
// record" and "does this plan include bulk export" against the billing
// state the reconciliation engine maintains.
//
// Key concepts:
//
//   - Entitlements: per-plan resource limits and feature flags
//   - Resource: countable entities like customers, invoices, team members
//   - Feature: plan-gated capabilities like API access
//   - CounterFunc: functions that count current resource usage
//
// Plans are loaded once at startup from a Source (the compiled-in defaults,
// or a YAML catalog for per-deployment overrides). The effective plan for a
// user is resolved per call, normally from the billing subscription store:
// only an active, unexpired subscription grants its paid tier, everything
// else falls back to free.
//
// Basic usage:
//
//	source := entitlement.NewInMemSource(entitlement.DefaultPlans())
//	counters := entitlement.NewRegistry()
//	counters.Register(entitlement.ResourceCustomers, customerCounter)
//
//	svc, err := entitlement.NewService(ctx, source, counters,
//	    entitlement.StorePlanResolver(store, nil))
//
//	if err := svc.CanCreate(ctx, userID, entitlement.ResourceCustomers); err != nil {
//	    // quota exhausted
//	}
package entitlement
