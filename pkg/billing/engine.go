package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crmstack/billing/pkg/gateway"
)

// Engine is the reconciliation core. It turns gateway events (webhook push)
// and client-initiated pulls into validated state transitions and writes them
// through the store. All durable state lives in the store; the engine holds
// no mutable state of its own, so concurrent requests only contend at the
// storage layer.
type Engine struct {
	cfg    Config
	gw     gateway.Client
	store  Store
	orders OrderStore
	dedupe Deduper
	mirror ProfileMirror
	log    *slog.Logger
	now    func() time.Time
}

// NewEngine wires the engine. The gateway client may be nil when the provider
// is not configured; billing operations then fail with ErrGatewayUnavailable
// instead of silently treating everyone as free-tier.
func NewEngine(cfg Config, gw gateway.Client, store Store, orders OrderStore, opts ...Option) *Engine {
	if store == nil {
		panic("billing: Store is required")
	}
	if orders == nil {
		panic("billing: OrderStore is required")
	}

	e := &Engine{
		cfg:    cfg,
		gw:     gw,
		store:  store,
		orders: orders,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckoutIntent is what a client needs to complete payment authorization for
// a newly created recurring subscription.
type CheckoutIntent struct {
	SubscriptionRef string
	CustomerRef     string
	Status          Status
	CheckoutURL     string
}

// SyncResult reports the outcome of a client-driven pull. Committed is false
// when the resolved canonical status was not active, in which case no local
// state was touched: a pending, not-yet-paid snapshot must not downgrade or
// fragment an already-active record.
type SyncResult struct {
	Committed     bool
	GatewayStatus string
	Resolved      Status
	Subscription  *Subscription
}

// StartSubscription creates the gateway-side billing object for a paid plan
// and persists a pending local record. The returned intent carries the hosted
// checkout URL the client authorizes payment on.
func (e *Engine) StartSubscription(ctx context.Context, userID uuid.UUID, plan Plan, customer gateway.CustomerParams) (*CheckoutIntent, error) {
	if e.gw == nil {
		return nil, gateway.ErrGatewayUnavailable
	}

	planRef, err := e.cfg.RefByPlan(plan)
	if err != nil {
		return nil, err
	}

	snap, err := e.gw.CreateSubscription(ctx, planRef, customer, e.cfg.SubscriptionCycles)
	if err != nil {
		return nil, err
	}

	now := e.now()
	sub := &Subscription{
		UserID:                 userID,
		Plan:                   plan,
		Status:                 StatusPending,
		GatewaySubscriptionRef: snap.ID,
		GatewayCustomerRef:     snap.CustomerID,
		CurrentPeriodStart:     snap.CurrentStart,
		CurrentPeriodEnd:       snap.CurrentEnd,
		NextDueDate:            nextDueDate(snap.NextChargeAt, snap.CurrentEnd, snap.CurrentStart, nil),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := e.store.UpsertByUser(ctx, sub); err != nil {
		e.log.ErrorContext(ctx, "failed to persist pending subscription",
			"user_id", userID, "gateway_ref", snap.ID, "error", err)
		return nil, err
	}

	return &CheckoutIntent{
		SubscriptionRef: snap.ID,
		CustomerRef:     snap.CustomerID,
		Status:          StatusPending,
		CheckoutURL:     snap.CheckoutURL,
	}, nil
}

// StartOneTimeOrder creates a gateway order for a time-boxed, non-recurring
// purchase and persists a pending catalog order.
func (e *Engine) StartOneTimeOrder(ctx context.Context, userID uuid.UUID, plan Plan, amountMinor int64, currency string, durationMonths int) (*CatalogOrder, error) {
	if e.gw == nil {
		return nil, gateway.ErrGatewayUnavailable
	}
	if _, err := ParsePlan(string(plan)); err != nil || plan == PlanFree {
		return nil, ErrInvalidPlan
	}
	if durationMonths <= 0 {
		durationMonths = 1
	}

	receipt := uuid.NewString()
	ref, err := e.gw.CreateOrder(ctx, amountMinor, currency, receipt, map[string]string{
		"user_id": userID.String(),
		"plan":    string(plan),
	})
	if err != nil {
		return nil, err
	}

	now := e.now()
	order := &CatalogOrder{
		ID:              uuid.New(),
		UserID:          userID,
		Plan:            plan,
		AmountMinor:     ref.AmountMinor,
		Currency:        ref.Currency,
		DurationMonths:  durationMonths,
		PaymentStatus:   PaymentPending,
		GatewayOrderRef: ref.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.orders.CreateOrder(ctx, order); err != nil {
		e.log.ErrorContext(ctx, "failed to persist catalog order",
			"user_id", userID, "gateway_order_ref", ref.ID, "error", err)
		return nil, err
	}
	return order, nil
}

// HandleWebhook applies a gateway push event. The signature is verified
// against the raw, unparsed body first; on failure nothing is parsed and no
// state is mutated. Recognized events run through the transition table;
// unknown events and illegal transitions are logged and ignored so the
// endpoint stays forward-compatible and retry-safe.
func (e *Engine) HandleWebhook(ctx context.Context, rawBody []byte, signature, eventID string) error {
	if !gateway.VerifyWebhookSignature(rawBody, signature, e.cfg.WebhookSecret) {
		return gateway.ErrInvalidSignature
	}

	env, err := parseWebhookEnvelope(rawBody)
	if err != nil {
		return errors.Join(ErrMalformedEvent, err)
	}

	if e.dedupe != nil && eventID != "" {
		seen, err := e.dedupe.Seen(ctx, eventID)
		if err != nil {
			e.log.WarnContext(ctx, "webhook dedupe unavailable, processing anyway",
				"event_id", eventID, "error", err)
		} else if seen {
			e.log.InfoContext(ctx, "skipping duplicate webhook delivery",
				"event_id", eventID, "event", env.Event)
			return nil
		}
	}

	if err := e.applyWebhookEvent(ctx, env); err != nil {
		return err
	}

	// The id is marked only after the transition is durably applied. A failed
	// write above leaves it unmarked so the gateway's retry is reprocessed
	// instead of skipped as a duplicate.
	if e.dedupe != nil && eventID != "" {
		if err := e.dedupe.Mark(ctx, eventID); err != nil {
			e.log.WarnContext(ctx, "failed to mark webhook event as processed",
				"event_id", eventID, "error", err)
		}
	}
	return nil
}

func (e *Engine) applyWebhookEvent(ctx context.Context, env *webhookEnvelope) error {
	kind, ok := EventFromWebhook(env.Event)
	if !ok {
		e.log.InfoContext(ctx, "ignoring unknown webhook event", "event", env.Event)
		return nil
	}

	if kind == EventPaymentFailed {
		// A failed charge is not itself a cancellation signal; the gateway
		// emits halted separately once its retries are exhausted.
		e.log.WarnContext(ctx, "gateway reported failed payment",
			"payment_ref", env.Payload.Payment.Entity.ID,
			"description", env.Payload.Payment.Entity.ErrorDescription)
		return nil
	}

	entity := env.Payload.Subscription.Entity
	if entity.ID == "" {
		e.log.WarnContext(ctx, "webhook event carries no subscription entity", "event", env.Event)
		return nil
	}

	current, err := e.store.GetByGatewayRef(ctx, entity.ID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			e.log.InfoContext(ctx, "webhook for unknown subscription, ignoring",
				"gateway_ref", entity.ID, "event", env.Event)
			return nil
		}
		return err
	}

	next, ok := NextStatus(current.Status, kind)
	if !ok {
		e.log.WarnContext(ctx, "rejecting illegal subscription transition",
			"gateway_ref", entity.ID, "from", current.Status, "event", kind)
		return nil
	}

	upd := SubscriptionUpdate{
		Status:             &next,
		CurrentPeriodStart: unixTime(entity.CurrentStart),
		CurrentPeriodEnd:   unixTime(entity.CurrentEnd),
		NextDueDate: nextDueDate(
			unixTime(entity.ChargeAt),
			unixTime(entity.CurrentEnd),
			unixTime(entity.StartAt),
			current.NextDueDate,
		),
	}
	if entity.CustomerID != "" {
		upd.GatewayCustomerRef = &entity.CustomerID
	}
	// Only set the plan on an exact match; the free-plan fallback belongs to
	// the pull path, a webhook must not downgrade over a missing plan id.
	if plan := e.cfg.PlanByRef(entity.PlanID); plan != PlanFree {
		upd.Plan = &plan
	}

	if next == StatusActive {
		if err := e.store.SupersedeActive(ctx, current.UserID, entity.ID); err != nil {
			return err
		}
	}
	if err := e.store.UpsertByGatewayRef(ctx, entity.ID, upd); err != nil {
		e.log.ErrorContext(ctx, "failed to apply webhook transition",
			"gateway_ref", entity.ID, "event", kind, "error", err)
		return err
	}

	if next == StatusActive {
		e.mirrorPlan(ctx, current.UserID, valueOr(upd.Plan, current.Plan))
	}

	e.log.InfoContext(ctx, "applied webhook transition",
		"gateway_ref", entity.ID, "event", kind, "from", current.Status, "to", next)
	return nil
}

// SyncFromGateway is the client-driven pull: it fetches the live gateway
// snapshot for the caller's subscription and commits it only when the
// resolved canonical status is active. Covers missed or delayed webhooks.
func (e *Engine) SyncFromGateway(ctx context.Context, userID uuid.UUID) (*SyncResult, error) {
	sub, err := e.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	// One-time purchases have no remote object to pull; the stored record is
	// already final and expiry is interpreted at read time.
	if sub.IsOneTime() {
		return &SyncResult{
			Committed:    false,
			Resolved:     sub.Status,
			Subscription: sub,
		}, nil
	}

	return e.reconcilePull(ctx, userID, sub.GatewaySubscriptionRef, sub)
}

// VerifySubscription is the post-checkout pull for recurring flows: the
// client hands back the subscription reference it just authorized and the
// engine pulls and commits the gateway state. Ownership is enforced against
// the stored pending record before any gateway call.
func (e *Engine) VerifySubscription(ctx context.Context, userID uuid.UUID, subscriptionRef string) (*SyncResult, error) {
	prev, err := e.store.GetByGatewayRef(ctx, subscriptionRef)
	switch {
	case err == nil:
		if prev.UserID != userID {
			return nil, ErrNotOwner
		}
	case errors.Is(err, ErrSubscriptionNotFound):
		prev = nil
	default:
		return nil, err
	}

	return e.reconcilePull(ctx, userID, subscriptionRef, prev)
}

func (e *Engine) reconcilePull(ctx context.Context, userID uuid.UUID, ref string, prev *Subscription) (*SyncResult, error) {
	if e.gw == nil {
		return nil, gateway.ErrGatewayUnavailable
	}

	snap, err := e.gw.FetchSubscription(ctx, ref)
	if err != nil {
		return nil, err
	}

	resolved, known := StatusFromGateway(snap.Status)
	if !known {
		e.log.WarnContext(ctx, "gateway returned unknown subscription status",
			"gateway_ref", ref, "status", snap.Status)
	}

	// Non-active snapshots are informational only. Committing a pending or
	// halted snapshot here could prematurely downgrade an active record the
	// webhook channel already wrote.
	if resolved != StatusActive {
		return &SyncResult{
			Committed:     false,
			GatewayStatus: snap.Status,
			Resolved:      resolved,
			Subscription:  prev,
		}, nil
	}

	plan := e.cfg.PlanByRef(snap.PlanRef)
	if plan == PlanFree {
		e.log.WarnContext(ctx, "defaulting unrecognized gateway plan to free",
			"gateway_ref", ref, "gateway_plan", snap.PlanRef, "error", ErrPlanMismatch)
	}

	var prevDue *time.Time
	cancelAtEnd := false
	customerRef := snap.CustomerID
	createdAt := e.now()
	if prev != nil {
		prevDue = prev.NextDueDate
		cancelAtEnd = prev.CancelAtPeriodEnd
		createdAt = prev.CreatedAt
		if customerRef == "" {
			customerRef = prev.GatewayCustomerRef
		}
	}

	if err := e.store.SupersedeActive(ctx, userID, ref); err != nil {
		return nil, err
	}

	now := e.now()
	sub := &Subscription{
		UserID:                 userID,
		Plan:                   plan,
		Status:                 StatusActive,
		GatewaySubscriptionRef: ref,
		GatewayCustomerRef:     customerRef,
		CurrentPeriodStart:     snap.CurrentStart,
		CurrentPeriodEnd:       snap.CurrentEnd,
		NextDueDate:            nextDueDate(snap.NextChargeAt, snap.CurrentEnd, snap.CurrentStart, prevDue),
		CancelAtPeriodEnd:      cancelAtEnd,
		CreatedAt:              createdAt,
		UpdatedAt:              now,
	}
	if err := e.store.UpsertByUser(ctx, sub); err != nil {
		e.log.ErrorContext(ctx, "failed to commit pulled subscription state",
			"user_id", userID, "gateway_ref", ref, "error", err)
		return nil, err
	}

	e.mirrorPlan(ctx, userID, plan)

	return &SyncResult{
		Committed:     true,
		GatewayStatus: snap.Status,
		Resolved:      StatusActive,
		Subscription:  sub,
	}, nil
}

// Cancel cancels the caller's recurring subscription, at cycle end or
// immediately. The gateway call runs first; on gateway failure the error is
// surfaced verbatim and no local mutation occurs.
func (e *Engine) Cancel(ctx context.Context, userID uuid.UUID, gatewayRef string, atCycleEnd bool) (*Subscription, error) {
	// Resolve the row the caller named directly; going through Get would
	// prefer an active row and misreport ownership of a pending sibling.
	sub, err := e.store.GetByGatewayRef(ctx, gatewayRef)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, ErrNotOwner
	}
	if sub.IsOneTime() {
		return nil, ErrNotCancellable
	}
	if e.gw == nil {
		return nil, gateway.ErrGatewayUnavailable
	}

	if _, err := e.gw.CancelSubscription(ctx, gatewayRef, atCycleEnd); err != nil {
		return nil, err
	}

	// At cycle end the subscription stays active until the period lapses; the
	// gateway's cancelled webhook flips it unconditionally later.
	status := StatusCanceled
	if atCycleEnd {
		status = StatusActive
	}
	upd := SubscriptionUpdate{
		Status:            &status,
		CancelAtPeriodEnd: &atCycleEnd,
	}
	if err := e.store.UpsertByGatewayRef(ctx, gatewayRef, upd); err != nil {
		e.log.ErrorContext(ctx, "cancelled on gateway but failed to persist locally",
			"user_id", userID, "gateway_ref", gatewayRef, "error", err)
		return nil, err
	}

	return e.store.GetByGatewayRef(ctx, gatewayRef)
}

// ConfirmOneTimePayment completes a one-time purchase after client-side
// checkout: verifies the payment signature, confirms the payment reached a
// captured or authorized state, then installs a time-boxed active record.
func (e *Engine) ConfirmOneTimePayment(ctx context.Context, userID uuid.UUID, orderRef, paymentRef, signature string) (*Subscription, error) {
	if !gateway.VerifyPaymentSignature(orderRef, paymentRef, signature, e.cfg.PaymentSecret) {
		return nil, gateway.ErrInvalidSignature
	}

	order, err := e.orders.GetOrderByGatewayRef(ctx, orderRef)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOwner
	}
	if e.gw == nil {
		return nil, gateway.ErrGatewayUnavailable
	}

	payment, err := e.gw.FetchPayment(ctx, paymentRef)
	if err != nil {
		return nil, err
	}
	if !payment.PaymentCompleted() {
		return nil, ErrPaymentNotCompleted
	}

	if err := e.store.SupersedeActive(ctx, userID, ""); err != nil {
		return nil, err
	}

	now := e.now()
	end := now.AddDate(0, order.DurationMonths, 0)
	sub := &Subscription{
		UserID:                 userID,
		Plan:                   order.Plan,
		Status:                 StatusActive,
		GatewaySubscriptionRef: OneTimeRef(paymentRef),
		CurrentPeriodStart:     &now,
		CurrentPeriodEnd:       &end,
		NextDueDate:            &end,
		CancelAtPeriodEnd:      true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := e.store.UpsertByUser(ctx, sub); err != nil {
		e.log.ErrorContext(ctx, "failed to persist one-time subscription",
			"user_id", userID, "payment_ref", paymentRef, "error", err)
		return nil, err
	}

	// The subscription row is the source of truth; the order record is
	// bookkeeping, so a failed flip is logged rather than failing the
	// confirmation the user already paid for.
	if err := e.orders.MarkOrderPaid(ctx, orderRef, paymentRef); err != nil {
		e.log.WarnContext(ctx, "failed to mark catalog order paid",
			"gateway_order_ref", orderRef, "error", err)
	}

	e.mirrorPlan(ctx, userID, order.Plan)
	return sub, nil
}

// GetCurrentSubscription is the read-only collaborator for UI and auth
// layers; it never mutates.
func (e *Engine) GetCurrentSubscription(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return e.store.Get(ctx, userID)
}

func (e *Engine) mirrorPlan(ctx context.Context, userID uuid.UUID, plan Plan) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror(ctx, userID, plan); err != nil {
		e.log.WarnContext(ctx, "failed to mirror plan onto user profile",
			"user_id", userID, "plan", plan, "error", err)
	}
}

// nextDueDate resolves the next charge or expiry instant. Different gateway
// lifecycle stages populate different subsets of date fields, hence the
// priority chain: explicit next charge, then current period end, then period
// start plus one calendar month, else whatever was stored before.
func nextDueDate(chargeAt, currentEnd, currentStart, previous *time.Time) *time.Time {
	switch {
	case chargeAt != nil:
		return chargeAt
	case currentEnd != nil:
		return currentEnd
	case currentStart != nil:
		t := currentStart.AddDate(0, 1, 0)
		return &t
	default:
		return previous
	}
}

func unixTime(ts *int64) *time.Time {
	if ts == nil || *ts <= 0 {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}

func valueOr(p *Plan, fallback Plan) Plan {
	if p != nil {
		return *p
	}
	return fallback
}
