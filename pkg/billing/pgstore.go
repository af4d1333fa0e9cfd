package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store and OrderStore on a pgx connection pool.
// Read-committed (the postgres default) is enough for the supersede-then-
// insert sequence the engine performs.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const subscriptionColumns = `user_id, plan, status, gateway_subscription_ref, gateway_customer_ref,
	current_period_start, current_period_end, next_due_date, cancel_at_period_end, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions
		WHERE user_id = $1
		ORDER BY (status = 'active') DESC, updated_at DESC
		LIMIT 1`, subscriptionColumns)

	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return sub, nil
}

func (s *PostgresStore) GetByGatewayRef(ctx context.Context, ref string) (*Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE gateway_subscription_ref = $1`, subscriptionColumns)

	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return sub, nil
}

func (s *PostgresStore) UpsertByUser(ctx context.Context, sub *Subscription) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Stale pending rows for the user are superseded by the new write.
	if _, err := tx.Exec(ctx,
		`DELETE FROM subscriptions
		 WHERE user_id = $1 AND status = 'pending' AND gateway_subscription_ref <> $2`,
		sub.UserID, sub.GatewaySubscriptionRef,
	); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO subscriptions (user_id, plan, status, gateway_subscription_ref, gateway_customer_ref,
			current_period_start, current_period_end, next_due_date, cancel_at_period_end, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (gateway_subscription_ref) DO UPDATE SET
			user_id              = EXCLUDED.user_id,
			plan                 = EXCLUDED.plan,
			status               = EXCLUDED.status,
			gateway_customer_ref = EXCLUDED.gateway_customer_ref,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end   = EXCLUDED.current_period_end,
			next_due_date        = EXCLUDED.next_due_date,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at           = EXCLUDED.updated_at`,
		sub.UserID, string(sub.Plan), string(sub.Status), sub.GatewaySubscriptionRef, sub.GatewayCustomerRef,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.NextDueDate, sub.CancelAtPeriodEnd,
		sub.CreatedAt, sub.UpdatedAt,
	); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) UpsertByGatewayRef(ctx context.Context, ref string, upd SubscriptionUpdate) error {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Plan != nil {
		add("plan", string(*upd.Plan))
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.GatewayCustomerRef != nil {
		add("gateway_customer_ref", *upd.GatewayCustomerRef)
	}
	if upd.CurrentPeriodStart != nil {
		add("current_period_start", *upd.CurrentPeriodStart)
	}
	if upd.CurrentPeriodEnd != nil {
		add("current_period_end", *upd.CurrentPeriodEnd)
	}
	if upd.NextDueDate != nil {
		add("next_due_date", *upd.NextDueDate)
	}
	if upd.CancelAtPeriodEnd != nil {
		add("cancel_at_period_end", *upd.CancelAtPeriodEnd)
	}

	args = append(args, ref)
	query := fmt.Sprintf("UPDATE subscriptions SET %s WHERE gateway_subscription_ref = $%d",
		strings.Join(sets, ", "), len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PostgresStore) SupersedeActive(ctx context.Context, userID uuid.UUID, exceptGatewayRef string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM subscriptions
		 WHERE user_id = $1 AND status = 'active' AND gateway_subscription_ref <> $2`,
		userID, exceptGatewayRef,
	); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) CreateOrder(ctx context.Context, order *CatalogOrder) error {
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO catalog_orders (id, user_id, plan, amount_minor, currency, duration_months,
			payment_status, gateway_order_ref, gateway_payment_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		order.ID, order.UserID, string(order.Plan), order.AmountMinor, order.Currency, order.DurationMonths,
		string(order.PaymentStatus), order.GatewayOrderRef, order.GatewayPaymentRef,
		order.CreatedAt, order.UpdatedAt,
	); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) GetOrderByGatewayRef(ctx context.Context, gatewayOrderRef string) (*CatalogOrder, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, plan, amount_minor, currency, duration_months,
			payment_status, gateway_order_ref, gateway_payment_ref, created_at, updated_at
		 FROM catalog_orders WHERE gateway_order_ref = $1`, gatewayOrderRef)

	var (
		order         CatalogOrder
		plan          string
		paymentStatus string
	)
	if err := row.Scan(
		&order.ID, &order.UserID, &plan, &order.AmountMinor, &order.Currency, &order.DurationMonths,
		&paymentStatus, &order.GatewayOrderRef, &order.GatewayPaymentRef, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	order.Plan = Plan(plan)
	order.PaymentStatus = PaymentStatus(paymentStatus)
	return &order, nil
}

func (s *PostgresStore) MarkOrderPaid(ctx context.Context, gatewayOrderRef, gatewayPaymentRef string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE catalog_orders
		 SET payment_status = 'paid', gateway_payment_ref = $2, updated_at = $3
		 WHERE gateway_order_ref = $1`,
		gatewayOrderRef, gatewayPaymentRef, time.Now().UTC(),
	)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub    Subscription
		plan   string
		status string
	)
	if err := row.Scan(
		&sub.UserID, &plan, &status, &sub.GatewaySubscriptionRef, &sub.GatewayCustomerRef,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.NextDueDate, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Plan = Plan(plan)
	sub.Status = Status(status)
	return &sub, nil
}
