package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store and OrderStore for tests and local
// development. Records are copied on the way in and out so callers cannot
// mutate the store's state behind its back.
type MemoryStore struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription // keyed by gateway subscription ref
	orders map[string]*CatalogOrder // keyed by gateway order ref
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:   make(map[string]*Subscription),
		orders: make(map[string]*CatalogOrder),
	}
}

func (m *MemoryStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Subscription
	for _, sub := range m.subs {
		if sub.UserID != userID {
			continue
		}
		if best == nil || better(sub, best) {
			best = sub
		}
	}
	if best == nil {
		return nil, ErrSubscriptionNotFound
	}
	return copySub(best), nil
}

// better prefers an active row over any other, then the most recently
// reconciled one.
func better(candidate, current *Subscription) bool {
	candActive := candidate.Status == StatusActive
	currActive := current.Status == StatusActive
	if candActive != currActive {
		return candActive
	}
	return candidate.UpdatedAt.After(current.UpdatedAt)
}

func (m *MemoryStore) GetByGatewayRef(ctx context.Context, ref string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, ok := m.subs[ref]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return copySub(sub), nil
}

func (m *MemoryStore) UpsertByUser(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stale pending rows for the same user are superseded by the new write.
	for ref, existing := range m.subs {
		if existing.UserID == sub.UserID && existing.Status == StatusPending && ref != sub.GatewaySubscriptionRef {
			delete(m.subs, ref)
		}
	}

	m.subs[sub.GatewaySubscriptionRef] = copySub(sub)
	return nil
}

func (m *MemoryStore) UpsertByGatewayRef(ctx context.Context, ref string, upd SubscriptionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subs[ref]
	if !ok {
		return ErrSubscriptionNotFound
	}

	if upd.Plan != nil {
		sub.Plan = *upd.Plan
	}
	if upd.Status != nil {
		sub.Status = *upd.Status
	}
	if upd.GatewayCustomerRef != nil {
		sub.GatewayCustomerRef = *upd.GatewayCustomerRef
	}
	if upd.CurrentPeriodStart != nil {
		sub.CurrentPeriodStart = copyTime(upd.CurrentPeriodStart)
	}
	if upd.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = copyTime(upd.CurrentPeriodEnd)
	}
	if upd.NextDueDate != nil {
		sub.NextDueDate = copyTime(upd.NextDueDate)
	}
	if upd.CancelAtPeriodEnd != nil {
		sub.CancelAtPeriodEnd = *upd.CancelAtPeriodEnd
	}
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) SupersedeActive(ctx context.Context, userID uuid.UUID, exceptGatewayRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ref, sub := range m.subs {
		if sub.UserID == userID && sub.Status == StatusActive && ref != exceptGatewayRef {
			delete(m.subs, ref)
		}
	}
	return nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, order *CatalogOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.GatewayOrderRef] = copyOrder(order)
	return nil
}

func (m *MemoryStore) GetOrderByGatewayRef(ctx context.Context, gatewayOrderRef string) (*CatalogOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[gatewayOrderRef]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (m *MemoryStore) MarkOrderPaid(ctx context.Context, gatewayOrderRef, gatewayPaymentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[gatewayOrderRef]
	if !ok {
		return ErrOrderNotFound
	}
	order.PaymentStatus = PaymentPaid
	order.GatewayPaymentRef = gatewayPaymentRef
	order.UpdatedAt = time.Now().UTC()
	return nil
}

// ActiveCount reports the number of active rows for a user. Test helper for
// asserting the single-active-row invariant.
func (m *MemoryStore) ActiveCount(userID uuid.UUID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, sub := range m.subs {
		if sub.UserID == userID && sub.Status == StatusActive {
			n++
		}
	}
	return n
}

func copySub(s *Subscription) *Subscription {
	c := *s
	c.CurrentPeriodStart = copyTime(s.CurrentPeriodStart)
	c.CurrentPeriodEnd = copyTime(s.CurrentPeriodEnd)
	c.NextDueDate = copyTime(s.NextDueDate)
	return &c
}

func copyOrder(o *CatalogOrder) *CatalogOrder {
	c := *o
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
