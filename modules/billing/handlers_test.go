package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	module "github.com/crmstack/billing/modules/billing"
	"github.com/crmstack/billing/pkg/billing"
	"github.com/crmstack/billing/pkg/entitlement"
	"github.com/crmstack/billing/pkg/gateway"
)

const (
	testWebhookSecret = "whsec_mod"
	testPaymentSecret = "keysec_mod"
)

type fakeGateway struct {
	createSubFn func(ctx context.Context, planRef string, customer gateway.CustomerParams, totalCycles int) (*gateway.SubscriptionSnapshot, error)
	fetchSubFn  func(ctx context.Context, ref string) (*gateway.SubscriptionSnapshot, error)
	cancelSubFn func(ctx context.Context, ref string, atCycleEnd bool) (*gateway.SubscriptionSnapshot, error)
	fetchPayFn  func(ctx context.Context, paymentRef string) (*gateway.PaymentSnapshot, error)
}

func (f *fakeGateway) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*gateway.OrderRef, error) {
	return &gateway.OrderRef{ID: "order_mod", AmountMinor: amountMinor, Currency: currency, Receipt: receipt}, nil
}

func (f *fakeGateway) CreateSubscription(ctx context.Context, planRef string, customer gateway.CustomerParams, totalCycles int) (*gateway.SubscriptionSnapshot, error) {
	if f.createSubFn == nil {
		return nil, errors.New("unexpected CreateSubscription call")
	}
	return f.createSubFn(ctx, planRef, customer, totalCycles)
}

func (f *fakeGateway) FetchSubscription(ctx context.Context, ref string) (*gateway.SubscriptionSnapshot, error) {
	if f.fetchSubFn == nil {
		return nil, errors.New("unexpected FetchSubscription call")
	}
	return f.fetchSubFn(ctx, ref)
}

func (f *fakeGateway) CancelSubscription(ctx context.Context, ref string, atCycleEnd bool) (*gateway.SubscriptionSnapshot, error) {
	if f.cancelSubFn == nil {
		return nil, errors.New("unexpected CancelSubscription call")
	}
	return f.cancelSubFn(ctx, ref, atCycleEnd)
}

func (f *fakeGateway) FetchPayment(ctx context.Context, paymentRef string) (*gateway.PaymentSnapshot, error) {
	if f.fetchPayFn == nil {
		return nil, errors.New("unexpected FetchPayment call")
	}
	return f.fetchPayFn(ctx, paymentRef)
}

type testAPI struct {
	handler http.Handler
	store   *billing.MemoryStore
	userID  uuid.UUID
}

func newTestAPI(t *testing.T, gw gateway.Client) *testAPI {
	t.Helper()

	store := billing.NewMemoryStore()
	engine := billing.NewEngine(billing.Config{
		WebhookSecret:      testWebhookSecret,
		PaymentSecret:      testPaymentSecret,
		PlanRefStarter:     "plan_starter_ref",
		PlanRefPro:         "plan_pro_ref",
		PlanRefBusiness:    "plan_business_ref",
		SubscriptionCycles: 12,
	}, gw, store, store)

	ent, err := entitlement.NewService(context.Background(),
		entitlement.NewInMemSource(entitlement.DefaultPlans()), nil,
		entitlement.StorePlanResolver(store, nil))
	require.NoError(t, err)

	userID := uuid.New()
	api := module.NewAPI(engine, ent, module.WithAuthenticator(func(r *http.Request) (uuid.UUID, bool) {
		if r.Header.Get("X-Test-Anonymous") != "" {
			return uuid.Nil, false
		}
		return userID, true
	}))

	return &testAPI{handler: api.Handle(), store: store, userID: userID}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestAuthenticationRequired(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, &fakeGateway{})
	anon := map[string]string{"X-Test-Anonymous": "1"}

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/subscriptions/"},
		{http.MethodPost, "/subscriptions/cancel"},
		{http.MethodPost, "/subscriptions/verify"},
		{http.MethodGet, "/subscriptions/sync"},
		{http.MethodGet, "/subscriptions/current"},
	} {
		rec := api.do(t, route.method, route.path, nil, anon)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", route.method, route.path)
	}

	// The plan catalog is public.
	rec := api.do(t, http.MethodGet, "/plans", nil, anon)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSubscriptionEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("creates and returns checkout intent", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{
			createSubFn: func(_ context.Context, planRef string, customer gateway.CustomerParams, _ int) (*gateway.SubscriptionSnapshot, error) {
				assert.Equal(t, "plan_pro_ref", planRef)
				assert.Equal(t, "ada@example.com", customer.Email)
				return &gateway.SubscriptionSnapshot{
					ID:          "sub_http",
					CustomerID:  "cust_http",
					Status:      "created",
					CheckoutURL: "https://gateway.example/checkout/sub_http",
				}, nil
			},
		})

		rec := api.do(t, http.MethodPost, "/subscriptions/", map[string]string{
			"plan":  "pro",
			"email": "ada@example.com",
			"name":  "Ada",
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		body := decode[map[string]any](t, rec)
		assert.Equal(t, "sub_http", body["subscriptionId"])
		assert.Equal(t, "cust_http", body["customerId"])
		assert.Equal(t, "pending", body["status"])
		assert.NotEmpty(t, body["checkoutUrl"])
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{})
		rec := api.do(t, http.MethodPost, "/subscriptions/", map[string]string{"plan": "platinum"}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("gateway down", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{
			createSubFn: func(_ context.Context, _ string, _ gateway.CustomerParams, _ int) (*gateway.SubscriptionSnapshot, error) {
				return nil, gateway.ErrGatewayUnavailable
			},
		})
		rec := api.do(t, http.MethodPost, "/subscriptions/", map[string]string{"plan": "starter"}, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("gateway rejection carries provider details", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{
			createSubFn: func(_ context.Context, _ string, _ gateway.CustomerParams, _ int) (*gateway.SubscriptionSnapshot, error) {
				return nil, errors.Join(gateway.ErrGatewayRejected, errors.New("plan does not exist"))
			},
		})
		rec := api.do(t, http.MethodPost, "/subscriptions/", map[string]string{"plan": "starter"}, nil)
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		body := decode[map[string]string](t, rec)
		assert.Contains(t, body["details"], "plan does not exist")
	})
}

func TestWebhookEndpoint(t *testing.T) {
	t.Parallel()

	seed := func(t *testing.T, api *testAPI, status billing.Status) {
		t.Helper()
		now := time.Now().UTC()
		require.NoError(t, api.store.UpsertByUser(context.Background(), &billing.Subscription{
			UserID:                 api.userID,
			Plan:                   billing.PlanStarter,
			Status:                 status,
			GatewaySubscriptionRef: "sub_wh",
			CreatedAt:              now,
			UpdatedAt:              now,
		}))
	}

	event := func(t *testing.T, name string) ([]byte, string) {
		t.Helper()
		body, err := json.Marshal(map[string]any{
			"event": name,
			"payload": map[string]any{
				"subscription": map[string]any{
					"entity": map[string]any{"id": "sub_wh", "plan_id": "plan_starter_ref"},
				},
			},
		})
		require.NoError(t, err)
		return body, gateway.SignWebhookPayload(body, testWebhookSecret)
	}

	post := func(api *testAPI, body []byte, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gateway", bytes.NewReader(body))
		req.Header.Set("X-Razorpay-Signature", sig)
		req.Header.Set("X-Razorpay-Event-Id", "evt_http")
		rec := httptest.NewRecorder()
		api.handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid event applies and acks", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{})
		seed(t, api, billing.StatusPending)

		body, sig := event(t, "subscription.activated")
		rec := post(api, body, sig)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())

		sub, err := api.store.GetByGatewayRef(context.Background(), "sub_wh")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{})
		seed(t, api, billing.StatusPending)

		body, _ := event(t, "subscription.activated")
		rec := post(api, body, "forged")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		sub, err := api.store.GetByGatewayRef(context.Background(), "sub_wh")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPending, sub.Status)
	})

	t.Run("unknown event still acks", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{})
		seed(t, api, billing.StatusPending)

		body, sig := event(t, "subscription.updated")
		rec := post(api, body, sig)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestVerifyEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("subscription pull", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{
			fetchSubFn: func(_ context.Context, ref string) (*gateway.SubscriptionSnapshot, error) {
				return &gateway.SubscriptionSnapshot{ID: ref, PlanRef: "plan_starter_ref", Status: "active"}, nil
			},
		})
		now := time.Now().UTC()
		require.NoError(t, api.store.UpsertByUser(context.Background(), &billing.Subscription{
			UserID:                 api.userID,
			Plan:                   billing.PlanStarter,
			Status:                 billing.StatusPending,
			GatewaySubscriptionRef: "sub_ver",
			CreatedAt:              now,
			UpdatedAt:              now,
		}))

		rec := api.do(t, http.MethodPost, "/subscriptions/verify", map[string]string{"subscriptionRef": "sub_ver"}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[map[string]any](t, rec)
		assert.Equal(t, true, body["success"])
		sub := body["subscription"].(map[string]any)
		assert.Equal(t, "active", sub["status"])
		assert.Equal(t, "starter", sub["plan"])
	})

	t.Run("one-time confirmation rejects an uncaptured payment", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{
			fetchPayFn: func(_ context.Context, paymentRef string) (*gateway.PaymentSnapshot, error) {
				return &gateway.PaymentSnapshot{ID: paymentRef, Status: "failed"}, nil
			},
		})
		now := time.Now().UTC()
		require.NoError(t, api.store.CreateOrder(context.Background(), &billing.CatalogOrder{
			ID:              uuid.New(),
			UserID:          api.userID,
			Plan:            billing.PlanStarter,
			AmountMinor:     49900,
			Currency:        "INR",
			DurationMonths:  1,
			PaymentStatus:   billing.PaymentPending,
			GatewayOrderRef: "order_ver",
			CreatedAt:       now,
			UpdatedAt:       now,
		}))

		rec := api.do(t, http.MethodPost, "/subscriptions/verify", map[string]string{
			"orderRef":   "order_ver",
			"paymentRef": "pay_ver",
			"signature":  gateway.SignPayment("order_ver", "pay_ver", testPaymentSecret),
		}, nil)
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("neither reference supplied", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{})
		rec := api.do(t, http.MethodPost, "/subscriptions/verify", map[string]string{}, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSyncAndCurrentEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("sync without a record is 404", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{})
		rec := api.do(t, http.MethodGet, "/subscriptions/sync", nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("sync reports a non-committed pull", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{
			fetchSubFn: func(_ context.Context, ref string) (*gateway.SubscriptionSnapshot, error) {
				return &gateway.SubscriptionSnapshot{ID: ref, Status: "pending"}, nil
			},
		})
		now := time.Now().UTC()
		require.NoError(t, api.store.UpsertByUser(context.Background(), &billing.Subscription{
			UserID:                 api.userID,
			Plan:                   billing.PlanPro,
			Status:                 billing.StatusActive,
			GatewaySubscriptionRef: "sub_sync",
			CreatedAt:              now,
			UpdatedAt:              now,
		}))

		rec := api.do(t, http.MethodGet, "/subscriptions/sync", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[map[string]any](t, rec)
		assert.Equal(t, false, body["committed"])
		assert.Equal(t, "pending", body["gatewayStatus"])
	})

	t.Run("current returns the stored record", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{})
		now := time.Now().UTC()
		require.NoError(t, api.store.UpsertByUser(context.Background(), &billing.Subscription{
			UserID:                 api.userID,
			Plan:                   billing.PlanBusiness,
			Status:                 billing.StatusActive,
			GatewaySubscriptionRef: "sub_cur",
			CreatedAt:              now,
			UpdatedAt:              now,
		}))

		rec := api.do(t, http.MethodGet, "/subscriptions/current", nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[map[string]any](t, rec)
		assert.Equal(t, "business", body["plan"])
		assert.Equal(t, "active", body["status"])
	})
}

func TestCancelEndpoint(t *testing.T) {
	t.Parallel()

	t.Run("cancels at cycle end", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{
			cancelSubFn: func(_ context.Context, ref string, atCycleEnd bool) (*gateway.SubscriptionSnapshot, error) {
				assert.True(t, atCycleEnd)
				return &gateway.SubscriptionSnapshot{ID: ref, Status: "active"}, nil
			},
		})
		now := time.Now().UTC()
		require.NoError(t, api.store.UpsertByUser(context.Background(), &billing.Subscription{
			UserID:                 api.userID,
			Plan:                   billing.PlanPro,
			Status:                 billing.StatusActive,
			GatewaySubscriptionRef: "sub_can",
			CreatedAt:              now,
			UpdatedAt:              now,
		}))

		rec := api.do(t, http.MethodPost, "/subscriptions/cancel", map[string]any{
			"subscriptionRef":  "sub_can",
			"cancelAtCycleEnd": true,
		}, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decode[map[string]any](t, rec)
		assert.Equal(t, "active", body["status"])
		assert.Equal(t, true, body["cancelAtPeriodEnd"])
	})

	t.Run("foreign reference is forbidden", func(t *testing.T) {
		t.Parallel()
		api := newTestAPI(t, &fakeGateway{})
		now := time.Now().UTC()
		require.NoError(t, api.store.UpsertByUser(context.Background(), &billing.Subscription{
			UserID:                 uuid.New(),
			Plan:                   billing.PlanPro,
			Status:                 billing.StatusActive,
			GatewaySubscriptionRef: "sub_theirs",
			CreatedAt:              now,
			UpdatedAt:              now,
		}))

		rec := api.do(t, http.MethodPost, "/subscriptions/cancel", map[string]any{
			"subscriptionRef": "sub_theirs",
		}, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestPlansEndpoint(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, &fakeGateway{})
	rec := api.do(t, http.MethodGet, "/plans", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	plans := decode[[]map[string]any](t, rec)
	require.Len(t, plans, 4)
	// Sorted by plan id.
	assert.Equal(t, "business", plans[0]["id"])
	assert.Equal(t, "free", plans[1]["id"])
	assert.Equal(t, "pro", plans[2]["id"])
	assert.Equal(t, "starter", plans[3]["id"])
}
