package billing

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"

	"github.com/crmstack/billing/pkg/billing"
	"github.com/crmstack/billing/pkg/gateway"
)

// webhookMaxBody caps raw webhook bodies; gateway events are a few KB.
const webhookMaxBody = 1 << 20

type createSubscriptionRequest struct {
	Plan    string `json:"plan"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

type createSubscriptionResponse struct {
	SubscriptionID string `json:"subscriptionId"`
	CustomerID     string `json:"customerId,omitempty"`
	Status         string `json:"status"`
	CheckoutURL    string `json:"checkoutUrl,omitempty"`
}

func (a *API) createSubscription(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	plan, err := billing.ParsePlan(req.Plan)
	if err != nil {
		writeError(w, err)
		return
	}

	intent, err := a.engine.StartSubscription(r.Context(), userID, plan, gateway.CustomerParams{
		Name:    req.Name,
		Email:   req.Email,
		Contact: req.Contact,
	})
	if err != nil {
		a.log.ErrorContext(r.Context(), "failed to start subscription",
			"user_id", userID, "plan", plan, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createSubscriptionResponse{
		SubscriptionID: intent.SubscriptionRef,
		CustomerID:     intent.CustomerRef,
		Status:         string(intent.Status),
		CheckoutURL:    intent.CheckoutURL,
	})
}

type createOrderRequest struct {
	Plan           string `json:"plan"`
	AmountMinor    int64  `json:"amount"`
	Currency       string `json:"currency"`
	DurationMonths int    `json:"durationMonths"`
}

type createOrderResponse struct {
	OrderID        string `json:"orderId"`
	AmountMinor    int64  `json:"amount"`
	Currency       string `json:"currency"`
	DurationMonths int    `json:"durationMonths"`
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}
	if req.AmountMinor <= 0 {
		writeError(w, gateway.ErrInvalidOrderAmount)
		return
	}

	order, err := a.engine.StartOneTimeOrder(r.Context(), userID, billing.Plan(req.Plan), req.AmountMinor, req.Currency, req.DurationMonths)
	if err != nil {
		a.log.ErrorContext(r.Context(), "failed to start one-time order",
			"user_id", userID, "plan", req.Plan, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID:        order.GatewayOrderRef,
		AmountMinor:    order.AmountMinor,
		Currency:       order.Currency,
		DurationMonths: order.DurationMonths,
	})
}

type cancelRequest struct {
	SubscriptionRef  string `json:"subscriptionRef"`
	CancelAtCycleEnd bool   `json:"cancelAtCycleEnd"`
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	sub, err := a.engine.Cancel(r.Context(), userID, req.SubscriptionRef, req.CancelAtCycleEnd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sub))
}

type verifyRequest struct {
	SubscriptionRef string `json:"subscriptionRef"`
	OrderRef        string `json:"orderRef"`
	PaymentRef      string `json:"paymentRef"`
	Signature       string `json:"signature"`
}

type verifyResponse struct {
	Success      bool              `json:"success"`
	Subscription *subscriptionView `json:"subscription,omitempty"`
}

// verify completes either checkout flow: a subscription reference triggers a
// gateway pull, an order/payment reference pair with its signature confirms a
// one-time purchase.
func (a *API) verify(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	switch {
	case req.SubscriptionRef != "":
		res, err := a.engine.VerifySubscription(r.Context(), userID, req.SubscriptionRef)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, verifyResponse{
			Success:      res.Committed,
			Subscription: viewOf(res.Subscription),
		})

	case req.OrderRef != "" && req.PaymentRef != "":
		sub, err := a.engine.ConfirmOneTimePayment(r.Context(), userID, req.OrderRef, req.PaymentRef, req.Signature)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, verifyResponse{Success: true, Subscription: viewOf(sub)})

	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "either subscriptionRef or orderRef with paymentRef is required",
		})
	}
}

type syncResponse struct {
	Committed     bool              `json:"committed"`
	GatewayStatus string            `json:"gatewayStatus,omitempty"`
	Status        string            `json:"status"`
	Subscription  *subscriptionView `json:"subscription,omitempty"`
}

func (a *API) sync(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	res, err := a.engine.SyncFromGateway(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		Committed:     res.Committed,
		GatewayStatus: res.GatewayStatus,
		Status:        string(res.Resolved),
		Subscription:  viewOf(res.Subscription),
	})
}

func (a *API) current(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	sub, err := a.engine.GetCurrentSubscription(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sub))
}

type planView struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Limits   map[string]int64 `json:"limits"`
	Features []string         `json:"features"`
}

func (a *API) listPlans(w http.ResponseWriter, r *http.Request) {
	if a.ent == nil {
		writeJSON(w, http.StatusOK, []planView{})
		return
	}

	catalog := a.ent.Plans()
	views := make([]planView, 0, len(catalog))
	for id, plan := range catalog {
		v := planView{
			ID:       id,
			Name:     plan.Name,
			Limits:   make(map[string]int64, len(plan.Limits)),
			Features: make([]string, 0, len(plan.Features)),
		}
		for res, limit := range plan.Limits {
			v.Limits[string(res)] = limit
		}
		for _, f := range plan.Features {
			v.Features = append(v.Features, string(f))
		}
		views = append(views, v)
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	writeJSON(w, http.StatusOK, views)
}

// webhook is the gateway push intake. The body is read raw and verified
// before any parsing; recognized-or-ignored events return 200 so the gateway
// stops retrying, only infrastructure failures return 500.
func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	err = a.engine.HandleWebhook(r.Context(),
		rawBody,
		r.Header.Get(headerWebhookSignature),
		r.Header.Get(headerWebhookEventID),
	)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	case isWebhookBadRequest(err):
		writeError(w, err)
	default:
		a.log.ErrorContext(r.Context(), "webhook processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func isWebhookBadRequest(err error) bool {
	return errorIsAny(err, gateway.ErrInvalidSignature, billing.ErrMalformedEvent)
}
