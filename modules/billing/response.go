package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/crmstack/billing/pkg/billing"
	"github.com/crmstack/billing/pkg/gateway"
)

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Anything unmapped is a 500
// with a generic body; internals never leak to the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrInvalidSignature):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid signature"})
	case errors.Is(err, billing.ErrInvalidPlan):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid plan"})
	case errors.Is(err, gateway.ErrInvalidOrderAmount):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order amount"})
	case errors.Is(err, billing.ErrMalformedEvent):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed event payload"})
	case errors.Is(err, billing.ErrPlanMismatch):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "plan not configured"})
	case errors.Is(err, billing.ErrNotCancellable):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "subscription is not cancellable"})
	case errors.Is(err, billing.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, billing.ErrSubscriptionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "subscription not found"})
	case errors.Is(err, billing.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
	case errors.Is(err, billing.ErrPaymentNotCompleted):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: "payment not completed"})
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "billing gateway unavailable"})
	case errors.Is(err, billing.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "billing storage unavailable"})
	case errors.Is(err, gateway.ErrGatewayRejected):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "billing gateway rejected the request", Details: gatewayDetails(err)})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func errorIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// gatewayDetails surfaces the provider's own description on rejections so the
// client can show something actionable.
func gatewayDetails(err error) string {
	msg := err.Error()
	if msg == gateway.ErrGatewayRejected.Error() {
		return ""
	}
	return msg
}

type subscriptionView struct {
	Plan               string     `json:"plan"`
	Status             string     `json:"status"`
	SubscriptionRef    string     `json:"subscriptionRef"`
	CustomerRef        string     `json:"customerRef,omitempty"`
	CurrentPeriodStart *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
	NextDueDate        *time.Time `json:"nextDueDate,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancelAtPeriodEnd"`
	OneTime            bool       `json:"oneTime"`
}

func viewOf(sub *billing.Subscription) *subscriptionView {
	if sub == nil {
		return nil
	}
	return &subscriptionView{
		Plan:               string(sub.Plan),
		Status:             string(sub.Status),
		SubscriptionRef:    sub.GatewaySubscriptionRef,
		CustomerRef:        sub.GatewayCustomerRef,
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		NextDueDate:        sub.NextDueDate,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		OneTime:            sub.IsOneTime(),
	}
}
