// Package billing exposes the subscription reconciliation engine over HTTP:
// checkout creation, gateway webhook intake, client-driven verification and
// sync, cancellation, and the public plan catalog.
package billing

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crmstack/billing/pkg/billing"
	"github.com/crmstack/billing/pkg/entitlement"
)

// Webhook headers set by the gateway on push deliveries.
const (
	headerWebhookSignature = "X-Razorpay-Signature"
	headerWebhookEventID   = "X-Razorpay-Event-Id"
)

// Authenticator extracts the calling user from a request. When nil, the
// module falls back to the user id placed in the request context by the
// application's auth middleware.
type Authenticator func(r *http.Request) (uuid.UUID, bool)

// API is the HTTP surface of the billing module. Mount it under the
// application router; all subscription routes require an authenticated user,
// the webhook route trusts its signature only.
type API struct {
	engine *billing.Engine
	ent    entitlement.Service
	authn  Authenticator
	log    *slog.Logger
}

// Option configures optional API dependencies.
type Option func(*API)

// WithAuthenticator sets a request-based user extractor.
func WithAuthenticator(fn Authenticator) Option {
	return func(a *API) { a.authn = fn }
}

// WithLogger sets the structured logger. A discard logger is used otherwise.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		if log != nil {
			a.log = log
		}
	}
}

// NewAPI wires the module. The entitlement service is optional; without it
// the plan catalog route serves an empty list.
func NewAPI(engine *billing.Engine, ent entitlement.Service, opts ...Option) *API {
	if engine == nil {
		panic("billing module: engine is required")
	}
	a := &API{
		engine: engine,
		ent:    ent,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle returns the module router.
func (a *API) Handle() http.Handler {
	r := chi.NewRouter()

	r.Route("/subscriptions", func(r chi.Router) {
		r.Use(a.requireUser)
		r.Post("/", a.createSubscription)
		r.Post("/orders", a.createOrder)
		r.Post("/cancel", a.cancel)
		r.Post("/verify", a.verify)
		r.Get("/sync", a.sync)
		r.Post("/sync", a.sync)
		r.Get("/current", a.current)
	})

	r.Get("/plans", a.listPlans)
	r.Post("/webhooks/gateway", a.webhook)

	return r
}

// requireUser resolves the caller identity or rejects with 401.
func (a *API) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := a.userID(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(SetUserIDToContext(r.Context(), userID)))
	})
}

func (a *API) userID(r *http.Request) (uuid.UUID, bool) {
	if a.authn != nil {
		return a.authn(r)
	}
	return UserIDFromContext(r.Context())
}
