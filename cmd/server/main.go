package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	billingmodule "github.com/crmstack/billing/modules/billing"
	"github.com/crmstack/billing/pkg/billing"
	"github.com/crmstack/billing/pkg/config"
	"github.com/crmstack/billing/pkg/entitlement"
	"github.com/crmstack/billing/pkg/environment"
	"github.com/crmstack/billing/pkg/gateway"
	"github.com/crmstack/billing/pkg/httpserver"
	"github.com/crmstack/billing/pkg/logger"
	"github.com/crmstack/billing/pkg/pg"
	rediskit "github.com/crmstack/billing/pkg/redis"
)

type appConfig struct {
	Environment      string        `env:"APP_ENV" envDefault:"development"`
	PlansFile        string        `env:"ENTITLEMENT_PLANS_FILE"`
	WebhookDedupeTTL time.Duration `env:"BILLING_WEBHOOK_DEDUPE_TTL" envDefault:"48h"`
}

func main() {
	ctx := context.Background()

	var (
		appCfg     appConfig
		httpCfg    httpserver.Config
		pgCfg      pg.Config
		redisCfg   rediskit.Config
		gatewayCfg gateway.Config
		billingCfg billing.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&gatewayCfg)
	config.MustLoad(&billingCfg)

	log := logger.New(
		logger.WithEnvironment(appCfg.Environment, "billing"),
		logger.WithContextExtractors(environment.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.ErrorContext(ctx, "failed to connect to postgres", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		log.ErrorContext(ctx, "failed to apply migrations", logger.Error(err))
		os.Exit(1)
	}

	redisClient, err := rediskit.Connect(ctx, redisCfg)
	if err != nil {
		log.ErrorContext(ctx, "failed to connect to redis", logger.Error(err))
		os.Exit(1)
	}
	defer redisClient.Close()

	// A deployment without gateway credentials still serves reads; billing
	// operations fail with a 503 instead of pretending everyone is free-tier.
	gw, err := gateway.New(gatewayCfg)
	if err != nil {
		if !errors.Is(err, gateway.ErrGatewayUnavailable) {
			log.ErrorContext(ctx, "failed to construct billing gateway", logger.Error(err))
			os.Exit(1)
		}
		log.WarnContext(ctx, "billing gateway not configured, billing operations disabled")
		gw = nil
	}

	store := billing.NewPostgresStore(pool)
	engine := billing.NewEngine(billingCfg, gw, store, store,
		billing.WithLogger(log),
		billing.WithDeduper(billing.NewRedisDeduper(redisClient, appCfg.WebhookDedupeTTL)),
	)

	planSource := entitlement.Source(entitlement.NewInMemSource(entitlement.DefaultPlans()))
	if appCfg.PlansFile != "" {
		planSource = entitlement.NewFileSource(appCfg.PlansFile)
	}
	ent, err := entitlement.NewService(ctx, planSource, nil, entitlement.StorePlanResolver(store, nil))
	if err != nil {
		log.ErrorContext(ctx, "failed to load entitlement plans", logger.Error(err))
		os.Exit(1)
	}

	api := billingmodule.NewAPI(engine, ent,
		billingmodule.WithLogger(log),
		billingmodule.WithAuthenticator(headerAuthenticator),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(environment.Middleware(environment.Environment(appCfg.Environment)))
	r.Use(requestLogger(log))

	r.Get("/health", httpserver.HealthCheckHandler(ctx, log,
		pg.Healthcheck(pool),
		rediskit.Healthcheck(redisClient),
	))
	r.Mount("/", api.Handle())

	srv := httpserver.NewFromConfig(httpCfg,
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(l *slog.Logger) { l.Info("billing server started", "addr", httpCfg.Addr) }),
	)
	if err := srv.Run(ctx, r); err != nil {
		log.ErrorContext(ctx, "server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// headerAuthenticator trusts the user id the edge proxy injects after
// authenticating the session. The service is not meant to be exposed
// directly.
func headerAuthenticator(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.Header.Get("X-User-Id"))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// requestLogger logs completed requests with method, path, status and timing.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
