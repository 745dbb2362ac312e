package main

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/ckmerch/backend-store/internal/account"
	"github.com/ckmerch/backend-store/internal/audit"
	"github.com/ckmerch/backend-store/internal/cart"
	"github.com/ckmerch/backend-store/internal/catalog"
	"github.com/ckmerch/backend-store/internal/checkout"
	"github.com/ckmerch/backend-store/internal/common"
	"github.com/ckmerch/backend-store/internal/config"
	"github.com/ckmerch/backend-store/internal/db"
	"github.com/ckmerch/backend-store/internal/events"
	"github.com/ckmerch/backend-store/internal/health"
	"github.com/ckmerch/backend-store/internal/lock"
	"github.com/ckmerch/backend-store/internal/notify"
	"github.com/ckmerch/backend-store/internal/obs"
	"github.com/ckmerch/backend-store/internal/order"
	"github.com/ckmerch/backend-store/internal/pricing"
	"github.com/ckmerch/backend-store/internal/ratelimit"
	"github.com/ckmerch/backend-store/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := obs.NewLogger("json", "info")
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	logger := obs.NewLogger(
		envOrDefault("OBS_LOG_FORMAT", "json"),
		envOrDefault("OBS_LOG_LEVEL", "info"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer := func(context.Context) error { return nil }
	if envBool("OBS_ENABLE_TRACING", false) {
		shutdownTracer, err = obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   envOrDefault("OBS_SERVICE_NAME", "ckmerch-store"),
			Endpoint:      os.Getenv("OBS_OTLP_ENDPOINT"),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("init tracing")
		}
	}

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "ckmerch-store-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if envBool("OBS_ENABLE_TRACING", false) {
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			logger.Warn().Err(err).Msg("instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Warn().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "store")
	registry := prometheus.DefaultRegisterer
	httpMetrics := obs.NewHTTPMetrics(
		metricsNamespace,
		obs.ParseBucketsCSV(os.Getenv("OBS_METRICS_BUCKETS_MS")),
		registry,
	)
	obs.MustRegisterDomainMetrics(metricsNamespace, registry)

	cat, err := catalog.Default()
	if err != nil {
		logger.Fatal().Err(err).Msg("build catalog")
	}
	engine := cat.Engine(pricing.Money(cfg.GiftThreshold))

	cartSvc := &cart.Service{
		Store:   &cart.Store{R: rdb, TTL: cfg.CartTTL},
		Catalog: cat,
		Engine:  engine,
	}

	eventStore := &events.PGStore{Pool: pool}
	notifyStore := &notify.PGStore{Pool: pool}
	dispatcher := &notify.Dispatcher{
		Store:              notifyStore,
		Client:             notify.HTTPClient(10 * time.Second),
		BackoffBase:        5 * time.Second,
		DefaultMaxAttempts: cfg.WebhookMaxAttempts,
		Enabled:            true,
		Replay:             notify.RedisReplayProtector{Client: rdb},
		ReplayTTL:          24 * time.Hour,
		Breakers: resilience.NewSet(func(endpoint string) *resilience.Breaker {
			return resilience.NewBreaker(5, 0.5, 30*time.Second).WithEndpoint(endpoint).WithLogger(logger)
		}),
	}
	bus := &events.Bus{Store: eventStore, Scheduler: dispatcher}

	orderStore := &order.Store{Pool: pool}
	checkoutSvc := &checkout.Service{
		Cart:      cartSvc,
		Orders:    orderStore,
		Bus:       bus,
		Engine:    engine,
		Privilege: cfg.Privileged,
		Lock:      lock.Locker{R: rdb},
		Currency:  cfg.CurrencyCode,
		Log:       logger,
	}

	catalogHandler := &catalog.Handler{Catalog: cat}
	cartHandler := &cart.Handler{Svc: cartSvc}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Validate: validator.New()}
	orderHandler := &order.Handler{Store: orderStore, Bus: bus, Log: logger}
	orderAdmin := &order.AdminHandler{Store: orderStore, Bus: bus, Log: logger}
	notifyAdmin := &notify.AdminHandler{Store: notifyStore, DefaultSecret: cfg.WebhookSigningSecret}

	auditStore := &audit.PGStore{Pool: pool}
	auditSvc := &audit.Service{Store: auditStore, Enabled: envBool("AUDIT_ENABLED", true)}
	auditRecorder := audit.Recorder{
		Service: auditSvc,
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("record audit entry")
		},
	}
	auditHandler := audit.Handler{Store: auditStore}

	idem := common.Idem{R: rdb, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: rdb, Prefix: "rl"},
		Config: ratelimit.Config{
			Key:    func(r *http.Request) string { return common.ClientIP(r) },
			Window: time.Minute,
			Max:    cfg.RateLimitRPM + cfg.RateLimitBurst,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	allowedOrigins := cfg.CORSAllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if envBool("OBS_ENABLE_TRACING", false) {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key", account.HeaderAccountID, account.HeaderAccountEmail},
		ExposedHeaders:   []string{"X-Total-Count"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if envBool("OBS_ENABLE_PROMETHEUS", true) {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug/pprof", protectPprof(pprofMux()))
	}

	checker := readinessChecker{db: pool, redis: rdb}
	healthHandler := health.Handler{Checker: checker}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.RateLimitEnabled {
			api.Use(limiter.Middleware)
		}
		api.Get("/products", catalogHandler.ListProducts)
		api.Get("/combos", catalogHandler.ListCombos)

		api.Group(func(authed chi.Router) {
			authed.Use(account.Middleware)
			authed.Use(account.RequireAccount)

			authed.Route("/cart", func(c chi.Router) {
				c.Get("/", cartHandler.Get)
				c.Post("/items", cartHandler.AddItem)
				c.Put("/items/{sku}", cartHandler.SetQty)
				c.Delete("/items/{sku}", cartHandler.RemoveItem)
				c.Delete("/", cartHandler.Clear)
			})

			authed.Group(func(mutating chi.Router) {
				mutating.Use(idem.Middleware)
				mutating.Post("/checkout", checkoutHandler.Submit)
			})

			authed.Route("/orders", func(o chi.Router) {
				o.Get("/", orderHandler.List)
				o.Get("/{orderId}", orderHandler.Get)
				o.Post("/{orderId}/cancel", orderHandler.Cancel)
			})
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(account.Middleware)
			admin.Use(account.Allowlist{Member: cfg.Staff}.Require)

			admin.Route("/orders", func(o chi.Router) {
				o.Get("/", orderAdmin.List)
				o.Get("/{orderId}", orderAdmin.Get)
				o.With(auditRecorder.Middleware(audit.RouteConfig{
					Action:          "admin.orders.status",
					ResourceType:    "orders",
					ResourceIDParam: "orderId",
				})).Patch("/{orderId}/status", orderAdmin.PatchStatus)
			})

			admin.Route("/webhooks", func(wh chi.Router) {
				mutation := auditRecorder.Middleware(audit.RouteConfig{
					ResourceType:    "webhooks",
					ResourceIDParam: "endpointId",
				})
				wh.With(mutation).Post("/", notifyAdmin.Create)
				wh.Get("/", notifyAdmin.List)
				wh.With(mutation).Put("/{endpointId}", notifyAdmin.Update)
				wh.With(mutation).Delete("/{endpointId}", notifyAdmin.Delete)
				wh.Get("/{endpointId}/deliveries", notifyAdmin.ListDeliveries)
			})

			admin.Get("/audit-logs", auditHandler.List)
		})
	})

	go dispatcher.Run(ctx, cfg.WebhookDispatchEvery, 50)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.AppEnv).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("tracer shutdown")
	}
	logger.Info().Msg("shutdown complete")
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func pprofMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(next http.Handler) http.Handler {
	user := os.Getenv("PPROF_USER")
	pass := os.Getenv("PPROF_PASSWORD")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user == "" || pass == "" {
			http.NotFound(w, r)
			return
		}
		gotUser, gotPass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(gotPass), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
