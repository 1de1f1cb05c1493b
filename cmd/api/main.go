package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/malistore/api/internal/di"
	"github.com/malistore/api/internal/handlers"
	"github.com/malistore/api/internal/payments"
	"github.com/malistore/api/internal/platform/auth"
	"github.com/malistore/api/internal/platform/config"
	"github.com/malistore/api/internal/platform/idempotency"
	"github.com/malistore/api/internal/platform/metrics"
	"github.com/malistore/api/internal/platform/observability"
	"github.com/malistore/api/internal/platform/secrets"
	"github.com/malistore/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := services.BuildInfo{
		Version:     cfg.Server.Version,
		Environment: cfg.Security.Environment,
		StartedAt:   startedAt,
	}
	metricsRegistry := metrics.New()

	gateway, err := newPaymentGateway(cfg, logger.Named("payments"))
	if err != nil {
		logger.Fatal("failed to initialise payment provider", zap.Error(err))
	}

	registry, err := di.OpenRegistry(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err), zap.String("driver", cfg.Storage.Driver))
	}
	container, err := di.NewContainer(ctx, cfg, registry,
		di.WithPaymentGateway(gateway),
		di.WithMetrics(metricsRegistry),
		di.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	idempotencyStore, redisPing, err := newIdempotencyStore(cfg.Redis, cfg.Idempotency)
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyLogger := observability.EventLogger(logger.Named("idempotency"))
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(idempotencyLogger),
	)

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	var backgroundWG sync.WaitGroup
	backgroundWG.Add(1)
	go func() {
		defer backgroundWG.Done()
		idempotency.RunCleanup(backgroundCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, idempotencyLogger)
	}()
	if cfg.Inventory.AlertsEnabled {
		monitor := container.Services.StockMonitor
		backgroundWG.Add(1)
		go func() {
			defer backgroundWG.Done()
			logger.Info("stock alert monitor started", zap.Duration("interval", monitor.Interval()))
			monitor.Run(backgroundCtx)
		}()
	}

	healthService, err := services.NewHealthService(services.HealthServiceDeps{
		Checks: dependencyChecks(container, cfg, redisPing),
		Build:  buildInfo,
		Clock:  time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise health service", zap.Error(err))
	}

	var authenticator *auth.Authenticator
	if strings.TrimSpace(cfg.Firebase.ProjectID) != "" {
		var firebaseOpts []auth.FirebaseOption
		if cfg.IsProduction() {
			firebaseOpts = append(firebaseOpts, auth.WithRevocationCheck())
		}
		firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, firebaseOpts...)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		authenticator = auth.NewAuthenticator(firebaseVerifier)
	} else {
		logger.Warn("auth: firebase project not configured; authenticated routes will reject requests")
	}

	var webhookVerifier handlers.WebhookVerifier
	if secret := strings.TrimSpace(cfg.PSP.StripeWebhookSecret); secret != "" {
		verifier, err := payments.NewWebhookVerifier(secret, cfg.PSP.WebhookTolerance)
		if err != nil {
			logger.Fatal("failed to initialise webhook verifier", zap.Error(err))
		}
		webhookVerifier = verifier
	} else {
		logger.Warn("payments: webhook secret not configured; provider webhooks will be refused")
	}

	svc := container.Services
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Payments,
		handlers.WithOrderIdempotency(idempotencyMiddleware))
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments,
		handlers.WithPaymentIdempotency(idempotencyMiddleware))
	webhookHandlers := handlers.NewWebhookHandlers(webhookVerifier, svc.Reconciliation,
		handlers.WithPaymentSimulation(cfg.SimulationEnabled()),
		handlers.WithWebhookRateLimit(cfg.RateLimits.WebhookPerMinute))
	adminHandlers := handlers.NewAdminHandlers(authenticator, svc.Orders, svc.Payments, svc.Inventory)
	internalHandlers := handlers.NewInternalHandlers(svc.StockMonitor)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthService(healthService),
	)
	if cfg.SimulationEnabled() {
		logger.Warn("payments: simulation endpoints enabled")
	}

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		metricsRegistry.Middleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metricsRegistry.Handler()),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithPaymentWebhookRoutes(webhookHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithInternalRoutes(internalHandlers.Routes),
	}
	if oidcMiddleware := buildOIDCMiddleware(logger.Named("auth"), cfg, metricsRegistry); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("malistore api listening",
			zap.String("storage", cfg.Storage.Driver),
			zap.String("events", cfg.Events.Driver),
			zap.String("psp", cfg.PSP.Mode),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	backgroundCancel()
	backgroundWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newPaymentGateway(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	providers := map[string]payments.Provider{
		config.PSPModeMock: payments.NewMockProvider(time.Now),
	}
	if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:    key,
			AccountID: cfg.PSP.StripeAccountID,
			Logger:    observability.EventLogger(logger),
			Clock:     time.Now,
		})
		if err != nil {
			return nil, err
		}
		providers[config.PSPModeStripe] = stripeProvider
	}
	if _, ok := providers[cfg.PSP.Mode]; !ok {
		return nil, fmt.Errorf("payment provider %q is not configured", cfg.PSP.Mode)
	}
	return payments.NewManager(providers, payments.WithDefaultProvider(cfg.PSP.Mode))
}

func newIdempotencyStore(redisCfg config.RedisConfig, idemCfg config.IdempotencyConfig) (idempotency.Store, func(context.Context) error, error) {
	if strings.TrimSpace(redisCfg.Addr) == "" {
		return idempotency.NewMemoryStore(), nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	store, err := idempotency.NewRedisStore(client, idemCfg.KeyPrefix)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, store.Ping, nil
}

func dependencyChecks(container *di.Container, cfg config.Config, redisPing func(context.Context) error) []services.DependencyCheck {
	checks := []services.DependencyCheck{{
		Name:    cfg.Storage.Driver,
		Timeout: 1500 * time.Millisecond,
		Check:   container.Repositories.Ping,
	}}
	if redisPing != nil {
		checks = append(checks, services.DependencyCheck{
			Name:     "redis",
			Timeout:  time.Second,
			Check:    redisPing,
			Optional: true,
		})
	}
	if cfg.Events.Driver == config.EventsDriverKafka && len(cfg.Events.KafkaBrokers) > 0 {
		broker := strings.TrimSpace(cfg.Events.KafkaBrokers[0])
		checks = append(checks, services.DependencyCheck{
			Name:     "kafka",
			Timeout:  time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				conn, err := kafka.DialContext(ctx, "tcp", broker)
				if err != nil {
					return err
				}
				return conn.Close()
			},
		})
	}
	return checks
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, recorder auth.MetricsRecorder) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	eventLogger := observability.EventLogger(logger)
	keys := auth.NewKeySet(cfg.Security.OIDC.JWKSURL, auth.WithKeySetLogger(eventLogger))
	validator := auth.NewOIDCValidator(keys, auth.WithOIDCLogger(eventLogger), auth.WithOIDCMetrics(recorder))

	policy := auth.OIDCPolicy{
		Audience:       cfg.Security.OIDC.Audience,
		Issuers:        cfg.Security.OIDC.Issuers,
		AllowedCallers: cfg.Security.OIDC.AllowedCallers,
	}
	if strings.TrimSpace(policy.Audience) == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	if len(policy.AllowedCallers) == 0 {
		logger.Info("auth: no OIDC caller allow-list; any token for the audience may trigger stock sweeps")
	}

	return validator.RequireOIDC(policy)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve for the configured drivers.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	mode := strings.ToLower(strings.TrimSpace(env["API_PSP_MODE"]))
	if mode == "" || mode == config.PSPModeStripe {
		required = append(required, "PSP.StripeAPIKey", "PSP.StripeWebhookSecret")
	}
	driver := strings.ToLower(strings.TrimSpace(env["API_STORAGE_DRIVER"]))
	if driver == "" || driver == config.StorageDriverPostgres {
		required = append(required, "Postgres.DSN")
	}
	return required
}
