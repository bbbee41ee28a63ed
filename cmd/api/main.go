package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tindahan/api/internal/di"
	"github.com/tindahan/api/internal/handlers"
	"github.com/tindahan/api/internal/payments"
	"github.com/tindahan/api/internal/platform/auth"
	"github.com/tindahan/api/internal/platform/config"
	"github.com/tindahan/api/internal/platform/events"
	"github.com/tindahan/api/internal/platform/idempotency"
	"github.com/tindahan/api/internal/platform/observability"
	ppostgres "github.com/tindahan/api/internal/platform/postgres"
	"github.com/tindahan/api/internal/platform/secrets"
	"github.com/tindahan/api/internal/repositories"
	"github.com/tindahan/api/internal/services"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger(bootstrapLoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if cfg.Database.AutoMigrate {
		if err := ppostgres.Migrate(cfg.Database.URL); err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
		logger.Info("database migrations applied")
	}

	pgProvider, err := ppostgres.NewProvider(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialise postgres pool", zap.Error(err))
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(ctx, 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable at startup; carts and rate limits degrade until it recovers", zap.Error(err))
	}
	cancelPing()

	registry, err := di.NewRegistry(pgProvider, redisClient, cfg.Redis, secretHealthCheck(fetcher))
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	publisher, closeEvents, err := newEventPublisher(ctx, cfg.Events, logger)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}

	containerOpts := []di.Option{
		di.WithLogger(logger),
		di.WithVersion(version),
	}
	if publisher != nil {
		containerOpts = append(containerOpts, di.WithEventPublisher(publisher))
	}
	if cfg.Gateway.Enabled() {
		gateway, err := newPaymentGateway(cfg, logger)
		if err != nil {
			logger.Fatal("failed to initialise payment gateway", zap.Error(err))
		}
		containerOpts = append(containerOpts, di.WithPaymentGateway(gateway))
	}

	container, err := di.NewContainer(ctx, cfg, registry, containerOpts...)
	if err != nil {
		logger.Fatal("failed to assemble services", zap.Error(err))
	}
	svc := container.Services

	authenticator := auth.NewAuthenticator(cfg.Auth.JWTSecret,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAudience(cfg.Auth.Audience),
	)

	idempotencyStore, err := idempotency.NewRedisStore(redisClient, "idempotency")
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	orderIdempotency := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	voucherLimiter := handlers.NewRedisRateLimiter(redisClient, "", cfg.RateLimits.VoucherApplyPerMinute, time.Minute)

	productHandlers := handlers.NewProductHandlers(svc.Catalog, svc.Reviews)
	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Cart)
	checkoutHandlers := handlers.NewCheckoutHandlers(authenticator, svc.Checkout, svc.Vouchers,
		handlers.WithVoucherRateLimiter(voucherLimiter),
		handlers.WithOrderIdempotency(orderIdempotency),
	)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, svc.Reviews)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.Addresses, svc.Reviews)
	storeHandlers := handlers.NewStoreHandlers(svc.Stores)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews)
	adminHandlers := handlers.NewAdminHandlers(authenticator, handlers.AdminDeps{
		Catalog:  svc.Catalog,
		Orders:   svc.Orders,
		Vouchers: svc.Vouchers,
		Stats:    svc.Stats,
		Audit:    svc.Audit,
	})

	buildInfo := services.BuildInfo{
		Version:     version,
		Environment: cfg.Environment,
		StartedAt:   time.Now().UTC(),
	}
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithCheckoutRoutes(checkoutHandlers.Routes),
		handlers.WithPaymentRoutes(checkoutHandlers.PaymentRoutes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithMeRoutes(meHandlers.Routes),
		handlers.WithStoreRoutes(storeHandlers.Routes),
		handlers.WithReviewRoutes(reviewHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	}
	if hmac := buildHMACMiddleware(logger.Named("auth"), cfg, redisClient); hmac != nil {
		opts = append(opts,
			handlers.WithWebhookMiddlewares(hmac),
			handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(svc.Checkout).Routes),
		)
	} else {
		logger.Warn("webhook signing secret not configured; payment webhooks disabled")
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
		serverLogger.Info("tindahan api listening", zap.String("environment", cfg.Environment), zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := closeEvents(); err != nil {
		logger.Warn("event publisher close error", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("repository close error", zap.Error(err))
	}
}

// bootstrapLoggerConfig reads the log settings before the full configuration, whose loading
// needs a logger for the secret fetcher.
func bootstrapLoggerConfig() observability.LoggerConfig {
	cfg := observability.LoggerConfig{Level: "info", Service: "tindahan-api", Version: version}
	if level, ok, err := config.Lookup("LOG_LEVEL"); err == nil && ok {
		cfg.Level = level
	}
	if raw, ok, err := config.Lookup("LOG_DEVELOPMENT"); err == nil && ok {
		if dev, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			cfg.Development = dev
		}
	}
	return cfg
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		value, ok, err := config.Lookup(key)
		if err != nil || !ok {
			return ""
		}
		return strings.TrimSpace(value)
	}

	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project := lookup("SECRETS_PROJECT_ID"); project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := lookup("SECRETS_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if credentials := lookup("SECRETS_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// secretHealthCheck treats a missing probe secret as healthy; only transport failures count.
func secretHealthCheck(fetcher *secrets.Fetcher) repositories.DependencyCheck {
	const probe = "secret://system/healthz?version=latest"
	return repositories.DependencyCheck{
		Name:    "secretManager",
		Timeout: time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, probe)
			if err == nil {
				return nil
			}
			if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
				return nil
			}
			if errors.Is(err, secrets.ErrNotFound) {
				return nil
			}
			return err
		},
	}
}

// newEventPublisher selects the order event transport. The returned close func flushes the
// transport and releases any client it owns.
func newEventPublisher(ctx context.Context, cfg config.EventsConfig, logger *zap.Logger) (*events.Publisher, func() error, error) {
	noop := func() error { return nil }

	var (
		transport events.Transport
		release   = noop
	)
	switch cfg.Driver {
	case "none":
		return nil, noop, nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.PubSubProjectID)
		if err != nil {
			return nil, noop, fmt.Errorf("pubsub client: %w", err)
		}
		pst, err := events.NewPubSubTransport(client.Topic(cfg.PubSubTopic))
		if err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		transport = pst
		release = client.Close
	case "kafka":
		kt, err := events.NewKafkaTransport(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, noop, err
		}
		transport = kt
	default:
		transport = events.NewLogTransport(logger)
	}

	publisher, err := events.NewPublisher(transport)
	if err != nil {
		_ = transport.Close()
		_ = release()
		return nil, noop, err
	}
	logger.Info("order events enabled", zap.String("driver", cfg.Driver))
	return publisher, func() error {
		return errors.Join(publisher.Close(), release())
	}, nil
}

func newPaymentGateway(cfg config.Config, logger *zap.Logger) (*payments.Manager, error) {
	paymentsLogger := logger.Named("payments")
	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Gateway.StripeAPIKey,
		Clock:  time.Now,
		Logger: payments.StripeLogger(observability.EventLogger(paymentsLogger, "stripe")),
	})
	if err != nil {
		return nil, fmt.Errorf("stripe provider: %w", err)
	}
	guarded, err := payments.NewBreakerProvider(stripeProvider, payments.BreakerConfig{
		Name:        "stripe",
		MaxFailures: uint32(max(cfg.Gateway.BreakerMaxFailures, 0)),
		OpenTimeout: cfg.Gateway.BreakerOpenTimeout,
		CallTimeout: cfg.Gateway.Timeout,
		Logger:      observability.EventLogger(paymentsLogger, "breaker"),
	})
	if err != nil {
		return nil, fmt.Errorf("payment breaker: %w", err)
	}

	routes := make(map[string]string, len(cfg.Gateway.RedirectMethods))
	for _, method := range cfg.Gateway.RedirectMethods {
		routes[method] = cfg.Gateway.Provider
	}
	return payments.NewManager(
		map[string]payments.Provider{cfg.Gateway.Provider: guarded},
		payments.WithDefaultProvider(cfg.Gateway.Provider),
		payments.WithMethodRoutes(routes),
		payments.WithReturnBaseURL(cfg.Server.PublicBaseURL),
		payments.WithCurrency(cfg.Gateway.Currency),
	)
}

func buildHMACMiddleware(logger *zap.Logger, cfg config.Config, client goredis.Cmdable) func(http.Handler) http.Handler {
	secret := strings.TrimSpace(cfg.Webhooks.SigningSecret)
	if secret == "" {
		return nil
	}
	nonces, err := auth.NewRedisNonceStore(client, "webhook-nonce")
	if err != nil {
		logger.Warn("auth: redis nonce store unavailable; using in-memory store", zap.Error(err))
		return auth.NewHMACValidator(secret, "payments", auth.NewInMemoryNonceStore(),
			auth.WithHMACLogger(observability.NewPrintfAdapter(logger)),
			auth.WithHMACClockSkew(cfg.Webhooks.ClockSkew),
		).RequireHMAC()
	}
	return auth.NewHMACValidator(secret, "payments", nonces,
		auth.WithHMACLogger(observability.NewPrintfAdapter(logger)),
		auth.WithHMACClockSkew(cfg.Webhooks.ClockSkew),
	).RequireHMAC()
}
