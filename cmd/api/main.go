package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/skycart/api/internal/di"
	"github.com/skycart/api/internal/handlers"
	"github.com/skycart/api/internal/invoice"
	"github.com/skycart/api/internal/platform/auth"
	"github.com/skycart/api/internal/platform/config"
	pfirestore "github.com/skycart/api/internal/platform/firestore"
	"github.com/skycart/api/internal/platform/idempotency"
	"github.com/skycart/api/internal/platform/jobs"
	"github.com/skycart/api/internal/platform/observability"
	"github.com/skycart/api/internal/repositories"
	firestoreRepo "github.com/skycart/api/internal/repositories/firestore"
	"github.com/skycart/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier, auth.WithUserGetter(firebaseVerifier))

	repos, err := buildRepositories(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	var events services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	if cfg.Features.EnableOrderEvents {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		publisher, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(cfg.PubSub.OrderEventsTopic))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		events = publisher
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	renderer, err := invoice.NewRenderer(invoice.Company{
		Name:         cfg.Company.Name,
		AddressLine1: cfg.Company.AddressLine1,
		AddressLine2: cfg.Company.AddressLine2,
		Country:      cfg.Company.Country,
		SupportEmail: cfg.Company.SupportEmail,
		Terms:        cfg.Company.InvoiceTerms,
	})
	if err != nil {
		logger.Fatal("failed to initialise invoice renderer", zap.Error(err))
	}

	repos.Health = newHealthRepository(firestoreClient, pubsubClient, cfg)

	container, err := di.NewContainer(cfg, di.Deps{
		Repos:    repos,
		Renderer: renderer,
		Events:   events,
		Logger:   zapEventLogger(logger.Named("services")),
		Clock:    time.Now,
		Build:    buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to build service container", zap.Error(err))
	}

	idempotencyMiddleware := idempotency.Middleware(
		idempotency.NewFirestoreStore(firestoreClient),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
		handlers.RateLimitMiddleware(cfg.RateLimits.DefaultPerMinute),
	}

	// Authenticated routes share one per-UID budget; the global limiter above
	// only sees the connecting address because it runs before auth.
	authLimiter := handlers.RateLimitMiddleware(cfg.RateLimits.AuthenticatedPerMinute)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.Services.System),
	)
	cartHandlers := handlers.NewCartHandlers(authenticator, container.Services.Cart,
		handlers.WithCartRateLimit(authLimiter))
	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Checkout, container.Services.Orders, container.Services.Invoices,
		handlers.WithOrderRateLimit(authLimiter))
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, container.Services.Orders,
		handlers.WithAdminOrderRateLimit(authLimiter))

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(func(r chi.Router) {
			r.Use(idempotencyMiddleware)
			orderHandlers.Routes(r)
		}),
		handlers.WithAdminOrderRoutes(adminOrderHandlers.Routes),
	)

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
		serverLogger.Info("skycart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildRepositories(provider *pfirestore.Provider) (di.Repositories, error) {
	var repos di.Repositories
	var err error

	if repos.Users, err = firestoreRepo.NewUserRepository(provider); err != nil {
		return di.Repositories{}, fmt.Errorf("user repository: %w", err)
	}
	if repos.Addresses, err = firestoreRepo.NewAddressRepository(provider); err != nil {
		return di.Repositories{}, fmt.Errorf("address repository: %w", err)
	}
	if repos.Carts, err = firestoreRepo.NewCartRepository(provider); err != nil {
		return di.Repositories{}, fmt.Errorf("cart repository: %w", err)
	}
	if repos.Products, err = firestoreRepo.NewProductRepository(provider); err != nil {
		return di.Repositories{}, fmt.Errorf("product repository: %w", err)
	}
	if repos.Orders, err = firestoreRepo.NewOrderRepository(provider); err != nil {
		return di.Repositories{}, fmt.Errorf("order repository: %w", err)
	}
	if repos.Checkout, err = firestoreRepo.NewCheckoutRepository(provider); err != nil {
		return di.Repositories{}, fmt.Errorf("checkout repository: %w", err)
	}
	if repos.Counters, err = firestoreRepo.NewCounterRepository(provider); err != nil {
		return di.Repositories{}, fmt.Errorf("counter repository: %w", err)
	}

	return repos, nil
}

func newHealthRepository(client *firestore.Client, pubsubClient *pubsub.Client, cfg config.Config) repositories.HealthRepository {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if client != nil {
		c := client
		checks = append(checks, repositories.DependencyCheck{
			Name:    "firestore",
			Timeout: 1500 * time.Millisecond,
			Check: func(ctx context.Context) error {
				iter := c.Collections(ctx)
				_, err := iter.Next()
				if errors.Is(err, iterator.Done) {
					return nil
				}
				return err
			},
		})
	}
	if pubsubClient != nil {
		topic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := topic.Exists(ctx)
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil
	}
	repo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		return nil
	}
	return repo
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Server.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}
