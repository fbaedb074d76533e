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

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/oesukam/mus-sub000/internal/handlers"
	"github.com/oesukam/mus-sub000/internal/platform/auth"
	"github.com/oesukam/mus-sub000/internal/platform/config"
	pfirestore "github.com/oesukam/mus-sub000/internal/platform/firestore"
	"github.com/oesukam/mus-sub000/internal/platform/jobs"
	"github.com/oesukam/mus-sub000/internal/platform/observability"
	firestoreRepo "github.com/oesukam/mus-sub000/internal/repositories/firestore"
	"github.com/oesukam/mus-sub000/internal/services"
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

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		logger.Fatal("failed to initialise pubsub client", zap.Error(err))
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}()

	mailTopic := pubsubClient.Topic(cfg.PubSub.MailTopic)
	defer mailTopic.Stop()

	mailPublisher, err := jobs.NewPubSubMailPublisher(mailTopic)
	if err != nil {
		logger.Fatal("failed to initialise mail publisher", zap.Error(err))
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	transactionRepo, err := firestoreRepo.NewTransactionRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise transaction repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}

	inventoryService, err := services.NewInventoryService(services.InventoryServiceDeps{
		Products: productRepo,
		Clock:    time.Now,
		Logger:   eventLogger(logger.Named("inventory")),
	})
	if err != nil {
		logger.Fatal("failed to initialise inventory service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          orderRepo,
		Products:        productRepo,
		Inventory:       inventoryService,
		Mailer:          mailPublisher,
		Clock:           time.Now,
		DefaultCountry:  cfg.Commerce.DefaultCountry,
		DefaultCurrency: cfg.Commerce.DefaultCurrency,
		Logger:          eventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Transactions: transactionRepo,
		Mailer:       mailPublisher,
		Clock:        time.Now,
		Logger:       eventLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	ledgerService, err := services.NewLedgerService(services.LedgerServiceDeps{
		Transactions:    transactionRepo,
		Clock:           time.Now,
		DefaultCountry:  cfg.Commerce.DefaultCountry,
		DefaultCurrency: cfg.Commerce.DefaultCurrency,
		Logger:          eventLogger(logger.Named("ledger")),
	})
	if err != nil {
		logger.Fatal("failed to initialise ledger service", zap.Error(err))
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, orderService)
	publicHandlers := handlers.NewPublicHandlers(orderService)
	adminOrderHandlers := handlers.NewAdminOrderHandlers(authenticator, orderService, paymentService, inventoryService)
	ledgerHandlers := handlers.NewLedgerHandlers(authenticator, ledgerService)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, startedAt)),
		handlers.WithReadinessProbe("firestore", func(ctx context.Context) error {
			_, err := firestoreClient.Collections(ctx).Next()
			if err != nil && !errors.Is(err, iterator.Done) {
				return err
			}
			return nil
		}),
	)

	projectID := cfg.Firestore.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPublicRoutes(publicHandlers.Routes),
		handlers.WithAdminRoutes(func(r chi.Router) {
			r.Group(adminOrderHandlers.Routes)
			r.Group(ledgerHandlers.Routes)
		}),
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
		serverLogger.Info("order engine api listening")
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

func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}

func buildInfoFromEnv(env map[string]string, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(env["API_ENVIRONMENT"])
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
