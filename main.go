package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kapo179/docuseal3/config"
	"github.com/Kapo179/docuseal3/handler"
	"github.com/Kapo179/docuseal3/middleware"
	"github.com/Kapo179/docuseal3/model"
	"github.com/Kapo179/docuseal3/pkg/logger"
	"github.com/Kapo179/docuseal3/pkg/metrics"
	"github.com/Kapo179/docuseal3/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "path", path, "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully", "storage", cfg.Storage.Driver, "ledger", cfg.Ledger.Driver, "signing", cfg.Signing.Provider)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Storage backends
	store, err := openBackends(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	keys := service.Keyspace(cfg.Storage.KeyPrefix)
	flowTTL := time.Duration(cfg.Session.FlowTTLHours) * time.Hour
	retention := time.Duration(cfg.Ledger.RetentionHours) * time.Hour

	events, err := openEventLedger(ctx, cfg, store, keys, retention)
	if err != nil {
		slog.Error("failed to initialize webhook ledger", "error", err)
		os.Exit(1)
	}

	// Initialize services
	payments, err := service.NewPaymentService(service.NewStripeProvider(cfg.Stripe.SecretKey, nil), cfg.Payment, cfg.Server.PublicURL)
	if err != nil {
		slog.Error("failed to initialize payment service", "error", err)
		os.Exit(1)
	}
	docuSeal := service.NewDocuSealService(&cfg.DocuSeal)
	boldSign := service.NewBoldSignService(&cfg.BoldSign, cfg.Server.PublicURL)

	forms := service.NewFormStore(store.kv, keys)
	contracts := service.NewContractStore(store.kv, keys, cfg.Storage.MaxContracts)
	flows := service.NewFlowSessionStore(store.kv, keys, flowTTL)
	paymentLedger := service.NewPaymentLedger(store.kv, keys, retention)
	paymentFlow := service.NewPaymentFlow(store.kv, keys, payments, paymentLedger)
	broker := service.NewStatusBroker(store.kv, keys, retention)

	workflow := service.NewWorkflow(service.WorkflowDeps{
		Forms:     forms,
		Contracts: contracts,
		Flows:     flows,
		Payments:  paymentFlow,
		Signing:   signingFlow(cfg.Signing.Provider, docuSeal, boldSign),
		Checkers: map[model.SigningProvider]service.StatusChecker{
			model.ProviderDocuSeal: docuSeal,
			model.ProviderBoldSign: boldSign,
		},
		Broker:       broker,
		PollInterval: time.Duration(cfg.Signing.PollIntervalSeconds) * time.Second,
	})
	webhooks := service.NewWebhookService(
		service.NewStripeWebhookVerifier(cfg.Stripe.WebhookSecret),
		cfg.BoldSign.WebhookSecret,
		events,
		paymentLedger,
		broker,
	)

	// Initialize handlers
	var archive handler.AuditArchiver
	if store.minio != nil {
		archive = store.minio
	}
	h := &handler.Handlers{
		Payment: handler.NewPaymentHandler(payments),
		Signing: handler.NewSigningHandler(docuSeal, boldSign, archive),
		Webhook: handler.NewWebhookHandler(webhooks),
		Flow: handler.NewFlowHandler(handler.FlowDeps{
			Forms:    forms,
			Flows:    flows,
			Payments: paymentFlow,
			Workflow: workflow,
			Embedded: service.NewEmbeddedSession(cfg.Signing.ProviderOrigin),
			Session:  &cfg.Session,
		}),
		Contract: handler.NewContractHandler(contracts, workflow),
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigin))
	router.Use(middleware.NoStore())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	handler.RegisterRoutes(router, h, &cfg.Session, middleware.RateLimit(cfg.RateLimit.Requests, window))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 0, // signing event streams stay open
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	store.close()

	slog.Info("server exited gracefully")
}

// signingFlow picks the service that creates new signing requests. Status
// lookups stay available for both providers.
func signingFlow(provider string, docuSeal *service.DocuSealService, boldSign *service.BoldSignService) *service.SigningFlow {
	if provider == config.SigningBoldSign {
		return service.NewSigningFlow(model.ProviderBoldSign, boldSign)
	}
	return service.NewSigningFlow(model.ProviderDocuSeal, docuSeal)
}

type backends struct {
	kv      service.KV
	memory  *service.MemoryKV
	redis   *redis.Client
	minio   *service.MinioService
	closers []func() error
}

func (b *backends) close() {
	for _, fn := range b.closers {
		if err := fn(); err != nil {
			slog.Warn("failed to close backend", "error", err)
		}
	}
}

// openBackends connects the configured KV driver. MinIO is also opened for
// audit trail archiving whenever it is configured.
func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}

	if cfg.MinioEnabled() {
		minioSvc, err := service.NewMinioService(&cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
		if err := minioSvc.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("minio bucket: %w", err)
		}
		b.minio = minioSvc
	}

	if cfg.Storage.Driver == config.DriverRedis || cfg.Ledger.Driver == config.DriverRedis {
		client, err := service.ConnectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		b.redis = client
		b.closers = append(b.closers, client.Close)
	}

	switch cfg.Storage.Driver {
	case config.DriverRedis:
		b.kv = service.NewRedisKV(b.redis)
	case config.DriverMinio:
		b.kv = b.minio
	default:
		b.memory = service.NewMemoryKV()
		b.kv = b.memory
	}
	return b, nil
}

func openEventLedger(ctx context.Context, cfg *config.Config, b *backends, keys service.Keyspace, retention time.Duration) (service.EventLedger, error) {
	switch cfg.Ledger.Driver {
	case config.DriverRedis:
		return service.NewRedisEventLedger(b.redis, keys, retention), nil
	case config.DriverPostgres:
		db, err := service.ConnectPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}
		if err := service.RunMigrations(ctx, db); err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			b.closers = append(b.closers, sqlDB.Close)
		}
		ledger := service.NewPostgresEventLedger(db, retention)
		go pruneLedger(ctx, ledger, time.Hour)
		return ledger, nil
	}

	memory := b.memory
	if memory == nil {
		memory = service.NewMemoryKV()
	}
	return service.NewMemoryEventLedger(memory, keys, retention), nil
}

func pruneLedger(ctx context.Context, ledger *service.PostgresEventLedger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ledger.Prune(ctx)
			if err != nil {
				logger.Warn(ctx, "failed to prune webhook events", "error", err)
				continue
			}
			if n > 0 {
				logger.Info(ctx, "pruned webhook events", "count", n)
			}
		}
	}
}
