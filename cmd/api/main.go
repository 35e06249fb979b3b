package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	apihttp "github.com/wms-platform/verification-service/internal/api/http"
	"github.com/wms-platform/verification-service/internal/application"
	"github.com/wms-platform/verification-service/internal/barcode"
	"github.com/wms-platform/verification-service/internal/config"
	"github.com/wms-platform/verification-service/internal/domain"
	"github.com/wms-platform/verification-service/internal/infrastructure/instrumented"
	redisStore "github.com/wms-platform/verification-service/internal/infrastructure/redis"
	"github.com/wms-platform/verification-service/internal/infrastructure/stores"
	"github.com/wms-platform/verification-service/pkg/cloudevents"
	"github.com/wms-platform/verification-service/pkg/kafka"
	"github.com/wms-platform/verification-service/pkg/logging"
	"github.com/wms-platform/verification-service/pkg/metrics"
	"github.com/wms-platform/verification-service/pkg/middleware"
	"github.com/wms-platform/verification-service/pkg/outbox"
	"github.com/wms-platform/verification-service/pkg/tracing"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.DefaultConfig("verification-service")).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(cfg.ServiceName)
	logConfig.Level = cfg.LogLevel
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting verification-service API", "store", cfg.StoreBackend)
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracerProvider, err := tracing.Initialize(ctx, cfg.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		if cfg.Tracing.Enabled {
			logger.Info("Tracing initialized", "endpoint", cfg.Tracing.OTLPEndpoint)
		}
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(cfg.ServiceName))

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceVerification)

	// Initialize the plan store
	backend, err := stores.Open(ctx, cfg, eventFactory)
	if err != nil {
		logger.WithError(err).Error("Failed to open plan store", "store", cfg.StoreBackend)
		os.Exit(1)
	}
	defer backend.Close(context.Background())
	logger.Info("Plan store ready", "store", backend.Backend)

	readiness := map[string]func() error{
		backend.Backend: func() error { return backend.HealthCheck(ctx) },
	}

	// Session pointers are optional
	var sessions domain.SessionStore
	if cfg.RedisAddr != "" {
		client, err := redisStore.NewClient(ctx, redisStore.Config{Addr: cfg.RedisAddr})
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Redis", "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		defer client.Close()

		store := redisStore.NewSessionStore(client, cfg.SessionTTL)
		sessions = store
		readiness["redis"] = func() error { return store.HealthCheck(ctx) }
		logger.Info("Connected to Redis", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	}

	// Initialize Kafka producer with instrumentation
	kafkaProducer := kafka.NewProducer(cfg.Kafka)
	instrumentedProducer := kafka.NewInstrumentedProducer(kafkaProducer, m, logger)
	defer kafkaProducer.Close()
	logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)

	// Initialize and start outbox publisher
	outboxPublisher := outbox.NewPublisher(
		backend.Outbox,
		instrumentedProducer,
		logger,
		m,
		&outbox.PublisherConfig{
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
			Retention:    7 * 24 * time.Hour,
		},
	)
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	var decoder *barcode.Decoder
	if cfg.StructuredCodes {
		decoder = cfg.Decoder()
		logger.Info("Structured codes enabled", "registry", cfg.ScanRegistry.String(), "primary", cfg.PrimaryIdentifier)
	}

	// Initialize application service
	service := application.NewVerificationService(
		instrumented.NewPlanRepository(backend.Plans, backend.Backend, m, logger),
		instrumented.NewStaffDirectory(backend.Staff, backend.Backend, m, logger),
		sessions,
		decoder,
		m,
		logger,
	)

	// Setup Gin router with middleware
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	middlewareConfig := middleware.DefaultConfig(cfg.ServiceName, logger.Logger)
	middlewareConfig.Metrics = m
	middlewareConfig.EnableTracing = cfg.Tracing.Enabled
	middlewareConfig.AllowOrigins = cfg.CORSOrigins
	middleware.Setup(router, middlewareConfig)

	// Health check endpoints
	router.GET("/health", middleware.HealthCheck(cfg.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(cfg.ServiceName, readiness))

	// Metrics endpoint
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	// API v1 routes
	apihttp.RegisterRoutes(router, apihttp.NewHandlers(service, logger))

	// Start server
	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
