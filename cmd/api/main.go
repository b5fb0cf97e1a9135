package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/metergate-platform/metergate/internal/admission"
	"github.com/metergate-platform/metergate/internal/api"
	"github.com/metergate-platform/metergate/internal/audit"
	"github.com/metergate-platform/metergate/internal/auth"
	"github.com/metergate-platform/metergate/internal/config"
	"github.com/metergate-platform/metergate/internal/database"
	"github.com/metergate-platform/metergate/internal/events"
	"github.com/metergate-platform/metergate/internal/quota"
	iredis "github.com/metergate-platform/metergate/internal/redis"
	"github.com/metergate-platform/metergate/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("validating config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// PostgreSQL
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS is optional: without it the service runs with events disabled.
	var eventsClient *events.Client
	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		eventsClient, err = events.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Warn("connecting to NATS, continuing without events", "error", err)
		} else {
			defer eventsClient.Close()
			publisher = events.NewPublisher(eventsClient.JetStream())
		}
	}

	// Auth glue
	verifier := auth.NewVerifier(cfg.JWT.AccessSecret)

	// Quota reset scheduler
	quotaRepo := quota.NewPostgresRepository(pool)
	leases := quota.NewRedisLeaseStore(redisClient)
	scheduler := quota.NewScheduler(quotaRepo, leases, cfg.Quota, publisher)
	quotaHandler := quota.NewHandler(quotaRepo, scheduler, cfg.Quota, publisher)

	// Admission control
	var store admission.Store
	if cfg.Admission.Backend == "memory" {
		store, err = admission.NewMemoryStore(cfg.Admission)
	} else {
		store, err = admission.NewRedisStore(redisClient, cfg.Admission)
	}
	if err != nil {
		slog.Error("building admission store", "error", err)
		os.Exit(1)
	}
	controller := admission.NewController(store, publisher)
	admissionHandler := admission.NewHandler(controller)

	// Audit trail
	auditRepo := audit.NewRepository(pool)
	auditHandler := audit.NewHandler(auditRepo)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if eventsClient != nil {
		consumer := audit.NewConsumer(auditRepo, events.NewConsumerManager(eventsClient.JetStream()))
		go func() {
			if err := consumer.Start(consumerCtx); err != nil {
				slog.Error("audit consumer stopped", "error", err)
			}
		}()
	}

	// Router
	router := api.NewRouter(pool, redisClient, eventsClient, api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
	}, api.HandlerSet{
		TriggerReset:      quotaHandler.TriggerReset,
		GetQuota:          quotaHandler.GetQuota,
		AdminTriggerReset: quotaHandler.AdminTriggerReset,
		UpsertQuota:       quotaHandler.UpsertQuota,
		DeleteQuota:       quotaHandler.DeleteQuota,

		AdmissionLimits: admissionHandler.Limits,
		ListAuditLogs:   auditHandler.List,

		AuthMiddleware: auth.Middleware(verifier),
		RequireAdmin:   auth.RequireAdmin,
		AdmitGeneral:   controller.Middleware(admission.ClassGeneral),
		AdmitBatch:     controller.Middleware(admission.ClassBatch),
		AdmitDelete:    controller.Middleware(admission.ClassDelete),
	})

	// In-process cron trigger
	cronTrigger := quota.NewCronTrigger(scheduler, cfg.Quota.Schedule)
	if err := cronTrigger.Start(ctx); err != nil {
		slog.Error("starting quota cron trigger", "error", err)
		os.Exit(1)
	}

	// Start server
	srv := server.New(cfg.Server, router)
	srv.OnShutdown(cronTrigger.Stop)
	srv.OnShutdown(stopConsumer)
	if err := srv.Start(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
