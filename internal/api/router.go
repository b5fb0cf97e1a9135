package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/metergate-platform/metergate/internal/database"
	"github.com/metergate-platform/metergate/internal/events"
	mw "github.com/metergate-platform/metergate/internal/middleware"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Quota handlers
	TriggerReset      http.HandlerFunc
	GetQuota          http.HandlerFunc
	AdminTriggerReset http.HandlerFunc
	UpsertQuota       http.HandlerFunc
	DeleteQuota       http.HandlerFunc

	// Admission handlers
	AdmissionLimits http.HandlerFunc

	// Audit handlers
	ListAuditLogs http.HandlerFunc

	// Middleware
	AuthMiddleware func(http.Handler) http.Handler
	RequireAdmin   func(http.Handler) http.Handler
	AdmitGeneral   func(http.Handler) http.Handler
	AdmitBatch     func(http.Handler) http.Handler
	AdmitDelete    func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
}

func NewRouter(pool *pgxpool.Pool, redisClient *redis.Client, eventsClient *events.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB, Redis, NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if err := redisClient.Ping(r.Context()).Err(); err != nil {
			health["redis"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if eventsClient != nil && !eventsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if eventsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Operational trigger — shared-secret auth inside the handler
	r.Post("/internal/quota/reset", h.TriggerReset)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Get("/quota", h.GetQuota)

			// Privileged surface: admin role plus per-class admission
			r.Route("/admin", func(r chi.Router) {
				r.Use(h.RequireAdmin)

				r.Group(func(r chi.Router) {
					r.Use(h.AdmitGeneral)
					r.Get("/limits", h.AdmissionLimits)
					r.Get("/audit", h.ListAuditLogs)
					r.Put("/quota/{userID}", h.UpsertQuota)
				})

				r.Group(func(r chi.Router) {
					r.Use(h.AdmitBatch)
					r.Post("/quota/reset-runs", h.AdminTriggerReset)
				})

				r.Group(func(r chi.Router) {
					r.Use(h.AdmitDelete)
					r.Delete("/quota/{userID}", h.DeleteQuota)
				})
			})
		})
	})

	return r
}
