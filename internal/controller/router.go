package controller

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/merchantskit/merchants/internal/infrastructure/config"
	"github.com/merchantskit/merchants/internal/infrastructure/observability"
	customMW "github.com/merchantskit/merchants/internal/middleware"
	"github.com/merchantskit/merchants/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type RouterDeps struct {
	Pool           *pgxpool.Pool
	RedisClient    *redis.Client
	SessionService *service.SessionService
	Metrics        *observability.Metrics
	CORSConfig     config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Merchants-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	healthH := NewHealthController(deps.Pool, deps.RedisClient)
	sessionH := NewSessionController(deps.SessionService)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/checkout", sessionH.CreateCheckout)

		r.Get("/sessions", sessionH.ListSessions)
		r.Get("/sessions/{payment_id}", sessionH.GetSession)
		r.Post("/sessions/{payment_id}/refund", sessionH.RefundSession)
		r.Post("/sessions/{payment_id}/cancel", sessionH.CancelSession)
		r.Post("/sessions/{payment_id}/sync", sessionH.SyncSession)

		r.Post("/sessions/actions/{action}", sessionH.BulkAction)
	})

	// Provider-facing endpoints live outside the versioned API surface.
	r.Post("/webhook", sessionH.Webhook)
	r.Get("/checkout/success", sessionH.CheckoutSuccess)
	r.Get("/checkout/cancel", sessionH.CheckoutCancel)

	return r
}
