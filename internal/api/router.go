package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragline-platform/ragline/internal/config"
	"github.com/ragline-platform/ragline/internal/database"
	mw "github.com/ragline-platform/ragline/internal/middleware"
)

// HandlerSet collects the handlers the router mounts. LineWebhook is
// optional; a nil handler leaves the endpoint unmounted.
type HandlerSet struct {
	Ask            http.HandlerFunc
	ListModels     http.HandlerFunc
	SwitchModel    http.HandlerFunc
	GetHistory     http.HandlerFunc
	SetHistory     http.HandlerFunc
	UploadDocument http.HandlerFunc
	ListMemories   http.HandlerFunc
	DeleteMemory   http.HandlerFunc
	LineWebhook    http.Handler

	AskRateLimiter *mw.RateLimiter
}

// NewRouter builds the HTTP routing tree.
func NewRouter(cfg *config.Config, pool *pgxpool.Pool, handlers HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.Metrics)
	r.Use(mw.SecurityHeaders)
	r.Use(cors.Handler(mw.CORS(cfg.CORS.AllowedOrigins)))
	r.Use(chimw.RealIP)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		JSONMessage(w, http.StatusOK, "ok")
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := database.HealthCheck(ctx, pool); err != nil {
			JSONErrorMessage(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		JSONMessage(w, http.StatusOK, "ready")
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if handlers.AskRateLimiter != nil {
				r.Use(handlers.AskRateLimiter.Middleware)
			}
			r.Post("/ask", handlers.Ask)
		})

		r.Get("/models", handlers.ListModels)
		r.Post("/models/switch", handlers.SwitchModel)

		r.Get("/history", handlers.GetHistory)
		r.Post("/history", handlers.SetHistory)

		r.Post("/documents", handlers.UploadDocument)

		r.Get("/memories", handlers.ListMemories)
		r.Delete("/memories/{memoryID}", handlers.DeleteMemory)
	})

	if handlers.LineWebhook != nil {
		r.Post("/line/webhook", handlers.LineWebhook.ServeHTTP)
	}

	return r
}
