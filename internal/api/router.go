package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentoven/larder/internal/api/handlers"
	"github.com/agentoven/larder/internal/api/middleware"
	"github.com/agentoven/larder/internal/config"
	"github.com/agentoven/larder/internal/telegram"
)

// NewRouter creates the HTTP router with all routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	r.With(middleware.WebhookSecret(telegram.SecretHeader, cfg.Telegram.WebhookSecret)).
		Post("/telegram/webhook", h.TelegramWebhook)

	admin := middleware.NewAPIKeyAuth(cfg.Admin.APIKey)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
		r.Use(admin.Middleware)

		r.Route("/engrams", func(r chi.Router) {
			r.Get("/", h.ListEngrams)
			r.Post("/", h.LearnEngram)
			r.Post("/sweep", h.SweepEngrams)
		})

		r.Route("/pipelines", func(r chi.Router) {
			r.Get("/", h.ListPipelines)
			r.Get("/{name}", h.GetPipeline)
		})

		r.Get("/items", h.ListItems)
		r.Post("/resolve", h.Resolve)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "larder",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "larder",
		})
	}
}
