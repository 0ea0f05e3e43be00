// Package router assembles the HTTP surface of the dialog engine.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/consultly/dialog-engine/internal/http/handlers"
	httpmiddleware "github.com/consultly/dialog-engine/internal/http/middleware"
	"github.com/consultly/dialog-engine/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	DialogHandler      *handlers.DialogHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// RateLimitRPS caps per-IP request rates when > 0.
	RateLimitRPS   float64
	RateLimitBurst int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitRPS > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	r.Get("/healthz", cfg.DialogHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1/dialog", func(r chi.Router) {
		r.Post("/message", cfg.DialogHandler.HandleMessage)
	})

	return r
}
