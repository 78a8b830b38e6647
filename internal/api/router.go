// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kadarmate/pulse/internal/auth"
	"github.com/kadarmate/pulse/internal/config"
	"github.com/kadarmate/pulse/internal/middleware"
)

// NewRouter assembles the chi router: ambient middleware first, then the
// health and metrics endpoints, then the token-guarded API surface.
func NewRouter(h *Handler, guard *auth.Guard, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.Origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", auth.TokenHeader},
		// Consent and session cookies ride along on browser calls.
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !cfg.RateLimit.Disabled {
		r.Use(httprate.LimitByIP(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(guard.RequireToken)
		r.Get("/pages", h.Pages)
	})

	r.Route("/{page}", func(r chi.Router) {
		r.Use(guard.RequireToken)
		r.Use(guard.RequirePage)
		r.Post("/track", h.Track)
		r.Get("/events", h.Events)
		r.Get("/stats", h.Stats)
		r.Get("/live", h.Live)
	})

	return r
}
