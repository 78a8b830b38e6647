// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

// Package main is the entry point for the Pulse server.
//
// Pulse is a multi-tenant event-tracking backend: client sites push named
// events with free-form parameters under consent-gated sessions, and
// operators query raw events or rolled-up usage statistics, scoped by API
// token and page.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layering defaults, config.yaml, PULSE_* env
//  2. Logging: zerolog, level and format from config
//  3. Event store: DuckDB; failure leaves the server degraded, not dead
//  4. Token registry: BadgerDB, optionally seeded from a YAML file
//  5. Live feed hub: WebSocket fan-out of ingested events
//  6. HTTP server: chi router with CORS, rate limiting, and Prometheus
//
// A failed event store connection is logged and the server keeps running:
// health and metrics endpoints stay up, data endpoints answer 503 until the
// next restart. A failed token registry with auth enabled is fatal, since
// the server could neither authenticate nor safely skip authentication.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the listener closes,
// in-flight requests get 10 seconds to finish, then the stores are closed.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kadarmate/pulse/internal/api"
	"github.com/kadarmate/pulse/internal/auth"
	"github.com/kadarmate/pulse/internal/config"
	"github.com/kadarmate/pulse/internal/database"
	"github.com/kadarmate/pulse/internal/livefeed"
	"github.com/kadarmate/pulse/internal/logging"
	"github.com/kadarmate/pulse/internal/session"
	"github.com/kadarmate/pulse/internal/tenant"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("addr", cfg.Server.Addr()).Bool("auth", cfg.Auth.Enabled).Msg("Starting Pulse")

	// Event store. A failure here is survivable: the process
	// stays up in a degraded state so orchestrators see the health surface
	// instead of a crash loop.
	var (
		db       *database.DB
		resolver *tenant.Resolver
	)
	db, err = database.New(&cfg.Database)
	if err != nil {
		logging.Error().Err(err).Msg("Event store unavailable, running degraded")
		db = nil
	} else {
		defer func() { _ = db.Close() }()
		resolver = tenant.NewResolver(db, tenant.NewDirSource(cfg.Templates.Dir))
	}

	var registry auth.Registry
	if cfg.Auth.Enabled {
		badgerRegistry, err := auth.OpenBadgerRegistry(cfg.Auth.Store)
		if err != nil {
			logging.Fatal().Err(err).Str("store", cfg.Auth.Store).Msg("Failed to open token registry")
		}
		defer func() { _ = badgerRegistry.Close() }()

		if cfg.Auth.SeedFile != "" {
			if err := badgerRegistry.SeedFromFile(context.Background(), cfg.Auth.SeedFile); err != nil {
				logging.Fatal().Err(err).Str("file", cfg.Auth.SeedFile).Msg("Failed to seed token registry")
			}
		}
		registry = badgerRegistry
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := livefeed.NewHub()
	go func() {
		if err := hub.RunWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Live feed hub exited")
		}
	}()

	handler := api.NewHandler(db, resolver, session.NewTracker(cfg.Session), hub, cfg)
	guard := auth.NewGuard(registry, cfg.Auth.Enabled)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.NewRouter(handler, guard, cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * cfg.Server.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("HTTP server failed")
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Graceful shutdown failed")
	}
	logging.Info().Msg("Pulse stopped")
}
