// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

// Package api implements the HTTP surface: event ingestion, filtered event
// listing, usage statistics, the page listing, the live feed, and health
// endpoints.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/kadarmate/pulse/internal/auth"
	"github.com/kadarmate/pulse/internal/config"
	"github.com/kadarmate/pulse/internal/database"
	"github.com/kadarmate/pulse/internal/livefeed"
	"github.com/kadarmate/pulse/internal/logging"
	"github.com/kadarmate/pulse/internal/metrics"
	"github.com/kadarmate/pulse/internal/models"
	"github.com/kadarmate/pulse/internal/session"
	"github.com/kadarmate/pulse/internal/tenant"
	"github.com/kadarmate/pulse/internal/validation"
)

const maxTrackBodyBytes = 64 * 1024

// Handler carries the dependencies of all HTTP handlers.
//
// db and resolver are nil when the event store failed to open at startup; in
// that degraded state data endpoints answer 503 while health and metrics stay
// up.
type Handler struct {
	db        *database.DB
	resolver  *tenant.Resolver
	sessions  *session.Tracker
	hub       *livefeed.Hub
	cfg       *config.Config
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewHandler wires the handler set. db and resolver may be nil for degraded
// operation; hub may be nil when the live feed is not running.
func NewHandler(db *database.DB, resolver *tenant.Resolver, sessions *session.Tracker, hub *livefeed.Hub, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		resolver:  resolver,
		sessions:  sessions,
		hub:       hub,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin enforcement happens in the CORS middleware; the
			// upgrade itself is token-guarded.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		startTime: time.Now(),
	}
}

// storeReady answers 503 and returns false while the event store is down.
func (h *Handler) storeReady(w http.ResponseWriter) bool {
	if h.db == nil || h.resolver == nil {
		respondError(w, http.StatusServiceUnavailable, "Storage unavailable", "")
		return false
	}
	return true
}

// Pages returns the page names the calling token is authorized for.
func (h *Handler) Pages(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.GetToken(r.Context())
	if !ok {
		// Single-tenant mode has no token and therefore no grant list.
		respondJSON(w, http.StatusOK, []string{})
		return
	}
	pages := token.Pages
	if pages == nil {
		pages = []string{}
	}
	respondJSON(w, http.StatusOK, pages)
}

// Track ingests one event into the page's partition.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	page := chi.URLParam(r, "page")

	sessionID, _, err := h.sessions.Establish(w, r)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("consent").Inc()
		respondError(w, http.StatusForbidden, "Cookie consent required", "")
		return
	}

	var req models.TrackRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxTrackBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := validation.ValidateStruct(&req); err != nil {
		metrics.EventsRejected.WithLabelValues("validation").Inc()
		respondError(w, http.StatusBadRequest, "Invalid event", err.Error())
		return
	}

	key := h.resolver.Resolve(r.Context(), auth.GetSecret(r.Context()), page)
	event := models.Event{
		EventName:  req.EventName,
		Timestamp:  time.Now().UTC(),
		Parameters: req.Parameters,
		SessionID:  sessionID,
	}

	if err := h.db.InsertEvent(r.Context(), key, &event); err != nil {
		if errors.Is(err, models.ErrUserIDNotString) {
			// Write-time schema rejection surfaces like any other storage
			// failure on this endpoint.
			metrics.EventsRejected.WithLabelValues("validation").Inc()
			respondError(w, http.StatusInternalServerError, "Failed to save event", err.Error())
			return
		}
		metrics.EventsRejected.WithLabelValues("storage").Inc()
		logging.Error().Err(err).Str("partition", key).Msg("Event insert failed")
		respondError(w, http.StatusInternalServerError, "Failed to save event", "")
		return
	}

	metrics.EventsIngested.WithLabelValues(key).Inc()
	if h.hub != nil {
		h.hub.BroadcastEvent(key, &event)
	}

	respondJSON(w, http.StatusCreated, models.TrackResponse{
		Message:   "Event tracked",
		SessionID: sessionID,
	})
}

// Events lists events of the page's partition, newest first.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	page := chi.URLParam(r, "page")

	filter, err := parseEventFilter(r, h.cfg.API, true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid query parameters", err.Error())
		return
	}

	key := h.resolver.Resolve(r.Context(), auth.GetSecret(r.Context()), page)
	events, err := h.db.QueryEvents(r.Context(), key, filter)
	if err != nil {
		logging.Error().Err(err).Str("partition", key).Msg("Event query failed")
		respondError(w, http.StatusInternalServerError, "Failed to query events", "")
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// Stats returns aggregated per-event-name usage statistics for the page.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if !h.storeReady(w) {
		return
	}
	page := chi.URLParam(r, "page")

	filter, err := parseEventFilter(r, h.cfg.API, false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid query parameters", err.Error())
		return
	}

	key := h.resolver.Resolve(r.Context(), auth.GetSecret(r.Context()), page)
	stats, err := h.db.AggregateStats(r.Context(), key, filter)
	if err != nil {
		logging.Error().Err(err).Str("partition", key).Msg("Stats aggregation failed")
		respondError(w, http.StatusInternalServerError, "Failed to compute stats", "")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// Live upgrades the connection to a WebSocket subscribed to the page's
// partition. Every event ingested into the partition afterwards is pushed to
// the subscriber.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil || h.resolver == nil {
		respondError(w, http.StatusServiceUnavailable, "Live feed unavailable", "")
		return
	}
	page := chi.URLParam(r, "page")
	key := h.resolver.Resolve(r.Context(), auth.GetSecret(r.Context()), page)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := livefeed.NewClient(h.hub, conn, key)
	h.hub.Register <- client
	client.Start()
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// HealthReady reports whether the event store is reachable.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		respondError(w, http.StatusServiceUnavailable, "Storage unavailable", "")
		return
	}
	if err := h.db.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "Storage unreachable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
