// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/kadarmate/pulse/internal/config"
	"github.com/kadarmate/pulse/internal/database"
	"github.com/kadarmate/pulse/internal/logging"
	"github.com/kadarmate/pulse/internal/models"
)

// respondJSON writes v as the JSON response body with the given status.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// respondError writes the error body every non-2xx response carries.
func respondError(w http.ResponseWriter, status int, msg, details string) {
	respondJSON(w, status, models.ErrorResponse{Error: msg, Details: details})
}

// timeLayouts are accepted formats for startDate/endDate query params, tried
// in order.
var timeLayouts = []string{time.RFC3339, "2006-01-02"}

func parseTimeParam(value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected RFC3339 or YYYY-MM-DD", value)
}

// parseEventFilter reads the shared query parameters of the events and stats
// endpoints. withLimit controls whether the limit parameter applies; stats
// aggregate all matches.
func parseEventFilter(r *http.Request, cfg config.APIConfig, withLimit bool) (database.EventFilter, error) {
	q := r.URL.Query()
	filter := database.EventFilter{
		EventName: q.Get("eventName"),
		SessionID: q.Get("sessionId"),
	}

	if raw := q.Get("startDate"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return filter, fmt.Errorf("startDate: %w", err)
		}
		filter.StartDate = &t
	}
	if raw := q.Get("endDate"); raw != "" {
		t, err := parseTimeParam(raw)
		if err != nil {
			return filter, fmt.Errorf("endDate: %w", err)
		}
		filter.EndDate = &t
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return filter, fmt.Errorf("endDate precedes startDate")
	}

	if !withLimit {
		return filter, nil
	}

	filter.Limit = cfg.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		if limit > cfg.MaxLimit {
			limit = cfg.MaxLimit
		}
		filter.Limit = limit
	}
	return filter, nil
}
