// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

// Package session implements consent-gated visitor sessions. A session only
// exists once the visitor's browser carries the consent cookie; without it no
// identifier is issued and nothing is tracked.
package session

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kadarmate/pulse/internal/config"
)

// ErrConsentRequired signals that the request carried no cookie consent and
// therefore no session may be established.
var ErrConsentRequired = errors.New("cookie consent required")

// consentGranted is the only consent cookie value that counts as consent.
// Anything else, including a present-but-false cookie, is a refusal.
const consentGranted = "true"

// Tracker issues and recognizes session cookies.
type Tracker struct {
	cfg config.SessionConfig
}

// NewTracker returns a Tracker using the given cookie configuration.
func NewTracker(cfg config.SessionConfig) *Tracker {
	return &Tracker{cfg: cfg}
}

// Establish returns the request's session id, creating a new session when
// the visitor has consented but carries none. created reports whether a new
// id was issued this call. Without consent it returns ErrConsentRequired and
// touches nothing.
func (t *Tracker) Establish(w http.ResponseWriter, r *http.Request) (string, bool, error) {
	consent, err := r.Cookie(t.cfg.Consent)
	if err != nil || consent.Value != consentGranted {
		return "", false, ErrConsentRequired
	}

	if existing, err := r.Cookie(t.cfg.Cookie); err == nil && existing.Value != "" {
		if _, err := uuid.Parse(existing.Value); err == nil {
			return existing.Value, false, nil
		}
		// A malformed cookie is replaced rather than trusted.
	}

	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     t.cfg.Cookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(t.cfg.TTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id, true, nil
}

// Peek returns the session id carried by the request without issuing one.
// Used by read endpoints that filter by session but never create sessions.
func (t *Tracker) Peek(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(t.cfg.Cookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
