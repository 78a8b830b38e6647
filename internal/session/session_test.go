// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kadarmate/pulse/internal/config"
)

func testTracker() *Tracker {
	return NewTracker(config.SessionConfig{
		Cookie:  "sessionId",
		Consent: "cookiesAccepted",
		TTL:     30 * 24 * time.Hour,
	})
}

func TestEstablishRequiresConsent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cookies []*http.Cookie
	}{
		{"no cookies", nil},
		{"consent false", []*http.Cookie{{Name: "cookiesAccepted", Value: "false"}}},
		{"consent empty", []*http.Cookie{{Name: "cookiesAccepted", Value: ""}}},
		{"consent wrong case", []*http.Cookie{{Name: "cookiesAccepted", Value: "True"}}},
		{
			"session without consent",
			[]*http.Cookie{{Name: "sessionId", Value: uuid.New().String()}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := testTracker()
			req := httptest.NewRequest(http.MethodPost, "/track", nil)
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}
			rec := httptest.NewRecorder()

			_, _, err := tracker.Establish(rec, req)
			if !errors.Is(err, ErrConsentRequired) {
				t.Errorf("expected ErrConsentRequired, got %v", err)
			}
			if len(rec.Result().Cookies()) != 0 {
				t.Error("cookie issued without consent")
			}
		})
	}
}

func TestEstablishIssuesSession(t *testing.T) {
	t.Parallel()

	tracker := testTracker()
	req := httptest.NewRequest(http.MethodPost, "/track", nil)
	req.AddCookie(&http.Cookie{Name: "cookiesAccepted", Value: "true"})
	rec := httptest.NewRecorder()

	id, created, err := tracker.Establish(rec, req)
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if !created {
		t.Error("expected created = true for first visit")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("session id %q is not a UUID", id)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies, expected 1", len(cookies))
	}
	c := cookies[0]
	if c.Name != "sessionId" || c.Value != id {
		t.Errorf("unexpected cookie %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly {
		t.Error("session cookie must be http-only")
	}
	if c.MaxAge != int((30 * 24 * time.Hour).Seconds()) {
		t.Errorf("cookie max-age = %d, expected 30 days", c.MaxAge)
	}
}

func TestEstablishReusesExistingSession(t *testing.T) {
	t.Parallel()

	tracker := testTracker()
	existing := uuid.New().String()

	req := httptest.NewRequest(http.MethodPost, "/track", nil)
	req.AddCookie(&http.Cookie{Name: "cookiesAccepted", Value: "true"})
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: existing})
	rec := httptest.NewRecorder()

	id, created, err := tracker.Establish(rec, req)
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if created {
		t.Error("expected created = false when session exists")
	}
	if id != existing {
		t.Errorf("id = %q, expected existing %q", id, existing)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("cookie re-issued for existing session")
	}
}

func TestEstablishReplacesMalformedSession(t *testing.T) {
	t.Parallel()

	tracker := testTracker()
	req := httptest.NewRequest(http.MethodPost, "/track", nil)
	req.AddCookie(&http.Cookie{Name: "cookiesAccepted", Value: "true"})
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: "not-a-uuid"})
	rec := httptest.NewRecorder()

	id, created, err := tracker.Establish(rec, req)
	if err != nil {
		t.Fatalf("Establish: %v", err)
	}
	if !created {
		t.Error("malformed session should be replaced")
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("replacement id %q is not a UUID", id)
	}
}

func TestPeek(t *testing.T) {
	t.Parallel()

	tracker := testTracker()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	if _, ok := tracker.Peek(req); ok {
		t.Error("Peek found a session on a bare request")
	}

	id := uuid.New().String()
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: id})
	got, ok := tracker.Peek(req)
	if !ok || got != id {
		t.Errorf("Peek = %q/%v, expected %q", got, ok, id)
	}
}
