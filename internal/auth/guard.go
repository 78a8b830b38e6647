// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/kadarmate/pulse/internal/logging"
	"github.com/kadarmate/pulse/internal/models"
)

// TokenHeader is the request header carrying the API token secret.
const TokenHeader = "x-api-token"

type contextKey string

const (
	tokenKey  contextKey = "auth_token"
	secretKey contextKey = "auth_secret"
)

// GetToken returns the token record attached by RequireToken. ok is false in
// single-tenant mode.
func GetToken(ctx context.Context) (*models.Token, bool) {
	token, ok := ctx.Value(tokenKey).(*models.Token)
	return token, ok
}

// GetSecret returns the raw token secret attached by RequireToken. Empty in
// single-tenant mode; used only to derive partition keys.
func GetSecret(ctx context.Context) string {
	secret, _ := ctx.Value(secretKey).(string)
	return secret
}

// Guard builds the token and page middleware for the protected routes.
type Guard struct {
	registry Registry
	enabled  bool
}

// NewGuard returns a Guard. When enabled is false both middlewares pass
// every request through, giving single-tenant behavior.
func NewGuard(registry Registry, enabled bool) *Guard {
	return &Guard{registry: registry, enabled: enabled}
}

// RequireToken validates the x-api-token header against the registry and
// attaches the token record to the request context. A missing header is 401,
// an unprovisioned token 403.
func (g *Guard) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.enabled {
			next.ServeHTTP(w, r)
			return
		}

		secret := r.Header.Get(TokenHeader)
		if secret == "" {
			writeGuardError(w, http.StatusUnauthorized, "Missing API token", "")
			return
		}

		token, err := g.registry.Lookup(r.Context(), secret)
		if err != nil {
			if errors.Is(err, ErrTokenNotFound) {
				writeGuardError(w, http.StatusForbidden, "Invalid API token", "")
				return
			}
			logging.Error().Err(err).Msg("Token lookup failed")
			writeGuardError(w, http.StatusInternalServerError, "Token verification failed", "")
			return
		}

		ctx := context.WithValue(r.Context(), tokenKey, token)
		ctx = context.WithValue(ctx, secretKey, secret)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePage checks that the page route parameter is present and, when auth
// is enabled, that the request's token is granted access to it.
func (g *Guard) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := chi.URLParam(r, "page")
		if page == "" {
			writeGuardError(w, http.StatusBadRequest, "Page is required", "")
			return
		}

		if g.enabled {
			token, ok := GetToken(r.Context())
			if !ok {
				// RequirePage must always run behind RequireToken.
				writeGuardError(w, http.StatusUnauthorized, "Missing API token", "")
				return
			}
			if !token.HasPage(page) {
				writeGuardError(w, http.StatusForbidden, "Access denied for page", page)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func writeGuardError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg, Details: details})
}
