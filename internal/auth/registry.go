// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

// Package auth provides the API token registry and the request guards that
// enforce token and page access.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/kadarmate/pulse/internal/models"
)

// ErrTokenNotFound signals that the presented token is not provisioned.
var ErrTokenNotFound = errors.New("token not found")

// Registry looks up provisioned API tokens by their plaintext secret.
type Registry interface {
	Lookup(ctx context.Context, secret string) (*models.Token, error)
}

// HashSecret returns the hex-encoded SHA-256 of a token secret. Registries
// key records by this hash so plaintext secrets never touch storage. SHA-256
// rather than an adaptive hash: secrets here are high-entropy provisioned
// values checked on every ingest request, not user passwords.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// MemoryRegistry is an in-memory Registry for tests and single-process
// setups without a token store directory.
type MemoryRegistry struct {
	mu     sync.RWMutex
	tokens map[string]*models.Token
}

// NewMemoryRegistry returns an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tokens: make(map[string]*models.Token)}
}

// Provision adds a seed record to the registry.
func (r *MemoryRegistry) Provision(seed models.TokenSeed) {
	hash := HashSecret(seed.Token)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[hash] = &models.Token{
		ID:        hash,
		Owner:     seed.Owner,
		Pages:     seed.Pages,
		CreatedAt: time.Now().UTC(),
	}
}

// Lookup implements Registry.
func (r *MemoryRegistry) Lookup(_ context.Context, secret string) (*models.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[HashSecret(secret)]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return token, nil
}
