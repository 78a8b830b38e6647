// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

// Package tenant maps (token, page) pairs onto storage partitions and seeds
// new partitions with template data exactly once.
package tenant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/kadarmate/pulse/internal/logging"
	"github.com/kadarmate/pulse/internal/metrics"
	"github.com/kadarmate/pulse/internal/models"
)

// Store is the slice of the event store the resolver needs for bootstrap.
type Store interface {
	CountEvents(ctx context.Context, partitionKey string) (int64, error)
	InsertEvents(ctx context.Context, partitionKey string, events []models.Event) error
}

// PartitionKey derives the storage partition for a token and page. The token
// is hashed so raw credentials never appear in storage or logs; 16 hex chars
// of SHA-256 keep keys short while making cross-tenant collisions
// implausible. An empty token (single-tenant mode) keys by page alone.
func PartitionKey(token, page string) string {
	if token == "" {
		return page
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16] + ":" + page
}

// Resolver hands out partition keys and runs the one-time template bootstrap
// for partitions seen for the first time.
type Resolver struct {
	store  Store
	source TemplateSource

	// Per-partition bootstrap locks, same pattern as the store's per-row
	// write locks: LoadOrStore keyed by partition.
	locks sync.Map

	seeded   sync.Map // partitionKey -> struct{}
	seededMu sync.Mutex
	count    int
}

// NewResolver returns a Resolver backed by the given store and template
// source. source may be nil when no template seeding is configured.
func NewResolver(store Store, source TemplateSource) *Resolver {
	return &Resolver{store: store, source: source}
}

// Resolve returns the partition key for the request and triggers the
// bootstrap if this is the first time the partition is used. Bootstrap
// problems are logged and swallowed: template data is a convenience, and its
// absence must never block ingestion.
func (r *Resolver) Resolve(ctx context.Context, token, page string) string {
	key := PartitionKey(token, page)

	if _, done := r.seeded.Load(key); done {
		return key
	}

	mu := r.acquireLock(key)
	defer mu.Unlock()

	// Another request may have finished the bootstrap while we waited.
	if _, done := r.seeded.Load(key); done {
		return key
	}

	r.bootstrap(ctx, key, page)
	r.markSeeded(key)
	return key
}

// bootstrap seeds the partition with template data when it is empty. Runs
// under the partition lock.
func (r *Resolver) bootstrap(ctx context.Context, key, page string) {
	count, err := r.store.CountEvents(ctx, key)
	if err != nil {
		logging.Warn().Err(err).Str("partition", key).Msg("Partition bootstrap: count failed, skipping seed")
		return
	}
	if count > 0 || r.source == nil {
		return
	}

	events, err := r.source.Load(ctx, page)
	if err != nil {
		if !errors.Is(err, ErrNoTemplate) {
			logging.Warn().Err(err).Str("page", page).Msg("Partition bootstrap: template load failed")
		}
		return
	}
	if len(events) == 0 {
		return
	}

	if err := r.store.InsertEvents(ctx, key, events); err != nil {
		logging.Warn().Err(err).Str("partition", key).Msg("Partition bootstrap: template insert failed")
		return
	}

	metrics.PartitionBootstraps.Inc()
	logging.Info().Str("partition", key).Int("events", len(events)).Msg("Partition seeded with template data")
}

// markSeeded records that the bootstrap ran for this partition, successful
// or not. Failed bootstraps are not retried; the partition simply starts
// empty.
func (r *Resolver) markSeeded(key string) {
	if _, loaded := r.seeded.LoadOrStore(key, struct{}{}); !loaded {
		r.seededMu.Lock()
		r.count++
		metrics.PartitionCacheSize.Set(float64(r.count))
		r.seededMu.Unlock()
	}
}

func (r *Resolver) acquireLock(key string) *sync.Mutex {
	muInterface, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	mu, ok := muInterface.(*sync.Mutex)
	if !ok {
		mu = &sync.Mutex{}
		r.locks.Store(key, mu)
	}
	mu.Lock()
	return mu
}
