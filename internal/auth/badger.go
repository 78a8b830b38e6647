// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kadarmate/pulse/internal/logging"
	"github.com/kadarmate/pulse/internal/models"
)

const tokenKeyPrefix = "token:"

// BadgerRegistry implements Registry using BadgerDB for durable storage, so
// provisioned tokens survive restarts.
type BadgerRegistry struct {
	db *badger.DB
}

// OpenBadgerRegistry opens (or creates) the token store at dir.
func OpenBadgerRegistry(dir string) (*BadgerRegistry, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}
	return &BadgerRegistry{db: db}, nil
}

// Close closes the underlying store.
func (r *BadgerRegistry) Close() error {
	return r.db.Close()
}

// Provision writes a token record derived from the seed. Existing records
// for the same secret are overwritten, which lets operators rotate page
// grants by re-seeding.
func (r *BadgerRegistry) Provision(ctx context.Context, seed models.TokenSeed) error {
	hash := HashSecret(seed.Token)
	token := &models.Token{
		ID:        hash,
		Owner:     seed.Owner,
		Pages:     seed.Pages,
		CreatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(tokenKeyPrefix+hash), data)
	})
}

// Lookup implements Registry.
func (r *BadgerRegistry) Lookup(_ context.Context, secret string) (*models.Token, error) {
	var token models.Token

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(tokenKeyPrefix + HashSecret(secret)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrTokenNotFound
		}
		if err != nil {
			return fmt.Errorf("get token: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &token)
		})
	})
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// seedFile is the YAML shape of the token seed file.
type seedFile struct {
	Tokens []models.TokenSeed `koanf:"tokens"`
}

// SeedFromFile loads token records from a YAML seed file into the registry.
// Records with an empty secret are skipped with a warning.
func (r *BadgerRegistry) SeedFromFile(ctx context.Context, path string) error {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load seed file %s: %w", path, err)
	}

	var seeds seedFile
	if err := k.Unmarshal("", &seeds); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}

	provisioned := 0
	for i, seed := range seeds.Tokens {
		if seed.Token == "" {
			logging.Warn().Int("index", i).Msg("Skipping seed record with empty token")
			continue
		}
		if err := r.Provision(ctx, seed); err != nil {
			return fmt.Errorf("provision token %d: %w", i, err)
		}
		provisioned++
	}

	logging.Info().Int("tokens", provisioned).Str("file", path).Msg("Token registry seeded")
	return nil
}
