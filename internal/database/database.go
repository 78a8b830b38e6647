// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

// Package database provides the DuckDB-backed event store.
//
// All tenants share a single events table; isolation is enforced through the
// partition_key column, which every query in this package filters on. One
// table with a partition column avoids runtime schema creation while keeping
// the same isolation guarantee as a collection per tenant.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/kadarmate/pulse/internal/config"
	"github.com/kadarmate/pulse/internal/logging"
)

// queryTimeout bounds any single storage round-trip when the caller's
// context carries no deadline of its own.
const queryTimeout = 30 * time.Second

// DB wraps the DuckDB connection and provides event store access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens the DuckDB database and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	connStr := ""
	if cfg.Path != "" && cfg.Path != ":memory:" {
		// Ensure the parent directory exists for the database file.
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}

		// Disable auto-install/auto-load of extensions to prevent hangs in
		// restricted network environments; nothing here needs them.
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
			cfg.Path, numThreads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", numThreads).Msg("Event store initialized")
	return db, nil
}

// initSchema creates the events table and supporting indexes.
//
// The user_id column materializes parameters.userId at write time so the
// stats pipeline never has to parse parameter JSON inside SQL.
func (db *DB) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			partition_key VARCHAR NOT NULL,
			event_name VARCHAR NOT NULL,
			event_time TIMESTAMP NOT NULL,
			session_id VARCHAR NOT NULL,
			user_id VARCHAR,
			parameters VARCHAR NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_partition_time ON events (partition_key, event_time)`,
		`CREATE INDEX IF NOT EXISTS idx_events_partition_name ON events (partition_key, event_name)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// ensureContext attaches the default query timeout when the caller's context
// has no deadline. The returned cancel func must always be called.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}
