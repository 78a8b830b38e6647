// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kadarmate/pulse/internal/metrics"
	"github.com/kadarmate/pulse/internal/models"
)

// DefaultQueryLimit caps event listings when the caller supplies no limit.
const DefaultQueryLimit = 100

// EventFilter narrows event queries and stats aggregations.
// Zero-valued fields are ignored; date bounds are inclusive.
type EventFilter struct {
	EventName string
	SessionID string
	StartDate *time.Time
	EndDate   *time.Time
	// Limit applies to event listings only; stats aggregate all matches.
	Limit int
}

// buildConditions renders the filter as SQL conditions appended to a WHERE
// clause that already matched partition_key.
func (f EventFilter) buildConditions() (string, []interface{}) {
	clause := ""
	var args []interface{}

	if f.EventName != "" {
		clause += " AND event_name = ?"
		args = append(args, f.EventName)
	}
	if f.SessionID != "" {
		clause += " AND session_id = ?"
		args = append(args, f.SessionID)
	}
	if f.StartDate != nil {
		clause += " AND event_time >= ?"
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		clause += " AND event_time <= ?"
		args = append(args, *f.EndDate)
	}
	return clause, args
}

// InsertEvent persists one event into the given partition. The event is
// validated against the write-time schema first; a validation failure leaves
// the store untouched. ID and Timestamp are defaulted when unset.
func (db *DB) InsertEvent(ctx context.Context, partitionKey string, event *models.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return err
	}

	params, err := marshalParameters(event.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	var userID interface{}
	if id, ok := event.UserID(); ok {
		userID = id
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO events (id, partition_key, event_name, event_time, session_id, user_id, parameters)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID.String(), partitionKey, event.EventName, event.Timestamp, event.SessionID, userID, params,
	)
	metrics.RecordDBQuery("insert_event", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertEvents persists a batch of events into the partition inside one
// transaction. Used by partition bootstrap; either all template records land
// or none do.
func (db *DB) InsertEvents(ctx context.Context, partitionKey string, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (id, partition_key, event_name, event_time, session_id, user_id, parameters)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	start := time.Now()
	for i := range events {
		event := &events[i]
		if event.ID == uuid.Nil {
			event.ID = uuid.New()
		}
		if err := event.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}

		params, err := marshalParameters(event.Parameters)
		if err != nil {
			return fmt.Errorf("event %d: marshal parameters: %w", i, err)
		}

		var userID interface{}
		if id, ok := event.UserID(); ok {
			userID = id
		}

		if _, err := stmt.ExecContext(ctx,
			event.ID.String(), partitionKey, event.EventName, event.Timestamp, event.SessionID, userID, params,
		); err != nil {
			return fmt.Errorf("event %d: insert: %w", i, err)
		}
	}

	err = tx.Commit()
	metrics.RecordDBQuery("insert_events_batch", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("commit batch insert: %w", err)
	}
	return nil
}

// QueryEvents returns events in the partition matching the filter, newest
// first. The result is capped by filter.Limit (DefaultQueryLimit when unset).
func (db *DB) QueryEvents(ctx context.Context, partitionKey string, filter EventFilter) ([]models.Event, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
	SELECT id, event_name, event_time, session_id, parameters
	FROM events
	WHERE partition_key = ?`

	args := []interface{}{partitionKey}
	conditions, condArgs := filter.buildConditions()
	query += conditions
	args = append(args, condArgs...)

	query += `
	ORDER BY event_time DESC
	LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	args = append(args, limit)

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("query_events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	// Empty slice rather than nil keeps the JSON serialization consistent.
	events := []models.Event{}
	for rows.Next() {
		var (
			e      models.Event
			id     []byte
			params string
		)
		if err := rows.Scan(&id, &e.EventName, &e.Timestamp, &e.SessionID, &params); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		// The duckdb driver returns UUID columns as 16 raw bytes.
		e.ID, err = uuid.FromBytes(id)
		if err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(params), &e.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters for event %s: %w", e.ID, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of events stored in the partition.
func (db *DB) CountEvents(ctx context.Context, partitionKey string) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	start := time.Now()
	var count int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE partition_key = ?`, partitionKey,
	).Scan(&count)
	metrics.RecordDBQuery("count_events", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// marshalParameters renders the open parameter map as JSON text for storage.
// A nil map stores as the empty object so reads never see NULL.
func marshalParameters(params map[string]interface{}) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
