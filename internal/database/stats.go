// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kadarmate/pulse/internal/metrics"
	"github.com/kadarmate/pulse/internal/models"
)

// AggregateStats computes per-event-name usage statistics for a partition.
//
// The pipeline runs in two stages inside a single query, so the table is
// scanned once:
//
//	stage 1: group matching events by (event_name, session_id): per-session
//	         event count, latest timestamp, and the session's userId
//	stage 2: group stage-1 rows by event_name: distinct sessions
//	         (uniqueUsers), summed counts (totalCount), max timestamp
//	         (latest), and sessions with a non-null userId (identifiedUsers)
//
// A session counts as identified when any of its events carried a userId.
// Results are ordered by totalCount descending.
func (db *DB) AggregateStats(ctx context.Context, partitionKey string, filter EventFilter) ([]models.EventStat, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	query := `
	SELECT
		event_name,
		CAST(COUNT(*) AS BIGINT) AS unique_users,
		CAST(SUM(event_count) AS BIGINT) AS total_count,
		CAST(COUNT(user_id) AS BIGINT) AS identified_users,
		MAX(latest) AS latest
	FROM (
		SELECT
			event_name,
			session_id,
			COUNT(*) AS event_count,
			MAX(event_time) AS latest,
			MAX(user_id) AS user_id
		FROM events
		WHERE partition_key = ?`

	args := []interface{}{partitionKey}
	conditions, condArgs := filter.buildConditions()
	query += conditions
	args = append(args, condArgs...)

	query += `
		GROUP BY event_name, session_id
	) per_session
	GROUP BY event_name
	ORDER BY total_count DESC, event_name ASC`

	start := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("aggregate_stats", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	defer rows.Close()

	stats := []models.EventStat{}
	for rows.Next() {
		var (
			s      models.EventStat
			latest sql.NullTime
		)
		if err := rows.Scan(&s.EventName, &s.UniqueUsers, &s.TotalCount, &s.IdentifiedUsers, &latest); err != nil {
			return nil, fmt.Errorf("scan stat: %w", err)
		}
		if latest.Valid {
			s.Latest = latest.Time
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}
