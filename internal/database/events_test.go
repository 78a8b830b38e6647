// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kadarmate/pulse/internal/config"
	"github.com/kadarmate/pulse/internal/models"
)

// newTestDB opens a DuckDB store in a temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "pulse.duckdb"),
		MaxMemory: "512MB",
		Threads:   2,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close test database: %v", err)
		}
	})
	return db
}

func testEvent(name, sessionID string, ts time.Time, params map[string]interface{}) models.Event {
	return models.Event{
		ID:         uuid.New(),
		EventName:  name,
		Timestamp:  ts,
		Parameters: params,
		SessionID:  sessionID,
	}
}

func TestBuildConditions(t *testing.T) {
	t.Parallel()

	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)

	tests := []struct {
		name           string
		filter         EventFilter
		expectedClause string
		expectedArgs   int
	}{
		{
			name:           "empty filter",
			filter:         EventFilter{},
			expectedClause: "",
			expectedArgs:   0,
		},
		{
			name:           "event name only",
			filter:         EventFilter{EventName: "page_view"},
			expectedClause: " AND event_name = ?",
			expectedArgs:   1,
		},
		{
			name:           "session only",
			filter:         EventFilter{SessionID: "s1"},
			expectedClause: " AND session_id = ?",
			expectedArgs:   1,
		},
		{
			name:           "start date only",
			filter:         EventFilter{StartDate: &yesterday},
			expectedClause: " AND event_time >= ?",
			expectedArgs:   1,
		},
		{
			name:           "end date only",
			filter:         EventFilter{EndDate: &now},
			expectedClause: " AND event_time <= ?",
			expectedArgs:   1,
		},
		{
			name: "all filters combined",
			filter: EventFilter{
				EventName: "click",
				SessionID: "s1",
				StartDate: &yesterday,
				EndDate:   &now,
			},
			expectedClause: " AND event_name = ? AND session_id = ? AND event_time >= ? AND event_time <= ?",
			expectedArgs:   4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := tt.filter.buildConditions()
			if clause != tt.expectedClause {
				t.Errorf("buildConditions() clause = %q, expected %q", clause, tt.expectedClause)
			}
			if len(args) != tt.expectedArgs {
				t.Errorf("buildConditions() args = %d, expected %d", len(args), tt.expectedArgs)
			}
		})
	}
}

func TestInsertAndQueryRoundTrip(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	event := testEvent("page_view", "s1", ts, map[string]interface{}{"path": "/home", "userId": "u1"})
	if err := db.InsertEvent(ctx, "p1", &event); err != nil {
		t.Fatalf("insert: %v", err)
	}

	events, err := db.QueryEvents(ctx, "p1", EventFilter{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, expected 1", len(events))
	}

	got := events[0]
	if got.EventName != "page_view" || got.SessionID != "s1" {
		t.Errorf("unexpected event: %+v", got)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, expected %v", got.Timestamp, ts)
	}
	if got.Parameters["path"] != "/home" {
		t.Errorf("parameters lost in round trip: %v", got.Parameters)
	}
	if id, ok := got.UserID(); !ok || id != "u1" {
		t.Errorf("userId lost in round trip: %v", got.Parameters)
	}
}

func TestInsertEventValidationRejected(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()

	event := testEvent("signup", "s1", time.Now(), map[string]interface{}{"userId": 42})
	if err := db.InsertEvent(ctx, "p1", &event); !errors.Is(err, models.ErrUserIDNotString) {
		t.Fatalf("expected ErrUserIDNotString, got %v", err)
	}

	// Rejected event must leave no partial write behind.
	count, err := db.CountEvents(ctx, "p1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("store contains %d events after rejected insert", count)
	}
}

func TestQueryEventsPartitionIsolation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	eventA := testEvent("view", "s1", ts, nil)
	eventB := testEvent("view", "s2", ts, nil)
	if err := db.InsertEvent(ctx, "tenant-a", &eventA); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertEvent(ctx, "tenant-b", &eventB); err != nil {
		t.Fatal(err)
	}

	events, err := db.QueryEvents(ctx, "tenant-a", EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].SessionID != "s1" {
		t.Errorf("partition leak: %+v", events)
	}
}

func TestQueryEventsOrderAndLimit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		event := testEvent("tick", "s1", base.Add(time.Duration(i)*time.Hour), nil)
		if err := db.InsertEvent(ctx, "p1", &event); err != nil {
			t.Fatal(err)
		}
	}

	events, err := db.QueryEvents(ctx, "p1", EventFilter{Limit: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, expected 3", len(events))
	}
	// Newest first.
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp.After(events[i-1].Timestamp) {
			t.Errorf("events not in descending order: %v after %v", events[i].Timestamp, events[i-1].Timestamp)
		}
	}
	if !events[0].Timestamp.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("first event = %v, expected newest", events[0].Timestamp)
	}
}

func TestQueryEventsDateRangeInclusive(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		event := testEvent("tick", "s1", base.AddDate(0, 0, i), nil)
		if err := db.InsertEvent(ctx, "p1", &event); err != nil {
			t.Fatal(err)
		}
	}

	start := base.AddDate(0, 0, 1)
	end := base.AddDate(0, 0, 2)
	events, err := db.QueryEvents(ctx, "p1", EventFilter{StartDate: &start, EndDate: &end})
	if err != nil {
		t.Fatal(err)
	}

	// Both bounds are inclusive: exactly days 1 and 2.
	if len(events) != 2 {
		t.Fatalf("got %d events, expected 2: %+v", len(events), events)
	}
	if !events[0].Timestamp.Equal(end) || !events[1].Timestamp.Equal(start) {
		t.Errorf("unexpected range result: %v, %v", events[0].Timestamp, events[1].Timestamp)
	}
}

func TestQueryEventsFilterByNameAndSession(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	fixtures := []models.Event{
		testEvent("view", "s1", ts, nil),
		testEvent("view", "s2", ts, nil),
		testEvent("click", "s1", ts, nil),
	}
	for i := range fixtures {
		if err := db.InsertEvent(ctx, "p1", &fixtures[i]); err != nil {
			t.Fatal(err)
		}
	}

	events, err := db.QueryEvents(ctx, "p1", EventFilter{EventName: "view", SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EventName != "view" || events[0].SessionID != "s1" {
		t.Errorf("filter mismatch: %+v", events)
	}
}

func TestQueryEventsDefaultLimit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	events := make([]models.Event, 0, DefaultQueryLimit+20)
	for i := 0; i < DefaultQueryLimit+20; i++ {
		events = append(events, testEvent("tick", "s1", base.Add(time.Duration(i)*time.Second), nil))
	}
	if err := db.InsertEvents(ctx, "p1", events); err != nil {
		t.Fatal(err)
	}

	got, err := db.QueryEvents(ctx, "p1", EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != DefaultQueryLimit {
		t.Errorf("got %d events, expected default limit %d", len(got), DefaultQueryLimit)
	}
}

func TestInsertEventsBatchAtomicity(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	batch := []models.Event{
		testEvent("a", "s1", ts, nil),
		testEvent("b", "", ts, nil), // invalid: missing session
	}
	if err := db.InsertEvents(ctx, "p1", batch); !errors.Is(err, models.ErrMissingSessionID) {
		t.Fatalf("expected ErrMissingSessionID, got %v", err)
	}

	count, err := db.CountEvents(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("batch failure left %d events behind", count)
	}
}

func TestQueryEventsEmptyPartition(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)

	events, err := db.QueryEvents(context.Background(), "nothing-here", EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if events == nil {
		t.Error("expected empty slice, got nil")
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}
