// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

// Package models provides data structures shared across the Pulse application.
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Validation errors for Event records. These are returned by Event.Validate
// and surface to clients as validation failures.
var (
	ErrMissingEventName = errors.New("event name is required")
	ErrMissingTimestamp = errors.New("event timestamp is required")
	ErrMissingSessionID = errors.New("event session id is required")
	ErrUserIDNotString  = errors.New("parameters.userId must be a string")
)

// UserIDKey is the reserved parameter key identifying a logged-in user.
const UserIDKey = "userId"

// Event is a single immutable fact record. Events belong to exactly one
// partition and are only ever inserted and read, never updated.
//
// Parameters is an open key-value mapping supplied by the client. The only
// reserved key is "userId": when present its value must be a string, which
// the stats pipeline uses to distinguish identified (logged-in) sessions.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	EventName  string                 `json:"eventName"`
	Timestamp  time.Time              `json:"timestamp"`
	Parameters map[string]interface{} `json:"parameters"`
	SessionID  string                 `json:"sessionId"`
}

// Validate checks the event against the write-time schema. It returns the
// first violation found, or nil for a well-formed event.
func (e *Event) Validate() error {
	if e.EventName == "" {
		return ErrMissingEventName
	}
	if e.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	if e.SessionID == "" {
		return ErrMissingSessionID
	}
	if _, err := extractUserID(e.Parameters); err != nil {
		return err
	}
	return nil
}

// UserID returns the userId parameter when present and well-typed.
// The second return value reports whether the key was present.
func (e *Event) UserID() (string, bool) {
	id, err := extractUserID(e.Parameters)
	if err != nil || id == nil {
		return "", false
	}
	return *id, true
}

// extractUserID pulls the userId parameter out of an open parameter map.
// A missing key yields (nil, nil); a non-string value is a validation error.
func extractUserID(params map[string]interface{}) (*string, error) {
	raw, ok := params[UserIDKey]
	if !ok || raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, ErrUserIDNotString
	}
	return &s, nil
}

// EventStat is one row of the two-stage aggregation output: usage signals
// for a single event name across all matching sessions.
//
// The _id JSON field carries the event name; dashboard clients rely on that
// key name.
type EventStat struct {
	EventName       string    `json:"_id"`
	UniqueUsers     int64     `json:"uniqueUsers"`
	TotalCount      int64     `json:"totalCount"`
	IdentifiedUsers int64     `json:"identifiedUsers"`
	Latest          time.Time `json:"latest"`
}
