// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package models

// TrackRequest is the ingest payload: an event name plus an open parameter
// map. The userId parameter is type-checked separately at write time.
type TrackRequest struct {
	EventName  string                 `json:"eventName" validate:"required,max=256"`
	Parameters map[string]interface{} `json:"parameters"`
}

// TrackResponse confirms a persisted event and echoes the session that the
// event was recorded under, so consenting first-time clients learn their id.
type TrackResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
