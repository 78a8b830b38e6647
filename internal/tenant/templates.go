// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/kadarmate/pulse/internal/models"
)

// ErrNoTemplate signals that no template data exists for a page. Callers
// treat it as "nothing to seed", not a failure.
var ErrNoTemplate = errors.New("no template data for page")

// TemplateSource supplies the starter events seeded into a partition the
// first time it is accessed while empty.
type TemplateSource interface {
	Load(ctx context.Context, page string) ([]models.Event, error)
}

// DirSource loads template data from per-page JSON files on disk, named
// test-data-<page>.json under the configured directory.
type DirSource struct {
	dir string
}

// NewDirSource returns a DirSource rooted at dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Load reads and parses the template file for page. A missing file or empty
// directory returns ErrNoTemplate.
func (s *DirSource) Load(_ context.Context, page string) ([]models.Event, error) {
	if s.dir == "" {
		return nil, ErrNoTemplate
	}

	path := filepath.Join(s.dir, fmt.Sprintf("test-data-%s.json", page))
	data, err := os.ReadFile(path) // #nosec G304 - path is built from config dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoTemplate
		}
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}

	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}

	// Template files may omit IDs and timestamps.
	now := time.Now().UTC()
	for i := range events {
		if events[i].ID == uuid.Nil {
			events[i].ID = uuid.New()
		}
		if events[i].Timestamp.IsZero() {
			events[i].Timestamp = now
		}
	}
	return events, nil
}
