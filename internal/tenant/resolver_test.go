// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

package tenant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kadarmate/pulse/internal/models"
)

type fakeStore struct {
	mu      sync.Mutex
	events  map[string][]models.Event
	inserts int32
	countErr  error
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: map[string][]models.Event{}}
}

func (s *fakeStore) CountEvents(_ context.Context, key string) (int64, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.events[key])), nil
}

func (s *fakeStore) InsertEvents(_ context.Context, key string, events []models.Event) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	atomic.AddInt32(&s.inserts, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[key] = append(s.events[key], events...)
	return nil
}

type fakeSource struct {
	events []models.Event
	err    error
	loads  int32
}

func (s *fakeSource) Load(_ context.Context, _ string) ([]models.Event, error) {
	atomic.AddInt32(&s.loads, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.events, nil
}

func templateEvents(n int) []models.Event {
	events := make([]models.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, models.Event{
			ID:        uuid.New(),
			EventName: "seed",
			Timestamp: time.Now().UTC(),
			SessionID: "template",
		})
	}
	return events
}

func TestPartitionKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
		page  string
		check func(t *testing.T, key string)
	}{
		{
			name:  "single tenant keys by page",
			token: "",
			page:  "shop",
			check: func(t *testing.T, key string) {
				if key != "shop" {
					t.Errorf("key = %q, expected page alone", key)
				}
			},
		},
		{
			name:  "token is hashed not embedded",
			token: "secret-token",
			page:  "shop",
			check: func(t *testing.T, key string) {
				if strings.Contains(key, "secret-token") {
					t.Errorf("raw token leaked into key %q", key)
				}
				if !strings.HasSuffix(key, ":shop") {
					t.Errorf("key %q missing page suffix", key)
				}
				if len(key) != 16+1+len("shop") {
					t.Errorf("key %q has unexpected length", key)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, PartitionKey(tt.token, tt.page))
		})
	}
}

func TestPartitionKeyIsolatesTenants(t *testing.T) {
	t.Parallel()

	a := PartitionKey("token-a", "shop")
	b := PartitionKey("token-b", "shop")
	if a == b {
		t.Errorf("different tokens share partition %q", a)
	}
	if PartitionKey("token-a", "shop") != a {
		t.Error("partition key not deterministic")
	}
}

func TestResolveSeedsEmptyPartition(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	source := &fakeSource{events: templateEvents(3)}
	r := NewResolver(store, source)

	key := r.Resolve(context.Background(), "tok", "shop")
	if key != PartitionKey("tok", "shop") {
		t.Errorf("unexpected key %q", key)
	}
	if len(store.events[key]) != 3 {
		t.Errorf("partition has %d events, expected 3 seeded", len(store.events[key]))
	}
}

func TestResolveSkipsSeedWhenPartitionHasData(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	key := PartitionKey("tok", "shop")
	store.events[key] = templateEvents(1)

	source := &fakeSource{events: templateEvents(3)}
	r := NewResolver(store, source)

	r.Resolve(context.Background(), "tok", "shop")
	if len(store.events[key]) != 1 {
		t.Errorf("seed ran against non-empty partition: %d events", len(store.events[key]))
	}
}

func TestResolveBootstrapRunsOncePerPartition(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	source := &fakeSource{events: templateEvents(2)}
	r := NewResolver(store, source)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Resolve(context.Background(), "tok", "shop")
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&store.inserts); n != 1 {
		t.Errorf("bootstrap inserted %d times, expected exactly once", n)
	}
	key := PartitionKey("tok", "shop")
	if len(store.events[key]) != 2 {
		t.Errorf("partition has %d events, expected 2", len(store.events[key]))
	}
}

func TestResolveBootstrapFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		store *fakeStore
		src   *fakeSource
	}{
		{
			name:  "count fails",
			store: &fakeStore{events: map[string][]models.Event{}, countErr: errors.New("storage down")},
			src:   &fakeSource{events: templateEvents(1)},
		},
		{
			name:  "template load fails",
			store: newFakeStore(),
			src:   &fakeSource{err: errors.New("bad json")},
		},
		{
			name:  "insert fails",
			store: &fakeStore{events: map[string][]models.Event{}, insertErr: errors.New("disk full")},
			src:   &fakeSource{events: templateEvents(1)},
		},
		{
			name:  "no template for page",
			store: newFakeStore(),
			src:   &fakeSource{err: ErrNoTemplate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(tt.store, tt.src)
			key := r.Resolve(context.Background(), "tok", "shop")
			if key == "" {
				t.Error("Resolve returned empty key on bootstrap failure")
			}
		})
	}
}

func TestResolveDoesNotRetryFailedBootstrap(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	source := &fakeSource{err: errors.New("bad json")}
	r := NewResolver(store, source)

	r.Resolve(context.Background(), "tok", "shop")
	r.Resolve(context.Background(), "tok", "shop")

	if n := atomic.LoadInt32(&source.loads); n != 1 {
		t.Errorf("template loaded %d times, expected 1", n)
	}
}

func TestResolveNilSource(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	r := NewResolver(store, nil)

	key := r.Resolve(context.Background(), "", "shop")
	if key != "shop" {
		t.Errorf("key = %q", key)
	}
	if len(store.events["shop"]) != 0 {
		t.Error("events appeared without a template source")
	}
}
