// Pulse - Privacy-Aware Event Analytics Backend
// Copyright 2026 Mate Kadar (kadarmate)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kadarmate/pulse

// Package livefeed streams freshly ingested events to WebSocket subscribers.
// Subscriptions are scoped to a partition, so a tenant only ever sees its own
// events on the wire.
package livefeed

import (
	"context"
	"sync"

	"github.com/kadarmate/pulse/internal/logging"
	"github.com/kadarmate/pulse/internal/metrics"
	"github.com/kadarmate/pulse/internal/models"
)

// Message types for the live feed protocol.
const (
	MessageTypeEvent = "event"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
)

// Message is one frame on the live feed.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// feedItem pairs a message with the partition it belongs to.
type feedItem struct {
	partition string
	message   Message
}

// Hub fans ingested events out to the subscribers of their partition.
type Hub struct {
	subscribers map[string]map[*Client]bool
	broadcast   chan feedItem
	Register    chan *Client
	Unregister  chan *Client
	mu          sync.RWMutex
}

// NewHub creates an empty hub. Run or RunWithContext must be started before
// clients register.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Client]bool),
		broadcast:   make(chan feedItem, 256),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
	}
}

// RunWithContext drives the hub until the context is canceled, then closes
// every subscriber.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			logging.Info().Str("component", "livefeed-hub").Msg("Live feed hub stopped")
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case item := <-h.broadcast:
			h.deliver(item)
		}
	}
}

// BroadcastEvent queues an ingested event for the partition's subscribers.
// Never blocks the ingest path: when the queue is full the frame is dropped.
func (h *Hub) BroadcastEvent(partition string, event *models.Event) {
	if h.SubscriberCount(partition) == 0 {
		return
	}

	select {
	case h.broadcast <- feedItem{partition: partition, message: Message{Type: MessageTypeEvent, Data: event}}:
	default:
		logging.Warn().Str("partition", partition).Msg("Live feed queue full, dropping event")
	}
}

// SubscriberCount returns the number of clients subscribed to a partition.
func (h *Hub) SubscriberCount(partition string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[partition])
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	group, ok := h.subscribers[client.partition]
	if !ok {
		group = make(map[*Client]bool)
		h.subscribers[client.partition] = group
	}
	group[client] = true
	total := len(group)
	h.mu.Unlock()

	metrics.LiveFeedConnections.Inc()
	logging.Info().Str("partition", client.partition).Int("subscribers", total).Msg("Live feed client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	group, ok := h.subscribers[client.partition]
	if ok && group[client] {
		delete(group, client)
		close(client.send)
		if len(group) == 0 {
			delete(h.subscribers, client.partition)
		}
		metrics.LiveFeedConnections.Dec()
	}
	h.mu.Unlock()

	if ok {
		logging.Info().Str("partition", client.partition).Msg("Live feed client disconnected")
	}
}

func (h *Hub) deliver(item feedItem) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var stale []*Client
	for client := range h.subscribers[item.partition] {
		select {
		case client.send <- item.message:
		default:
			// Slow consumer; drop the connection rather than back up.
			stale = append(stale, client)
		}
	}
	for _, client := range stale {
		delete(h.subscribers[item.partition], client)
		close(client.send)
		metrics.LiveFeedConnections.Dec()
	}
	if len(h.subscribers[item.partition]) == 0 {
		delete(h.subscribers, item.partition)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for partition, group := range h.subscribers {
		for client := range group {
			close(client.send)
			metrics.LiveFeedConnections.Dec()
		}
		delete(h.subscribers, partition)
	}
}
