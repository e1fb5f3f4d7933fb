// Package hub implements the broadcast hub (spec component B): a
// bounded, best-effort pub/sub bus that every other component publishes
// domain events onto, and that the API/WebSocket surface drains to push
// updates to connected clients. Grounded on the teacher's
// internal/server (via ODSapper-CLIAIMONITOR's Hub/Client pairing, the
// pack's example of this exact pattern) register/unregister/broadcast
// channel design, generalized from WebSocket-only clients to any typed
// subscriber.
package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SubscriberBufferSize bounds each subscriber's backlog. A subscriber
// that falls this far behind starts losing events rather than stalling
// the publisher — the "best-effort" half of the contract.
const SubscriberBufferSize = 256

// Event is one notification broadcast on the hub. Topic namespaces the
// payload (e.g. "card.started", "agent.log", "heartbeat.tick") so
// subscribers can filter without type-asserting Payload.
type Event struct {
	Topic     string
	Payload   any
	CreatedAt time.Time
}

type subscriber struct {
	id     uint64
	ch     chan Event
	filter func(Event) bool
}

// Hub is the bounded pub/sub bus. The zero value is not usable; use New.
type Hub struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscriber
	nextID    uint64
	logger    zerolog.Logger
	dropCount atomic.Uint64
}

// New builds an empty Hub.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		logger: logger,
	}
}

// Subscribe registers a new subscriber and returns its receive channel
// and a cancel function that must be called to release it. filter may
// be nil to receive every event.
func (h *Hub) Subscribe(filter func(Event) bool) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	sub := &subscriber{id: id, ch: make(chan Event, SubscriberBufferSize), filter: filter}
	h.subs[id] = sub

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if s, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Publish fans an event out to every matching subscriber. Delivery is
// non-blocking: a subscriber whose buffer is full drops the event
// rather than stalling every other subscriber or the caller.
func (h *Hub) Publish(topic string, payload any) {
	event := Event{Topic: topic, Payload: payload, CreatedAt: time.Now()}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			h.dropCount.Add(1)
			h.logger.Warn().Str("topic", topic).Uint64("subscriber", sub.id).Msg("dropped broadcast event, subscriber buffer full")
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// DroppedCount reports the cumulative number of events dropped across
// all subscribers since startup, exposed for operational visibility.
func (h *Hub) DroppedCount() uint64 {
	return h.dropCount.Load()
}
