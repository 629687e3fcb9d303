// Package stream fans agent events out to live subscribers.
package stream

import (
	"context"
	"strconv"
	"sync"
	"time"

	"nse-agent/internal/models"
)

// EventType names the kind of event on the feed.
type EventType string

const (
	EventDecision EventType = "decision"
	EventKill     EventType = "kill"
	EventStatus   EventType = "status"
)

// Event is one message on the feed.
type Event struct {
	Type      EventType                `json:"type"`
	Decision  *models.DecisionLogEntry `json:"decision,omitempty"`
	Message   string                   `json:"message,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
}

// HubConfig holds configuration for the Hub.
type HubConfig struct {
	// BufferSize is the size of the internal event channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           1000,
		SubscriberBufferSize: 100,
	}
}

// Hub distributes events from the agent to every subscriber. Publishing
// never blocks: a full buffer drops the event for that consumer.
type Hub struct {
	config      HubConfig
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	events      chan Event
	done        chan struct{}
	started     bool
	nextID      int

	metricsMu       sync.Mutex
	eventsReceived  uint64
	eventsBroadcast uint64
	eventsDropped   uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Channel      chan Event
	DroppedCount int
	CreatedAt    time.Time
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsBroadcast uint64 `json:"events_broadcast"`
	EventsDropped   uint64 `json:"events_dropped"`
	Subscribers     int    `json:"subscribers"`
}

// NewHub creates a new hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:      config,
		subscribers: make(map[string]*Subscriber),
		events:      make(chan Event, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.done = make(chan struct{})
	done := h.done
	h.mu.Unlock()

	go h.broadcastLoop(ctx, done)
}

func (h *Hub) broadcastLoop(ctx context.Context, done chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case ev := <-h.events:
			h.metricsMu.Lock()
			h.eventsReceived++
			h.metricsMu.Unlock()
			h.broadcast(ev)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for id, sub := range h.subscribers {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// Subscribe registers a subscriber and returns its channel together with
// a function that removes it.
func (h *Hub) Subscribe(prefix string) (<-chan Event, func()) {
	ch := make(chan Event, h.config.SubscriberBufferSize)

	h.mu.Lock()
	h.nextID++
	id := prefix + "-" + strconv.Itoa(h.nextID)
	h.subscribers[id] = &Subscriber{ID: id, Channel: ch, CreatedAt: time.Now()}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// Publish queues an event for distribution.
func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case h.events <- ev:
	default:
		h.metricsMu.Lock()
		h.eventsDropped++
		h.metricsMu.Unlock()
	}
}

// PublishDecisions queues one decision event per entry, in order.
func (h *Hub) PublishDecisions(entries []*models.DecisionLogEntry) {
	for _, e := range entries {
		entry := *e
		h.Publish(Event{Type: EventDecision, Decision: &entry, Timestamp: entry.Timestamp})
	}
}

// broadcast uses non-blocking sends so a slow consumer cannot stall others.
func (h *Hub) broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers {
		select {
		case sub.Channel <- ev:
			h.metricsMu.Lock()
			h.eventsBroadcast++
			h.metricsMu.Unlock()
		default:
			sub.DroppedCount++
			h.metricsMu.Lock()
			h.eventsDropped++
			h.metricsMu.Unlock()
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	subs := h.SubscriberCount()
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	return HubMetrics{
		EventsReceived:  h.eventsReceived,
		EventsBroadcast: h.eventsBroadcast,
		EventsDropped:   h.eventsDropped,
		Subscribers:     subs,
	}
}
