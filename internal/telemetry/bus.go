package telemetry

import (
	"context"
	"sync"

	"github.com/dr-isosan/LifeNode/internal/logging"
)

// EventType labels a simulation occurrence pushed to stream subscribers.
type EventType string

const (
	EventTick         EventType = "tick"
	EventPacketSent   EventType = "packet_sent"
	EventNodeFailed   EventType = "node_failed"
	EventNodeRepaired EventType = "node_repaired"
	EventNodeAdded    EventType = "node_added"
	EventNodeRemoved  EventType = "node_removed"
)

// Event is one simulation occurrence. Payload shape depends on Type.
type Event struct {
	Type    EventType `json:"Type"`
	Tick    int       `json:"Tick"`
	Payload any       `json:"Payload,omitempty"`
}

// TickPayload summarises one tick for stream consumers.
type TickPayload struct {
	FailureRate        float64        `json:"FailureRate"`
	Advanced           int            `json:"Advanced"`
	Delivered          int            `json:"Delivered"`
	Lost               int            `json:"Lost"`
	TimedOut           int            `json:"TimedOut"`
	LossReasons        map[string]int `json:"LossReasons,omitempty"`
	DeliveredLatencyMs []float64      `json:"DeliveredLatencyMs,omitempty"`
	ActiveNodes        int            `json:"ActiveNodes"`
	InFlight           int            `json:"InFlight"`
}

// NodePayload identifies the node a lifecycle event concerns.
type NodePayload struct {
	NodeID int `json:"NodeID"`
}

// PacketPayload identifies an injected packet.
type PacketPayload struct {
	PacketID    int `json:"PacketID"`
	Source      int `json:"Source"`
	Destination int `json:"Destination"`
}

// Bus fans events out to subscribers. Publishing never blocks: subscribers
// that cannot keep up lose events rather than stalling the simulation loop.
type Bus struct {
	logger logging.Logger

	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
}

// NewBus returns an empty bus. A nil logger silences drop reports.
func NewBus(logger logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[int]chan Event),
	}
}

// Subscribe registers a new consumer and returns its channel together with a
// cancel function. Cancelling closes the channel; pending events stay
// readable until drained.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber with buffer room.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subs {
		select {
		case sub <- e:
		default:
			b.logger.Debug(context.Background(), "dropping event for slow subscriber",
				logging.Int("subscriber", id),
				logging.String("event_type", string(e.Type)),
			)
		}
	}
}

// SubscriberCount reports the number of registered consumers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
