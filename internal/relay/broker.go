package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgnsrekt/copilot_capture/internal/types"
)

const subscriberBufSize = 256

// Event is a single live feed message. Feed is the capture category.
type Event struct {
	Feed    string
	Type    string
	Payload string
}

// Broker fans out capture events to all subscribed SSE and WebSocket clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	dropped     atomic.Int64
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers will have
// events dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish encodes a capture event and sends it to all subscribers.
// Non-blocking: slow clients have events dropped.
func (b *Broker) Publish(evt types.FeedEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Error("Failed to encode feed event", "flow_id", evt.FlowID, "error", err)
		return
	}
	b.publish(Event{Feed: string(evt.Category), Type: evt.EventType, Payload: string(payload)})
}

func (b *Broker) publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped for slow clients.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}
