package relay

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Subhashis360/API-Inspector/internal/notify"
)

const subscriberBufSize = 256

// FeedChanges is the feed carrying store change sets.
const FeedChanges = "changes"

// Event represents a single event sent via SSE.
type Event struct {
	ID      string
	Feed    string
	Payload string
}

// Broker fans out events to all subscribed SSE clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
	seq         atomic.Int64
	dropped     atomic.Int64
}

// NewBroker creates a new SSE event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]chan Event),
	}
}

// Subscribe registers a new client. The channel is buffered; slow consumers
// have events dropped.
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

// Publish stamps evt with the next sequence id and sends it to all
// subscribers without blocking.
func (b *Broker) Publish(evt Event) {
	evt.ID = strconv.FormatInt(b.seq.Add(1), 10)
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

// Observe publishes a change set on the changes feed. It has the shape of a
// notify.Observer.
func (b *Broker) Observe(cs notify.ChangeSet, fromRemote bool) {
	payload, err := json.Marshal(struct {
		notify.ChangeSet
		Remote bool `json:"remote"`
	}{cs, fromRemote})
	if err != nil {
		slog.Warn("Failed to encode change set", "kind", cs.Kind, "error", err)
		return
	}
	b.Publish(Event{Feed: FeedChanges, Payload: string(payload)})
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
