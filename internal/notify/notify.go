// Package notify propagates store change sets to local observers and to
// sibling processes over a shared bus.
package notify

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Kind names the table a change applies to.
type Kind string

const (
	KindRequests    Kind = "requests"
	KindConnections Kind = "connections"
	KindSettings    Kind = "settings"
)

// Op is the kind of mutation.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
	OpClear  Op = "clear"
)

// ChangeSet describes one committed mutation.
type ChangeSet struct {
	Kind Kind     `json:"kind"`
	Op   Op       `json:"op"`
	IDs  []string `json:"ids,omitempty"`
}

// Observer receives change sets. fromRemote is true for changes that
// originated in another process.
type Observer func(cs ChangeSet, fromRemote bool)

// Bus carries locally originated change sets to sibling processes.
type Bus interface {
	Publish(cs ChangeSet) error
}

// Notifier fans change sets out to observers and to an optional bus.
type Notifier struct {
	mu        sync.RWMutex
	observers map[int64]Observer
	nextID    atomic.Int64

	busMu sync.RWMutex
	bus   Bus
}

// New creates a Notifier without a bus.
func New() *Notifier {
	return &Notifier{observers: make(map[int64]Observer)}
}

// SetBus sets the bus local changes are published on. A nil bus disables
// publishing.
func (n *Notifier) SetBus(b Bus) {
	n.busMu.Lock()
	n.bus = b
	n.busMu.Unlock()
}

// Subscribe registers an observer and returns a function that removes it.
func (n *Notifier) Subscribe(fn Observer) func() {
	id := n.nextID.Add(1)
	n.mu.Lock()
	n.observers[id] = fn
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.observers, id)
			n.mu.Unlock()
		})
	}
}

// Notify runs every observer, then publishes the change on the bus unless it
// came from a remote peer.
func (n *Notifier) Notify(cs ChangeSet, fromRemote bool) {
	n.mu.RLock()
	ids := make([]int64, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]Observer, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, n.observers[id])
	}
	n.mu.RUnlock()

	for _, fn := range fns {
		n.call(fn, cs, fromRemote)
	}

	if fromRemote {
		return
	}
	n.busMu.RLock()
	bus := n.bus
	n.busMu.RUnlock()
	if bus == nil {
		return
	}
	if err := bus.Publish(cs); err != nil {
		slog.Warn("Change publish failed", "kind", cs.Kind, "op", cs.Op, "error", err)
	}
}

// Receive delivers a change set that arrived from a peer.
func (n *Notifier) Receive(cs ChangeSet) {
	n.Notify(cs, true)
}

// ObserverCount returns the number of registered observers.
func (n *Notifier) ObserverCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.observers)
}

func (n *Notifier) call(fn Observer, cs ChangeSet, fromRemote bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Change observer panicked", "kind", cs.Kind, "op", cs.Op, "panic", r)
		}
	}()
	fn(cs, fromRemote)
}
