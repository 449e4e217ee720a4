package cdp

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/target"
)

// tab is a chromedp context bound to one page target. The context outlives
// capture: cancelling it would close the page, so detached tabs are parked
// and reused on the next attach.
type tab struct {
	id      target.ID
	ctx     context.Context
	cancel  context.CancelFunc
	session target.SessionID

	// stopListen ends event delivery for the current capture.
	stopListen context.CancelFunc
	capturing  bool

	socketsMu sync.Mutex
	sockets   map[string]string
}

func (t *tab) rememberSocket(id, url string) {
	t.socketsMu.Lock()
	defer t.socketsMu.Unlock()
	t.sockets[id] = url
}

func (t *tab) forgetSocket(id string) {
	t.socketsMu.Lock()
	defer t.socketsMu.Unlock()
	delete(t.sockets, id)
}

func (t *tab) socketURL(id string) (string, bool) {
	t.socketsMu.Lock()
	defer t.socketsMu.Unlock()
	u, ok := t.sockets[id]
	return u, ok
}

// TabRegistry maps CDP target IDs to their chromedp contexts.
type TabRegistry struct {
	tabs map[target.ID]*tab
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*tab)}
}

func (r *TabRegistry) put(t *tab) {
	r.mu.Lock()
	r.tabs[t.id] = t
	r.mu.Unlock()
}

func (r *TabRegistry) get(id target.ID) (*tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tabs[id]
	return t, ok
}

func (r *TabRegistry) setCapturing(t *tab, on bool) {
	r.mu.Lock()
	t.capturing = on
	r.mu.Unlock()
}

func (r *TabRegistry) isCapturing(t *tab) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return t.capturing
}

// bySession finds the tab owning a flat protocol session.
func (r *TabRegistry) bySession(id target.SessionID) (*tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tabs {
		if t.session == id {
			return t, true
		}
	}
	return nil, false
}

func (r *TabRegistry) remove(id target.ID) (*tab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tabs[id]
	delete(r.tabs, id)
	return t, ok
}

// drain removes and returns every tab.
func (r *TabRegistry) drain() []*tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*tab, 0, len(r.tabs))
	for _, t := range r.tabs {
		out = append(out, t)
	}
	r.tabs = make(map[target.ID]*tab)
	return out
}

// Count returns the number of tabs currently capturing.
func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.tabs {
		if t.capturing {
			n++
		}
	}
	return n
}
