package relay

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/Subhashis360/API-Inspector/internal/types"
)

type connectionInfo struct {
	feed      *FeedConfig
	msgFilter map[string]bool // nil means accept all
	seen      int
}

// FrameRelay republishes frames of captured WebSockets whose URL matches a
// configured feed. It is fed by the store's commit hook, so frames are
// relayed once they are persisted.
type FrameRelay struct {
	cfg    *Config
	broker *Broker

	mu          sync.Mutex
	connections map[string]*connectionInfo // connection id → info; nil info means no feed
}

// NewFrameRelay creates a relay for cfg's feeds.
func NewFrameRelay(cfg *Config, broker *Broker) *FrameRelay {
	if cfg == nil {
		cfg = &Config{}
	}
	slog.Info("Frame relay configured", "feeds", len(cfg.Feeds))
	return &FrameRelay{
		cfg:         cfg,
		broker:      broker,
		connections: make(map[string]*connectionInfo),
	}
}

// RequestsCommitted is a no-op; only sockets are relayed.
func (r *FrameRelay) RequestsCommitted([]types.Request) {}

// ConnectionsCommitted publishes frames appended since the last commit.
func (r *FrameRelay) ConnectionsCommitted(conns []types.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range conns {
		c := &conns[i]
		info, known := r.connections[c.ID]
		if !known {
			info = r.match(c.URL)
			r.connections[c.ID] = info
		}
		if info != nil {
			if info.seen > len(c.Frames) {
				info.seen = 0
			}
			for _, f := range c.Frames[info.seen:] {
				r.publish(info, f)
			}
			info.seen = len(c.Frames)
		}
		if c.Closed() {
			delete(r.connections, c.ID)
		}
	}
}

func (r *FrameRelay) match(url string) *connectionInfo {
	for i := range r.cfg.Feeds {
		feed := &r.cfg.Feeds[i]
		if !strings.Contains(url, feed.URLPattern) {
			continue
		}
		info := &connectionInfo{feed: feed}
		if len(feed.MessageTypes) > 0 {
			info.msgFilter = make(map[string]bool, len(feed.MessageTypes))
			for _, mt := range feed.MessageTypes {
				info.msgFilter[mt] = true
			}
		}
		slog.Debug("Relay matched socket", "feed", feed.Name, "url", url)
		return info
	}
	return nil
}

func (r *FrameRelay) publish(info *connectionInfo, f types.Frame) {
	if f.Payload == "" {
		return
	}
	if info.feed.Direction != "" && string(f.Direction) != info.feed.Direction {
		return
	}
	if info.msgFilter != nil {
		msgType := extractMessageType(f.Payload, info.feed.TypeField)
		if msgType == "" || !info.msgFilter[msgType] {
			return
		}
	}
	r.broker.Publish(Event{Feed: info.feed.Name, Payload: f.Payload})
}

// Tracked returns the number of sockets the relay is following.
func (r *FrameRelay) Tracked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, info := range r.connections {
		if info != nil {
			n++
		}
	}
	return n
}

// extractMessageType reads the string or number at field from a JSON object
// payload. Anything else yields "".
func extractMessageType(payload, field string) string {
	if field == "" {
		field = DefaultTypeField
	}
	data := strings.TrimSpace(payload)
	if len(data) == 0 || data[0] != '{' || !gjson.Valid(data) {
		return ""
	}
	v := gjson.Get(data, field)
	switch v.Type {
	case gjson.String, gjson.Number:
		return v.String()
	}
	return ""
}
