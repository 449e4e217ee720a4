package types

import "time"

// ConnectionStatus is the lifecycle state of a WebSocket connection.
type ConnectionStatus string

const (
	ConnConnecting ConnectionStatus = "connecting"
	ConnOpen       ConnectionStatus = "open"
	// ConnClosing is set when a close control frame is seen. Browsers have
	// no separate closing event, so a socket torn down without one goes
	// straight from open to closed.
	ConnClosing ConnectionStatus = "closing"
	ConnClosed  ConnectionStatus = "closed"
)

// OpcodeClose is the WebSocket close control frame opcode.
const OpcodeClose = 8

// ReadyState maps the status to the WebSocket readyState ordinal.
func (s ConnectionStatus) ReadyState() int {
	switch s {
	case ConnConnecting:
		return 0
	case ConnOpen:
		return 1
	case ConnClosing:
		return 2
	default:
		return 3
	}
}

// FrameDirection tells whether the page sent or received a frame.
type FrameDirection string

const (
	FrameSent     FrameDirection = "sent"
	FrameReceived FrameDirection = "received"
)

// Frame is a single WebSocket message.
type Frame struct {
	Direction    FrameDirection `json:"direction"`
	Payload      string         `json:"payload"`
	Opcode       int            `json:"opcode,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Manual       bool           `json:"manual,omitempty"`
	Truncated    bool           `json:"truncated,omitempty"`
	OriginalSize int            `json:"original_size,omitempty"`
	SHA256       string         `json:"sha256,omitempty"`
}

// Handshake holds the upgrade request/response metadata.
type Handshake struct {
	RequestHeaders []Header `json:"request_headers,omitempty"`
	StatusCode     int      `json:"status_code,omitempty"`
	StatusText     string   `json:"status_text,omitempty"`
	Headers        []Header `json:"headers,omitempty"`
}

// Connection tracks one logical WebSocket.
type Connection struct {
	ID         string           `json:"id"`
	URL        string           `json:"url"`
	ContextID  string           `json:"context_id"`
	CreatedAt  time.Time        `json:"created_at"`
	ClosedAt   *time.Time       `json:"closed_at,omitempty"`
	Status     ConnectionStatus `json:"status"`
	ReadyState int              `json:"ready_state"`
	Frames     []Frame          `json:"frames"`
	Handshake  *Handshake       `json:"handshake,omitempty"`
}

// SetStatus updates the status and the derived ready state together.
func (c *Connection) SetStatus(s ConnectionStatus) {
	c.Status = s
	c.ReadyState = s.ReadyState()
}

// Closed reports whether the connection reached its final state.
func (c *Connection) Closed() bool {
	return c.Status == ConnClosed
}

// Key returns the storage primary key.
func (c Connection) Key() string { return c.ID }

// Order returns the recency ordering key used by newest-first scans.
func (c Connection) Order() int64 { return c.CreatedAt.UnixNano() }

// Clone returns a deep copy safe to hand to another goroutine.
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	out := *c
	if c.ClosedAt != nil {
		t := *c.ClosedAt
		out.ClosedAt = &t
	}
	out.Frames = make([]Frame, len(c.Frames))
	copy(out.Frames, c.Frames)
	if c.Handshake != nil {
		hs := *c.Handshake
		hs.RequestHeaders = cloneHeaders(c.Handshake.RequestHeaders)
		hs.Headers = cloneHeaders(c.Handshake.Headers)
		out.Handshake = &hs
	}
	return &out
}

// FrameCounts returns the number of sent and received frames.
func (c *Connection) FrameCounts() (sent, received int) {
	for _, f := range c.Frames {
		if f.Direction == FrameSent {
			sent++
		} else {
			received++
		}
	}
	return sent, received
}
