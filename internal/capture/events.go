package capture

import (
	"errors"
	"time"

	"github.com/Subhashis360/API-Inspector/internal/types"
)

var (
	errNoContext = errors.New("missing context id")
	errNoID      = errors.New("missing exchange id")
	errNoURL     = errors.New("missing url")
)

// Event is one network or lifecycle notification for a browsing context.
type Event interface {
	ContextID() string
	Validate() error
}

// Meta carries the fields shared by every event. A zero At means the event
// is stamped with the registry clock when handled.
type Meta struct {
	Context string
	At      time.Time
}

// ContextID returns the owning browsing context.
func (m Meta) ContextID() string { return m.Context }

func (m Meta) check(id string) error {
	if m.Context == "" {
		return errNoContext
	}
	if id == "" {
		return errNoID
	}
	return nil
}

// RequestInitiated is sent when the page issues an HTTP request.
type RequestInitiated struct {
	Meta
	RequestID    string
	URL          string
	Method       string
	ResourceType string
	Headers      []types.Header
	PostData     *string
}

func (e RequestInitiated) Validate() error {
	if err := e.check(e.RequestID); err != nil {
		return err
	}
	if e.URL == "" {
		return errNoURL
	}
	return nil
}

// RequestExtraInfo carries the request headers as sent on the wire,
// including cookies.
type RequestExtraInfo struct {
	Meta
	RequestID string
	Headers   []types.Header
}

func (e RequestExtraInfo) Validate() error { return e.check(e.RequestID) }

// ResponseReceived carries the response status line and headers.
type ResponseReceived struct {
	Meta
	RequestID    string
	ResourceType string
	Status       int
	StatusText   string
	Headers      []types.Header
	MimeType     string
}

func (e ResponseReceived) Validate() error { return e.check(e.RequestID) }

// ResponseExtraInfo carries the raw response headers, including Set-Cookie.
type ResponseExtraInfo struct {
	Meta
	RequestID string
	Status    int
	Headers   []types.Header
}

func (e ResponseExtraInfo) Validate() error { return e.check(e.RequestID) }

// LoadingFinished marks the response body as fully received.
type LoadingFinished struct {
	Meta
	RequestID     string
	EncodedLength int64
}

func (e LoadingFinished) Validate() error { return e.check(e.RequestID) }

// LoadingFailed marks the exchange as failed.
type LoadingFailed struct {
	Meta
	RequestID string
	ErrorText string
	Canceled  bool
}

func (e LoadingFailed) Validate() error { return e.check(e.RequestID) }

// SocketCreated is sent when the page opens a WebSocket.
type SocketCreated struct {
	Meta
	RequestID string
	URL       string
}

func (e SocketCreated) Validate() error {
	if err := e.check(e.RequestID); err != nil {
		return err
	}
	if e.URL == "" {
		return errNoURL
	}
	return nil
}

// SocketHandshakeSent carries the upgrade request headers.
type SocketHandshakeSent struct {
	Meta
	RequestID string
	Headers   []types.Header
}

func (e SocketHandshakeSent) Validate() error { return e.check(e.RequestID) }

// SocketHandshakeReceived carries the upgrade response.
type SocketHandshakeReceived struct {
	Meta
	RequestID  string
	Status     int
	StatusText string
	Headers    []types.Header
}

func (e SocketHandshakeReceived) Validate() error { return e.check(e.RequestID) }

// SocketFrameSent is a frame written by the page.
type SocketFrameSent struct {
	Meta
	RequestID string
	Opcode    int
	Payload   string
}

func (e SocketFrameSent) Validate() error { return e.check(e.RequestID) }

// SocketFrameReceived is a frame read by the page.
type SocketFrameReceived struct {
	Meta
	RequestID string
	Opcode    int
	Payload   string
}

func (e SocketFrameReceived) Validate() error { return e.check(e.RequestID) }

// SocketClosed marks the WebSocket as closed.
type SocketClosed struct {
	Meta
	RequestID string
}

func (e SocketClosed) Validate() error { return e.check(e.RequestID) }

// ContextCreated is sent when a new browsing context appears.
type ContextCreated struct {
	Meta
	WindowID int64
	Type     string
	URL      string
}

func (e ContextCreated) Validate() error {
	if e.Context == "" {
		return errNoContext
	}
	return nil
}

// ContextNavigated is sent when a context commits a new location.
type ContextNavigated struct {
	Meta
	WindowID int64
	URL      string
}

func (e ContextNavigated) Validate() error {
	if e.Context == "" {
		return errNoContext
	}
	return nil
}

// ContextClosed is sent when a browsing context is destroyed.
type ContextClosed struct {
	Meta
}

func (e ContextClosed) Validate() error {
	if e.Context == "" {
		return errNoContext
	}
	return nil
}

// ChannelClosed is sent when the capture channel to a context goes away
// without a Detach call.
type ChannelClosed struct {
	Meta
	Reason string
}

func (e ChannelClosed) Validate() error {
	if e.Context == "" {
		return errNoContext
	}
	return nil
}

// barrier is queued by Sync; it is released when the dispatcher reaches it.
type barrier struct {
	done chan struct{}
}

func (barrier) ContextID() string { return "" }
func (barrier) Validate() error   { return nil }
