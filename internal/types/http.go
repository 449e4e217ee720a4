package types

import (
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of an HTTP exchange.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusCompleted RequestStatus = "completed"
	StatusFailed    RequestStatus = "failed"
)

// Header is a single name/value pair. Order is preserved as received.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Request represents one captured HTTP(S) exchange.
type Request struct {
	ID             string        `json:"id"`
	ContextID      string        `json:"context_id"`
	URL            string        `json:"url"`
	SourceDomain   string        `json:"source_domain"`
	Method         string        `json:"method"`
	ResourceType   string        `json:"type"`
	Category       string        `json:"category,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         RequestStatus `json:"status"`
	RequestHeaders []Header      `json:"request_headers,omitempty"`
	RequestBody    *string       `json:"request_body,omitempty"`
	Response       *Response     `json:"response,omitempty"`
	Error          string        `json:"error,omitempty"`
	DurationMS     int64         `json:"duration_ms,omitempty"`
	Highlight      string        `json:"highlight,omitempty"`

	// started carries the monotonic clock reading used for durations.
	started time.Time
}

// Response represents the response portion of a Request.
type Response struct {
	StatusCode    int      `json:"status_code"`
	StatusText    string   `json:"status_text"`
	Headers       []Header `json:"headers,omitempty"`
	MimeType      string   `json:"mime_type,omitempty"`
	Body          string   `json:"body,omitempty"`
	Base64Encoded bool     `json:"base64_encoded,omitempty"`
	BodyError     string   `json:"body_error,omitempty"`
	Truncated     bool     `json:"truncated,omitempty"`
	OriginalSize  int      `json:"original_size,omitempty"`
	SHA256        string   `json:"sha256,omitempty"`
}

// MarkStarted records the wall-clock and monotonic start of the exchange.
func (r *Request) MarkStarted(now time.Time) {
	r.Timestamp = now.UTC()
	r.started = now
}

// Elapsed returns the time since MarkStarted, using the monotonic reading
// when one is available.
func (r *Request) Elapsed(now time.Time) time.Duration {
	if r.started.IsZero() {
		return now.Sub(r.Timestamp)
	}
	return now.Sub(r.started)
}

// Terminal reports whether the exchange has completed or failed.
func (r *Request) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Key returns the storage primary key.
func (r Request) Key() string { return r.ID }

// Order returns the recency ordering key used by newest-first scans.
func (r Request) Order() int64 { return r.Timestamp.UnixNano() }

// ContentType returns the response mime type, falling back to the
// Content-Type header without parameters.
func (r Request) ContentType() string {
	if r.Response == nil {
		return ""
	}
	if r.Response.MimeType != "" {
		return r.Response.MimeType
	}
	for _, h := range r.Response.Headers {
		if strings.EqualFold(h.Name, "content-type") {
			v, _, _ := strings.Cut(h.Value, ";")
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.RequestHeaders = cloneHeaders(r.RequestHeaders)
	if r.RequestBody != nil {
		body := *r.RequestBody
		out.RequestBody = &body
	}
	if r.Response != nil {
		resp := *r.Response
		resp.Headers = cloneHeaders(r.Response.Headers)
		out.Response = &resp
	}
	return &out
}

func cloneHeaders(in []Header) []Header {
	if in == nil {
		return nil
	}
	out := make([]Header, len(in))
	copy(out, in)
	return out
}
