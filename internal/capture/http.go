package capture

import (
	"log/slog"
	"strings"

	"github.com/Subhashis360/API-Inspector/internal/classify"
	"github.com/Subhashis360/API-Inspector/internal/filter"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

const bodyErrorPrefix = "Body capture failed: "

// correlate applies one network event to the session. s.mu is held.
func (r *Registry) correlate(s *Session, ev Event) {
	switch e := ev.(type) {
	case RequestInitiated:
		r.onRequestInitiated(s, e)
	case RequestExtraInfo:
		r.onRequestExtraInfo(s, e)
	case ResponseReceived:
		r.onResponseReceived(s, e)
	case ResponseExtraInfo:
		r.onResponseExtraInfo(s, e)
	case LoadingFinished:
		r.onLoadingFinished(s, e)
	case LoadingFailed:
		r.onLoadingFailed(s, e)
	case SocketCreated:
		r.onSocketCreated(s, e)
	case SocketHandshakeSent:
		r.onSocketHandshakeSent(s, e)
	case SocketHandshakeReceived:
		r.onSocketHandshakeReceived(s, e)
	case SocketFrameSent:
		r.onSocketFrame(s, e.Meta, e.RequestID, types.FrameSent, e.Opcode, e.Payload)
	case SocketFrameReceived:
		r.onSocketFrame(s, e.Meta, e.RequestID, types.FrameReceived, e.Opcode, e.Payload)
	case SocketClosed:
		r.onSocketClosed(s, e)
	default:
		slog.Debug("Ignoring unknown event", "context_id", ev.ContextID())
	}
}

func (r *Registry) onRequestInitiated(s *Session, e RequestInitiated) {
	method := strings.ToUpper(e.Method)
	if method == "" {
		method = "GET"
	}

	d := filter.Coarse(filter.CoarseInput{
		URL:          e.URL,
		Method:       method,
		ResourceType: e.ResourceType,
		ScopeDomain:  s.scopeDomain,
		CaptureAll:   s.captureAll,
	})
	if !d.Accept {
		// A redirect to a rejected location ends the exchange.
		delete(s.requests, e.RequestID)
		slog.Debug("Request filtered", "context_id", s.ContextID, "request_id", e.RequestID, "reason", d.Reason, "url", truncateURL(e.URL))
		return
	}

	req := &types.Request{
		ID:             e.RequestID,
		ContextID:      s.ContextID,
		URL:            e.URL,
		SourceDomain:   r.sourceDomain(s, e.URL),
		Method:         method,
		ResourceType:   e.ResourceType,
		Category:       string(d.Category),
		Status:         types.StatusPending,
		RequestHeaders: cloneHeaders(e.Headers),
	}
	if e.PostData != nil {
		body := clip(*e.PostData, r.opts.MaxBodyBytes).data
		req.RequestBody = &body
	}
	req.MarkStarted(r.at(e.Meta))

	s.requests[e.RequestID] = req
	r.store.PutRequest(req)
}

func (r *Registry) onRequestExtraInfo(s *Session, e RequestExtraInfo) {
	req, ok := s.requests[e.RequestID]
	if !ok || req.Terminal() {
		return
	}
	req.RequestHeaders = mergeHeaders(req.RequestHeaders, e.Headers)
	r.store.PutRequest(req)
}

func (r *Registry) onResponseReceived(s *Session, e ResponseReceived) {
	req, ok := s.requests[e.RequestID]
	if !ok || req.Terminal() {
		return
	}
	resp := ensureResponse(req)
	resp.StatusCode = e.Status
	resp.StatusText = e.StatusText
	resp.Headers = mergeHeaders(resp.Headers, e.Headers)
	resp.MimeType = e.MimeType
	if e.ResourceType != "" && req.ResourceType == "" {
		req.ResourceType = e.ResourceType
	}
	req.Category = string(classify.Classify(req.ResourceType, req.URL, e.MimeType))
	r.store.PutRequest(req)
}

func (r *Registry) onResponseExtraInfo(s *Session, e ResponseExtraInfo) {
	req, ok := s.requests[e.RequestID]
	if !ok || req.Terminal() {
		return
	}
	resp := ensureResponse(req)
	if resp.StatusCode == 0 {
		resp.StatusCode = e.Status
	}
	resp.Headers = mergeHeaders(resp.Headers, e.Headers)
	r.store.PutRequest(req)
}

func (r *Registry) onLoadingFinished(s *Session, e LoadingFinished) {
	req, ok := s.requests[e.RequestID]
	if !ok || req.Terminal() {
		return
	}
	req.Status = types.StatusCompleted
	ensureResponse(req)
	req.DurationMS = req.Elapsed(r.at(e.Meta)).Milliseconds()
	r.store.PutRequest(req)

	r.fetchBody(s, req.Clone())
	r.scheduleEvict(s, req)
}

func (r *Registry) onLoadingFailed(s *Session, e LoadingFailed) {
	req, ok := s.requests[e.RequestID]
	if !ok || req.Terminal() {
		return
	}
	req.Status = types.StatusFailed
	req.Error = e.ErrorText
	if req.Error == "" && e.Canceled {
		req.Error = "canceled"
	}
	req.DurationMS = req.Elapsed(r.at(e.Meta)).Milliseconds()
	r.store.PutRequest(req)
	r.scheduleEvict(s, req)
}

// fetchBody amends a completed record with its response body. The fetch is
// not canceled by detach; a failure is stored as text on the response.
func (r *Registry) fetchBody(s *Session, snapshot *types.Request) {
	contextID := s.ContextID
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()

		body, err := r.ch.FetchBody(r.ctx, contextID, snapshot.ID)
		resp := ensureResponse(snapshot)
		if err != nil {
			resp.BodyError = bodyErrorPrefix + err.Error()
			slog.Debug("Failed to get response body", "context_id", contextID, "request_id", snapshot.ID, "error", err)
		} else {
			c := clip(body.Data, r.opts.MaxBodyBytes)
			resp.Body = c.data
			resp.Base64Encoded = body.Base64Encoded
			if c.truncated {
				resp.Truncated = true
				resp.OriginalSize = c.size
				resp.SHA256 = c.sum
				slog.Warn("Response body truncated", "request_id", snapshot.ID, "original_size", c.size, "kept_size", len(c.data), "sha256", c.sum)
			}
		}

		s.mu.Lock()
		if cur, ok := s.requests[snapshot.ID]; ok {
			snapshot.Highlight = cur.Highlight
		}
		s.mu.Unlock()
		if !r.store.AmendRequest(snapshot) {
			slog.Debug("Dropping body for deleted request", "context_id", contextID, "request_id", snapshot.ID)
		}
	}()
}

func (r *Registry) scheduleEvict(s *Session, req *types.Request) {
	id := req.ID
	r.afterFunc(r.opts.EvictAfter, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.requests[id]; ok && cur == req {
			delete(s.requests, id)
		}
	})
}

// Annotate sets the highlight tag on a request still held by a session and
// writes it through. It reports false when no session holds the request or
// the request has been deleted from the store.
func (r *Registry) Annotate(requestID, tag string) bool {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	for _, s := range list {
		s.mu.Lock()
		req, ok := s.requests[requestID]
		if ok {
			req.Highlight = tag
			ok = r.store.AmendRequest(req)
		}
		s.mu.Unlock()
		if ok {
			return true
		}
	}
	return false
}

func ensureResponse(req *types.Request) *types.Response {
	if req.Response == nil {
		req.Response = &types.Response{}
	}
	return req.Response
}

// mergeHeaders overlays extra onto base. Names compare case-insensitively;
// values in extra win and new names are appended in order.
func mergeHeaders(base, extra []types.Header) []types.Header {
	if len(extra) == 0 {
		return base
	}
	out := cloneHeaders(base)
	for _, h := range extra {
		replaced := false
		for i := range out {
			if strings.EqualFold(out[i].Name, h.Name) {
				out[i].Value = h.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, h)
		}
	}
	return out
}

func cloneHeaders(in []types.Header) []types.Header {
	if in == nil {
		return nil
	}
	out := make([]types.Header, len(in))
	copy(out, in)
	return out
}

func truncateURL(u string) string {
	if len(u) > 120 {
		return u[:120] + "..."
	}
	return u
}
