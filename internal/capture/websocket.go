package capture

import (
	"context"

	"github.com/Subhashis360/API-Inspector/internal/types"
)

// liveConnection returns the tracked connection unless it was deleted, in
// which case the session forgets it.
func (r *Registry) liveConnection(s *Session, id string) (*types.Connection, bool) {
	c, ok := s.connections[id]
	if !ok {
		return nil, false
	}
	if r.store.Tombstoned(id) {
		delete(s.connections, id)
		delete(s.manual, id)
		return nil, false
	}
	return c, true
}

func (r *Registry) onSocketCreated(s *Session, e SocketCreated) {
	if r.store.Tombstoned(e.RequestID) {
		return
	}
	c := &types.Connection{
		ID:        e.RequestID,
		URL:       e.URL,
		ContextID: s.ContextID,
		CreatedAt: r.at(e.Meta).UTC(),
		Frames:    []types.Frame{},
	}
	c.SetStatus(types.ConnConnecting)
	s.connections[e.RequestID] = c
	r.store.PutConnection(c)
}

func (r *Registry) onSocketHandshakeSent(s *Session, e SocketHandshakeSent) {
	c, ok := r.liveConnection(s, e.RequestID)
	if !ok || c.Closed() {
		return
	}
	if c.Handshake == nil {
		c.Handshake = &types.Handshake{}
	}
	c.Handshake.RequestHeaders = cloneHeaders(e.Headers)
	r.store.PutConnection(c)
}

func (r *Registry) onSocketHandshakeReceived(s *Session, e SocketHandshakeReceived) {
	c, ok := r.liveConnection(s, e.RequestID)
	if !ok || c.Closed() {
		return
	}
	if c.Handshake == nil {
		c.Handshake = &types.Handshake{}
	}
	c.Handshake.StatusCode = e.Status
	c.Handshake.StatusText = e.StatusText
	c.Handshake.Headers = cloneHeaders(e.Headers)
	c.SetStatus(types.ConnOpen)
	r.store.PutConnection(c)
}

func (r *Registry) onSocketFrame(s *Session, m Meta, id string, dir types.FrameDirection, opcode int, payload string) {
	c, ok := r.liveConnection(s, id)
	if !ok || c.Closed() {
		return
	}
	if opcode == types.OpcodeClose && c.Status != types.ConnClosing {
		c.SetStatus(types.ConnClosing)
		if payload == "" {
			r.store.PutConnection(c)
		}
	}
	if payload == "" {
		return
	}
	p := clip(payload, r.opts.MaxFrameBytes)
	f := types.Frame{
		Direction: dir,
		Payload:   p.data,
		Opcode:    opcode,
		Timestamp: r.at(m).UTC(),
	}
	if p.truncated {
		f.Truncated = true
		f.OriginalSize = p.size
		f.SHA256 = p.sum
	}
	if dir == types.FrameSent {
		f.Manual = s.consumeManual(id, payload)
	}
	c.Frames = append(c.Frames, f)
	r.store.PutConnection(c)
}

func (r *Registry) onSocketClosed(s *Session, e SocketClosed) {
	c, ok := r.liveConnection(s, e.RequestID)
	if !ok || c.Closed() {
		return
	}
	at := r.at(e.Meta).UTC()
	c.SetStatus(types.ConnClosed)
	c.ClosedAt = &at
	r.store.PutConnection(c)
	delete(s.connections, e.RequestID)
	delete(s.manual, e.RequestID)
}

// consumeManual reports whether payload was issued through SendFrame and
// removes the expectation. s.mu is held.
func (s *Session) consumeManual(id, payload string) bool {
	list := s.manual[id]
	for i, p := range list {
		if p == payload {
			s.manual[id] = append(list[:i], list[i+1:]...)
			if len(s.manual[id]) == 0 {
				delete(s.manual, id)
			}
			return true
		}
	}
	return false
}

// SendFrame writes a frame on a live WebSocket owned by an attached context.
// The echoed frame-sent event is recorded as manual.
func (r *Registry) SendFrame(ctx context.Context, connectionID, payload string) error {
	if payload == "" {
		return types.NewError(types.CodeValidation, "payload is required", nil)
	}

	var owner *Session
	r.mu.Lock()
	for _, s := range r.sessions {
		s.mu.Lock()
		c, ok := s.connections[connectionID]
		live := ok && !c.Closed() && s.state == Attached
		if live {
			s.manual[connectionID] = append(s.manual[connectionID], payload)
		}
		s.mu.Unlock()
		if ok {
			if !live {
				r.mu.Unlock()
				return types.NewError(types.CodeSendFrame, "connection "+connectionID+" is closed", nil)
			}
			owner = s
			break
		}
	}
	r.mu.Unlock()
	if owner == nil {
		return types.NewError(types.CodeNotAttached, "connection "+connectionID+" is not live in any attached context", nil)
	}

	if err := r.ch.SendFrame(ctx, owner.ContextID, connectionID, payload); err != nil {
		owner.mu.Lock()
		owner.consumeManual(connectionID, payload)
		owner.mu.Unlock()
		return types.NewError(types.CodeSendFrame, "send frame on "+connectionID, err)
	}
	return nil
}
