package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/Subhashis360/API-Inspector/internal/scope"
	"github.com/Subhashis360/API-Inspector/internal/store"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

const (
	DefaultEvictAfter = 60 * time.Second
	DefaultQueueSize  = 4096
)

// State is a session's attachment state.
type State int

const (
	Unattached State = iota
	Attaching
	Attached
	Detaching
)

func (s State) String() string {
	switch s {
	case Attaching:
		return "attaching"
	case Attached:
		return "attached"
	case Detaching:
		return "detaching"
	default:
		return "unattached"
	}
}

// Options configures a Registry.
type Options struct {
	EvictAfter    time.Duration
	MaxBodyBytes  int
	MaxFrameBytes int
	QueueSize     int
	Network       NetworkOptions
	Now           func() time.Time
}

// Session is the capture state of one browsing context.
type Session struct {
	ContextID string

	mu          sync.Mutex
	state       State
	scopeDomain string
	captureAll  bool
	location    string
	requests    map[string]*types.Request
	connections map[string]*types.Connection
	manual      map[string][]string
}

func newSession(contextID, scopeDomain string, captureAll bool) *Session {
	return &Session{
		ContextID:   contextID,
		state:       Attaching,
		scopeDomain: scopeDomain,
		captureAll:  captureAll,
		requests:    make(map[string]*types.Request),
		connections: make(map[string]*types.Connection),
		manual:      make(map[string][]string),
	}
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	ContextID          string `json:"context_id"`
	State              string `json:"state"`
	ScopeDomain        string `json:"scope_domain,omitempty"`
	CaptureAll         bool   `json:"capture_all"`
	Location           string `json:"location,omitempty"`
	PendingRequests    int    `json:"pending_requests"`
	PendingConnections int    `json:"pending_connections"`
}

// PersistedSession is the per-session entry of the active_sessions setting.
type PersistedSession struct {
	ContextID   string `json:"context_id"`
	ScopeDomain string `json:"scope_domain,omitempty"`
	CaptureAll  bool   `json:"capture_all"`
}

type windowMode struct {
	id          int64
	scopeDomain string
	captureAll  bool
}

// Registry tracks attached contexts and folds their events into records. All
// events are handled in order by a single dispatcher goroutine.
type Registry struct {
	ch    Channel
	store Store
	opts  Options

	mu       sync.Mutex
	sessions map[string]*Session
	window   *windowMode

	events   chan Event
	done     chan struct{}
	loopDone chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	bg       sync.WaitGroup

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}

	closeOnce sync.Once
}

// NewRegistry starts a registry and its dispatcher.
func NewRegistry(ch Channel, st Store, opts Options) *Registry {
	if opts.EvictAfter <= 0 {
		opts.EvictAfter = DefaultEvictAfter
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Network == (NetworkOptions{}) {
		opts.Network = DefaultNetworkOptions()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		ch:       ch,
		store:    st,
		opts:     opts,
		sessions: make(map[string]*Session),
		events:   make(chan Event, opts.QueueSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		timers:   make(map[*time.Timer]struct{}),
	}
	go r.loop()
	return r
}

// Close stops the dispatcher, cancels in-flight body fetches and waits for
// background work to finish. Sessions are left attached.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		<-r.loopDone
		r.cancel()
		r.bg.Wait()

		r.timersMu.Lock()
		for t := range r.timers {
			t.Stop()
		}
		r.timers = map[*time.Timer]struct{}{}
		r.timersMu.Unlock()
	})
}

// Deliver queues an event for the dispatcher. It blocks while the queue is
// full and drops the event once the registry is closed.
func (r *Registry) Deliver(ev Event) {
	if ev == nil {
		return
	}
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// Sync waits until every event delivered before the call has been handled.
func (r *Registry) Sync(ctx context.Context) error {
	b := barrier{done: make(chan struct{})}
	select {
	case r.events <- b:
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-b.done:
		return nil
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) loop() {
	defer close(r.loopDone)
	for {
		select {
		case ev := <-r.events:
			r.handle(ev)
		case <-r.done:
			return
		}
	}
}

func (r *Registry) handle(ev Event) {
	if b, ok := ev.(barrier); ok {
		close(b.done)
		return
	}
	if err := ev.Validate(); err != nil {
		slog.Warn("Dropping malformed event", "type", fmt.Sprintf("%T", ev), "context_id", ev.ContextID(), "error", err)
		return
	}

	switch e := ev.(type) {
	case ContextCreated:
		r.onContextCreated(e)
		return
	case ContextNavigated:
		r.onContextNavigated(e)
		return
	case ContextClosed:
		r.onContextGone(e.Context, "context closed")
		return
	case ChannelClosed:
		r.onContextGone(e.Context, e.Reason)
		return
	}

	s := r.session(ev.ContextID())
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Attached {
		return
	}
	r.correlate(s, ev)
}

func (r *Registry) session(contextID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[contextID]
}

// Attach starts capturing a context. Attaching an attached context updates
// its scope in place.
func (r *Registry) Attach(ctx context.Context, contextID, scopeDomain string, captureAll bool) error {
	if contextID == "" {
		return types.NewError(types.CodeValidation, "context id is required", nil)
	}

	r.mu.Lock()
	if s, ok := r.sessions[contextID]; ok {
		s.mu.Lock()
		s.scopeDomain = scopeDomain
		s.captureAll = captureAll
		s.mu.Unlock()
		r.mu.Unlock()
		slog.Info("Capture scope updated", "context_id", contextID, "scope", scopeDomain, "capture_all", captureAll)
		r.persistState(ctx)
		return nil
	}
	s := newSession(contextID, scopeDomain, captureAll)
	r.sessions[contextID] = s
	r.mu.Unlock()

	info, err := r.ch.Describe(ctx, contextID)
	if err != nil {
		r.drop(s)
		return types.NewError(types.CodeAttach, "context "+contextID+" is not reachable", err)
	}
	if info.Privileged() {
		r.drop(s)
		return types.NewError(types.CodeAttach, "cannot capture privileged page "+info.URL, nil)
	}
	if err := r.ch.Attach(ctx, contextID); err != nil {
		r.drop(s)
		return types.NewError(types.CodeAttach, "attach to "+contextID, err)
	}

	// Events may arrive as soon as observation is enabled.
	s.mu.Lock()
	s.location = info.URL
	s.state = Attached
	s.mu.Unlock()

	if err := r.ch.EnableNetwork(ctx, contextID, r.opts.Network); err != nil {
		r.drop(s)
		if derr := r.ch.Detach(ctx, contextID); derr != nil {
			slog.Debug("Detach after failed enable", "context_id", contextID, "error", derr)
		}
		return types.NewError(types.CodeAttach, "enable network on "+contextID, err)
	}

	slog.Info("Capture attached", "context_id", contextID, "url", info.URL, "scope", scopeDomain, "capture_all", captureAll)
	r.persistState(ctx)
	return nil
}

func (r *Registry) drop(s *Session) {
	r.mu.Lock()
	if r.sessions[s.ContextID] == s {
		delete(r.sessions, s.ContextID)
	}
	r.mu.Unlock()
	s.mu.Lock()
	s.state = Unattached
	s.mu.Unlock()
}

// Detach stops capturing a context. Unknown contexts are ignored.
func (r *Registry) Detach(ctx context.Context, contextID string) error {
	r.mu.Lock()
	s, ok := r.sessions[contextID]
	if ok {
		delete(r.sessions, contextID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	r.teardown(s)
	if err := r.ch.Detach(ctx, contextID); err != nil {
		slog.Warn("Channel detach failed", "context_id", contextID, "error", err)
	}
	slog.Info("Capture detached", "context_id", contextID)
	r.persistState(ctx)
	return nil
}

// DetachAll leaves whole-window mode and detaches every context.
func (r *Registry) DetachAll(ctx context.Context) error {
	r.mu.Lock()
	r.window = nil
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.Detach(ctx, id); err != nil {
			return err
		}
	}
	r.persistState(ctx)
	return nil
}

// AttachWindow attaches every page of a window and keeps attaching pages
// that are created or navigated in it. Individual failures are logged.
func (r *Registry) AttachWindow(ctx context.Context, windowID int64, scopeDomain string, captureAll bool) (int, error) {
	contexts, err := r.ch.ListContexts(ctx, windowID)
	if err != nil {
		return 0, types.NewError(types.CodeAttach, fmt.Sprintf("list contexts of window %d", windowID), err)
	}

	r.mu.Lock()
	r.window = &windowMode{id: windowID, scopeDomain: scopeDomain, captureAll: captureAll}
	r.mu.Unlock()

	attached := 0
	for _, c := range contexts {
		if c.Type != "" && c.Type != "page" {
			continue
		}
		if c.Privileged() {
			slog.Debug("Skipping privileged context", "context_id", c.ContextID, "url", c.URL)
			continue
		}
		if err := r.Attach(ctx, c.ContextID, scopeDomain, captureAll); err != nil {
			slog.Warn("Window attach failed", "context_id", c.ContextID, "error", err)
			continue
		}
		attached++
	}
	slog.Info("Window capture started", "window_id", windowID, "attached", attached, "contexts", len(contexts))
	r.persistState(ctx)
	return attached, nil
}

// Window returns the whole-window id, if that mode is on.
func (r *Registry) Window() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.window == nil {
		return 0, false
	}
	return r.window.id, true
}

// Recording reports whether any context is attached or window mode is on.
func (r *Registry) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions) > 0 || r.window != nil
}

// Attached reports whether the context has a session.
func (r *Registry) Attached(contextID string) bool {
	s := r.session(contextID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Attached
}

// Sessions returns a snapshot of every session, sorted by context id.
func (r *Registry) Sessions() []SessionInfo {
	r.mu.Lock()
	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	r.mu.Unlock()

	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		s.mu.Lock()
		out = append(out, SessionInfo{
			ContextID:          s.ContextID,
			State:              s.state.String(),
			ScopeDomain:        s.scopeDomain,
			CaptureAll:         s.captureAll,
			Location:           s.location,
			PendingRequests:    len(s.requests),
			PendingConnections: len(s.connections),
		})
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContextID < out[j].ContextID })
	return out
}

func (r *Registry) onContextCreated(e ContextCreated) {
	if e.Type != "" && e.Type != "page" {
		return
	}
	r.autoAttach(e.Context, e.WindowID, e.URL)
}

func (r *Registry) onContextNavigated(e ContextNavigated) {
	if s := r.session(e.Context); s != nil {
		s.mu.Lock()
		s.location = e.URL
		s.mu.Unlock()
		return
	}
	r.autoAttach(e.Context, e.WindowID, e.URL)
}

// autoAttach attaches a context that appeared in the captured window. It
// runs off the dispatcher so channel round trips do not stall event handling.
func (r *Registry) autoAttach(contextID string, windowID int64, location string) {
	r.mu.Lock()
	w := r.window
	_, known := r.sessions[contextID]
	r.mu.Unlock()
	if w == nil || known {
		return
	}
	if windowID != 0 && w.id != 0 && windowID != w.id {
		return
	}
	if (types.ContextInfo{URL: location}).Privileged() {
		return
	}

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		if err := r.Attach(r.ctx, contextID, w.scopeDomain, w.captureAll); err != nil {
			slog.Debug("Auto attach failed", "context_id", contextID, "error", err)
		}
	}()
}

func (r *Registry) onContextGone(contextID, reason string) {
	r.mu.Lock()
	s, ok := r.sessions[contextID]
	if ok {
		delete(r.sessions, contextID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.teardown(s)
	slog.Info("Capture session ended", "context_id", contextID, "reason", reason)
	r.persistState(r.ctx)
}

// teardown closes the session's open connections and marks it unattached.
func (r *Registry) teardown(s *Session) {
	now := r.opts.Now()
	s.mu.Lock()
	s.state = Detaching
	closed := make([]*types.Connection, 0, len(s.connections))
	for id, c := range s.connections {
		if !c.Closed() && !r.store.Tombstoned(id) {
			c.SetStatus(types.ConnClosed)
			at := now.UTC()
			c.ClosedAt = &at
			closed = append(closed, c)
		}
	}
	s.connections = make(map[string]*types.Connection)
	s.requests = make(map[string]*types.Request)
	s.state = Unattached
	s.mu.Unlock()

	for _, c := range closed {
		r.store.PutConnection(c)
	}
}

// persistState writes the recording settings used to resume after restart.
func (r *Registry) persistState(ctx context.Context) {
	r.mu.Lock()
	recording := len(r.sessions) > 0 || r.window != nil
	var windowID int64
	scopeDomain := ""
	if r.window != nil {
		windowID = r.window.id
		scopeDomain = r.window.scopeDomain
	}
	list := make([]PersistedSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.mu.Lock()
		if s.state == Attached {
			list = append(list, PersistedSession{ContextID: s.ContextID, ScopeDomain: s.scopeDomain, CaptureAll: s.captureAll})
			if scopeDomain == "" {
				scopeDomain = s.scopeDomain
			}
		}
		s.mu.Unlock()
	}
	r.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ContextID < list[j].ContextID })

	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	settings := []struct {
		key string
		v   any
	}{
		{store.SettingRecording, recording},
		{store.SettingActiveScope, scopeDomain},
		{store.SettingActiveSessions, list},
		{store.SettingWindowID, windowID},
	}
	for _, kv := range settings {
		if err := r.store.SetSetting(ctx, kv.key, kv.v); err != nil {
			slog.Warn("Failed to persist recording state", "key", kv.key, "error", err)
		}
	}
}

// sourceDomain resolves the grouping domain for a request: the session scope,
// then the context's location, then the request's own host.
func (r *Registry) sourceDomain(s *Session, rawURL string) string {
	if s.scopeDomain != "" {
		return scope.StripWWW(s.scopeDomain)
	}
	if host := httpHost(s.location); host != "" {
		return scope.StripWWW(host)
	}
	if u, err := url.Parse(rawURL); err == nil {
		return scope.StripWWW(u.Hostname())
	}
	return ""
}

func httpHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.Hostname()
}

func (r *Registry) at(m Meta) time.Time {
	if !m.At.IsZero() {
		return m.At
	}
	return r.opts.Now()
}

func (r *Registry) afterFunc(d time.Duration, f func()) {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.timersMu.Lock()
		delete(r.timers, t)
		r.timersMu.Unlock()
		f()
	})
	r.timers[t] = struct{}{}
}
