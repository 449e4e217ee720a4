// Package store persists captured requests, WebSocket connections and
// settings as one JSON document per record on an afero filesystem.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/Subhashis360/API-Inspector/internal/filter"
	"github.com/Subhashis360/API-Inspector/internal/notify"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

const (
	DefaultQuietPeriod = 100 * time.Millisecond
	DefaultMaxWait     = time.Second
	DefaultScanLimit   = 5000
)

// Notifier receives a change set after every commit.
type Notifier interface {
	Notify(cs notify.ChangeSet, fromRemote bool)
}

// CommitHook observes records after they are durably written.
type CommitHook interface {
	RequestsCommitted(items []types.Request)
	ConnectionsCommitted(items []types.Connection)
}

// Hooks fans a commit out to several hooks in order.
type Hooks []CommitHook

func (h Hooks) RequestsCommitted(items []types.Request) {
	for _, hook := range h {
		hook.RequestsCommitted(items)
	}
}

func (h Hooks) ConnectionsCommitted(items []types.Connection) {
	for _, hook := range h {
		hook.ConnectionsCommitted(items)
	}
}

// Options configures a Store.
type Options struct {
	Fs          afero.Fs
	Root        string
	Compress    bool
	QuietPeriod time.Duration
	MaxWait     time.Duration
	Scheduler   Scheduler
	Notifier    Notifier
	Hook        CommitHook
}

// Stats holds table sizes.
type Stats struct {
	Requests    int `json:"request_count"`
	Connections int `json:"connection_count"`
}

// Store is the persistent record store.
type Store struct {
	notifier Notifier
	hook     CommitHook
	codec    *codec

	requests *table[types.Request]
	conns    *table[types.Connection]
	settings *settingsTable

	reqBatch  *batcher[types.Request]
	connBatch *batcher[types.Connection]
}

// Open opens or creates the tables under opts.Root.
func Open(opts Options) (*Store, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	if opts.Scheduler == nil {
		opts.Scheduler = clockScheduler{}
	}

	c, err := newCodec(opts.Compress)
	if err != nil {
		return nil, err
	}

	s := &Store{
		notifier:   opts.Notifier,
		hook:       opts.Hook,
		codec:    c,
	}

	if s.requests, err = openTable[types.Request](opts.Fs, filepath.Join(opts.Root, "requests"), c); err != nil {
		c.close()
		return nil, err
	}
	if s.conns, err = openTable[types.Connection](opts.Fs, filepath.Join(opts.Root, "connections"), c); err != nil {
		c.close()
		return nil, err
	}
	if s.settings, err = openSettings(opts.Fs, filepath.Join(opts.Root, "settings")); err != nil {
		c.close()
		return nil, err
	}

	s.reqBatch = &batcher[types.Request]{
		kind:    notify.KindRequests,
		quiet:   opts.QuietPeriod,
		maxWait: opts.MaxWait,
		sched:   opts.Scheduler,
		commit: func(_ context.Context, items []types.Request) error {
			return s.requests.put(items)
		},
		done: s.requestsCommitted,
	}
	s.connBatch = &batcher[types.Connection]{
		kind:    notify.KindConnections,
		quiet:   opts.QuietPeriod,
		maxWait: opts.MaxWait,
		sched:   opts.Scheduler,
		commit: func(_ context.Context, items []types.Connection) error {
			return s.conns.put(items)
		},
		done: s.connectionsCommitted,
	}

	slog.Info("Store opened",
		"root", opts.Root,
		"requests", s.requests.count(),
		"connections", s.conns.count(),
		"compress", opts.Compress)
	return s, nil
}

// Close flushes pending writes and stops the flush timers.
func (s *Store) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.reqBatch.stop()
	s.connBatch.stop()
	s.codec.close()
	return err
}

// PutRequest queues a request write. Repeated writes for the same id before
// the next flush collapse into one.
func (s *Store) PutRequest(r *types.Request) {
	if r == nil || r.ID == "" {
		return
	}
	s.reqBatch.put(*r.Clone())
}

// AmendRequest queues a write only while the request still exists, so an
// update racing a delete cannot bring it back. It reports whether the write
// was queued.
func (s *Store) AmendRequest(r *types.Request) bool {
	if r == nil || r.ID == "" {
		return false
	}
	return s.reqBatch.putIf(*r.Clone(), s.requests.has)
}

// PutConnection queues a connection write. Writes for deleted connections are
// dropped.
func (s *Store) PutConnection(c *types.Connection) {
	if c == nil || c.ID == "" {
		return
	}
	if !s.connBatch.put(*c.Clone()) {
		slog.Debug("Dropping write for deleted connection", "connection_id", c.ID)
	}
}

// Flush commits both pending batches now.
func (s *Store) Flush(ctx context.Context) error {
	return errors.Join(s.reqBatch.flush(ctx), s.connBatch.flush(ctx))
}

// Tombstoned reports whether the connection was deleted during this process.
func (s *Store) Tombstoned(id string) bool {
	return s.connBatch.tombstoned(id)
}

// GetRequest returns the latest state of a request, including writes not yet
// flushed.
func (s *Store) GetRequest(_ context.Context, id string) (*types.Request, error) {
	if v, ok := s.reqBatch.peek(id); ok {
		return v.Clone(), nil
	}
	v, ok, err := s.requests.get(id)
	if err != nil {
		return nil, types.NewError(types.CodeStorage, "read request", err)
	}
	if !ok {
		return nil, types.NewError(types.CodeNotFound, fmt.Sprintf("request %q not found", id), nil)
	}
	return &v, nil
}

// GetConnection returns the latest state of a connection.
func (s *Store) GetConnection(_ context.Context, id string) (*types.Connection, error) {
	if v, ok := s.connBatch.peek(id); ok {
		return v.Clone(), nil
	}
	v, ok, err := s.conns.get(id)
	if err != nil {
		return nil, types.NewError(types.CodeStorage, "read connection", err)
	}
	if !ok {
		return nil, types.NewError(types.CodeNotFound, fmt.Sprintf("connection %q not found", id), nil)
	}
	return &v, nil
}

// Requests returns committed requests newest first. limit <= 0 means all.
func (s *Store) Requests(ctx context.Context, limit int) ([]types.Request, error) {
	out := []types.Request{}
	err := s.requests.scan(ctx, func(r types.Request) bool {
		out = append(out, r)
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

// Connections returns committed connections newest first. limit <= 0 means all.
func (s *Store) Connections(ctx context.Context, limit int) ([]types.Connection, error) {
	out := []types.Connection{}
	err := s.conns.scan(ctx, func(c types.Connection) bool {
		out = append(out, c)
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

// ScanFiltered walks requests newest first and returns up to limit records
// accepted by m. Only accepted records are held in memory.
func (s *Store) ScanFiltered(ctx context.Context, m *filter.Matcher, limit int) ([]types.Request, error) {
	if limit <= 0 {
		limit = DefaultScanLimit
	}
	out := []types.Request{}
	err := s.requests.scan(ctx, func(r types.Request) bool {
		if m == nil || m.Match(r) {
			out = append(out, r)
		}
		return len(out) < limit
	})
	return out, err
}

// DeleteRequest removes one request.
func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	return s.DeleteRequests(ctx, []string{id})
}

// DeleteRequests removes the given requests, including unflushed writes.
func (s *Store) DeleteRequests(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	var removed []string
	err := s.reqBatch.exclusive(ids, false, nil, func() error {
		var err error
		removed, err = s.requests.delete(ids)
		return err
	})
	if err != nil {
		return types.NewError(types.CodeStorage, "delete requests", err)
	}
	s.notify(notify.ChangeSet{Kind: notify.KindRequests, Op: notify.OpDelete, IDs: ids})
	slog.Debug("Requests deleted", "requested", len(ids), "removed", len(removed))
	return nil
}

// DeleteRequestsWhere removes every request matching pred and returns how
// many were removed.
func (s *Store) DeleteRequestsWhere(ctx context.Context, pred func(types.Request) bool) (int, error) {
	if err := s.reqBatch.flush(ctx); err != nil {
		return 0, err
	}
	var ids []string
	err := s.requests.scan(ctx, func(r types.Request) bool {
		if pred(r) {
			ids = append(ids, r.ID)
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if err := s.DeleteRequests(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DeleteConnection removes a connection and remembers its id so later
// events cannot write it back.
func (s *Store) DeleteConnection(_ context.Context, id string) error {
	err := s.connBatch.exclusive([]string{id}, true, nil, func() error {
		_, err := s.conns.delete([]string{id})
		return err
	})
	if err != nil {
		return types.NewError(types.CodeStorage, "delete connection", err)
	}
	s.notify(notify.ChangeSet{Kind: notify.KindConnections, Op: notify.OpDelete, IDs: []string{id}})
	return nil
}

// ClearRequests removes every request.
func (s *Store) ClearRequests(_ context.Context) error {
	err := s.reqBatch.exclusive(nil, false, nil, func() error {
		_, err := s.requests.clear()
		return err
	})
	if err != nil {
		return types.NewError(types.CodeStorage, "clear requests", err)
	}
	s.notify(notify.ChangeSet{Kind: notify.KindRequests, Op: notify.OpClear})
	return nil
}

// ClearConnections removes every connection. Cleared ids are tombstoned.
func (s *Store) ClearConnections(_ context.Context) error {
	err := s.connBatch.exclusive(nil, true, s.conns.ids, func() error {
		_, err := s.conns.clear()
		return err
	})
	if err != nil {
		return types.NewError(types.CodeStorage, "clear connections", err)
	}
	s.notify(notify.ChangeSet{Kind: notify.KindConnections, Op: notify.OpClear})
	return nil
}

// Stats counts committed and pending records.
func (s *Store) Stats(_ context.Context) Stats {
	reqs := s.requests.count()
	for _, id := range s.reqBatch.pendingIDs() {
		if !s.requests.has(id) {
			reqs++
		}
	}
	conns := s.conns.count()
	for _, id := range s.connBatch.pendingIDs() {
		if !s.conns.has(id) {
			conns++
		}
	}
	return Stats{Requests: reqs, Connections: conns}
}

func (s *Store) requestsCommitted(items []types.Request) {
	ids := make([]string, len(items))
	for i, r := range items {
		ids[i] = r.ID
	}
	s.notify(notify.ChangeSet{Kind: notify.KindRequests, Op: notify.OpPut, IDs: ids})
	if s.hook != nil {
		s.hook.RequestsCommitted(items)
	}
}

func (s *Store) connectionsCommitted(items []types.Connection) {
	ids := make([]string, len(items))
	for i, c := range items {
		ids[i] = c.ID
	}
	s.notify(notify.ChangeSet{Kind: notify.KindConnections, Op: notify.OpPut, IDs: ids})
	if s.hook != nil {
		s.hook.ConnectionsCommitted(items)
	}
}

func (s *Store) notify(cs notify.ChangeSet) {
	if s.notifier != nil {
		s.notifier.Notify(cs, false)
	}
}
