package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Subhashis360/API-Inspector/internal/notify"
	"github.com/Subhashis360/API-Inspector/internal/types"
)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The store uses it for the quiet-period flush.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// batcher coalesces writes by record id and commits them together once no
// write has arrived for the quiet period, or after maxWait under constant
// traffic. Flushes are serialized; writes arriving during a flush go into the
// next batch.
type batcher[T record] struct {
	kind    notify.Kind
	quiet   time.Duration
	maxWait time.Duration
	sched   Scheduler
	commit  func(ctx context.Context, items []T) error
	done    func(items []T)

	mu      sync.Mutex
	pending map[string]T
	since   time.Time
	timer   Timer
	closed  bool
	// tombs holds ids deleted for good; puts for them are refused.
	tombs map[string]struct{}

	flushMu sync.Mutex
}

// put queues v unless its id is tombstoned and reports whether it was
// queued.
func (b *batcher[T]) put(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.putLocked(v)
}

// putIf queues v only while present reports that the record exists, either
// pending or committed. It holds flushMu so no delete can run between the
// check and the enqueue.
func (b *batcher[T]) putIf(v T, present func(id string) bool) bool {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	b.mu.Lock()
	defer b.mu.Unlock()
	id := v.Key()
	if _, ok := b.pending[id]; !ok && !present(id) {
		return false
	}
	return b.putLocked(v)
}

// putLocked must be called with b.mu held.
func (b *batcher[T]) putLocked(v T) bool {
	id := v.Key()
	if _, dead := b.tombs[id]; dead {
		return false
	}
	if b.pending == nil {
		b.pending = make(map[string]T)
	}
	b.pending[id] = v
	if b.since.IsZero() {
		b.since = time.Now()
	}
	b.arm()
	return true
}

func (b *batcher[T]) tombstoned(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tombs[id]
	return ok
}

// arm must be called with b.mu held.
func (b *batcher[T]) arm() {
	if b.closed {
		return
	}
	if b.timer != nil {
		if b.maxWait > 0 && time.Since(b.since) >= b.maxWait {
			return
		}
		b.timer.Stop()
	}
	b.timer = b.sched.AfterFunc(b.quiet, b.fire)
}

func (b *batcher[T]) fire() {
	_ = b.flush(context.Background())
}

func (b *batcher[T]) peek(id string) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.pending[id]
	return v, ok
}

func (b *batcher[T]) pendingIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.pending))
	for id := range b.pending {
		out = append(out, id)
	}
	return out
}

func (b *batcher[T]) flush(ctx context.Context) error {
	b.flushMu.Lock()

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.pending
	b.pending = make(map[string]T)
	b.since = time.Time{}
	for id := range b.tombs {
		delete(batch, id)
	}
	b.mu.Unlock()

	if len(batch) == 0 {
		b.flushMu.Unlock()
		return nil
	}

	items := make([]T, 0, len(batch))
	for _, v := range batch {
		items = append(items, v)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Order() < items[j].Order() })

	if err := b.commit(ctx, items); err != nil {
		slog.Error("Batch commit failed, retrying on next flush", "kind", b.kind, "records", len(items), "error", err)
		b.mu.Lock()
		for id, v := range batch {
			if _, superseded := b.pending[id]; !superseded {
				b.pending[id] = v
			}
		}
		if b.since.IsZero() {
			b.since = time.Now()
		}
		b.arm()
		b.mu.Unlock()
		b.flushMu.Unlock()
		return types.NewError(types.CodeStorage, "commit "+string(b.kind), err)
	}
	b.flushMu.Unlock()

	slog.Debug("Batch committed", "kind", b.kind, "records", len(items))
	if b.done != nil {
		b.done(items)
	}
	return nil
}

// exclusive runs fn with no flush in flight and drops the given ids from the
// pending batch first. A nil ids drops the whole batch. With tombstone set
// the dropped ids, plus any in extra, are refused from then on.
func (b *batcher[T]) exclusive(ids []string, tombstone bool, extra func() []string, fn func() error) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	dropped := ids
	if ids == nil {
		dropped = make([]string, 0, len(b.pending))
		for id := range b.pending {
			dropped = append(dropped, id)
		}
		b.pending = make(map[string]T)
		b.since = time.Time{}
	} else {
		for _, id := range ids {
			delete(b.pending, id)
		}
	}
	if tombstone {
		if extra != nil {
			dropped = append(dropped, extra()...)
		}
		if b.tombs == nil {
			b.tombs = make(map[string]struct{}, len(dropped))
		}
		for _, id := range dropped {
			b.tombs[id] = struct{}{}
		}
	}
	b.mu.Unlock()

	return fn()
}

func (b *batcher[T]) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
