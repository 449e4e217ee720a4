package notify

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recordingBus struct {
	mu  sync.Mutex
	got []ChangeSet
}

func (b *recordingBus) Publish(cs ChangeSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, cs)
	return nil
}

func (b *recordingBus) published() []ChangeSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ChangeSet(nil), b.got...)
}

func TestNotifyLocalPublishesOnBus(t *testing.T) {
	n := New()
	bus := &recordingBus{}
	n.SetBus(bus)

	var calls []bool
	cancel := n.Subscribe(func(cs ChangeSet, fromRemote bool) {
		calls = append(calls, fromRemote)
	})
	defer cancel()

	cs := ChangeSet{Kind: KindRequests, Op: OpPut, IDs: []string{"r1"}}
	n.Notify(cs, false)
	n.Receive(ChangeSet{Kind: KindConnections, Op: OpDelete, IDs: []string{"c1"}})

	if got, want := len(calls), 2; got != want {
		t.Fatalf("observer calls = %d; want %d", got, want)
	}
	if calls[0] || !calls[1] {
		t.Fatalf("fromRemote flags = %v; want [false true]", calls)
	}
	pub := bus.published()
	if len(pub) != 1 || pub[0].Kind != KindRequests {
		t.Fatalf("published = %+v; want only the local change", pub)
	}
}

func TestNotifyRecoversObserverPanic(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	n := New()
	n.Subscribe(func(ChangeSet, bool) { panic("boom") })
	reached := false
	n.Subscribe(func(ChangeSet, bool) { reached = true })

	n.Notify(ChangeSet{Kind: KindSettings, Op: OpPut}, false)

	if !reached {
		t.Fatalf("second observer not called after first panicked")
	}
	if !strings.Contains(buf.String(), "Change observer panicked") {
		t.Fatalf("expected panic to be logged, got %q", buf.String())
	}
}

func TestSubscribeCancel(t *testing.T) {
	n := New()
	cancel := n.Subscribe(func(ChangeSet, bool) {})
	require.Equal(t, 1, n.ObserverCount())
	cancel()
	cancel()
	require.Equal(t, 0, n.ObserverCount())
}

func TestWSBusNoEcho(t *testing.T) {
	hub := New()
	hubBus := NewWSBus(hub.Receive)
	hub.SetBus(hubBus)
	srv := httptest.NewServer(hubBus.Handler())
	defer srv.Close()
	defer hubBus.Close()

	leaf := New()
	leafBus := NewWSBus(leaf.Receive)
	leaf.SetBus(leafBus)
	defer leafBus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, leafBus.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")))
	require.Eventually(t, func() bool { return hubBus.PeerCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hubGot := make(chan bool, 4)
	hub.Subscribe(func(cs ChangeSet, fromRemote bool) { hubGot <- fromRemote })

	var mu sync.Mutex
	var leafCalls []bool
	leaf.Subscribe(func(cs ChangeSet, fromRemote bool) {
		mu.Lock()
		leafCalls = append(leafCalls, fromRemote)
		mu.Unlock()
	})

	leaf.Notify(ChangeSet{Kind: KindRequests, Op: OpPut, IDs: []string{"r1"}}, false)

	select {
	case fromRemote := <-hubGot:
		require.True(t, fromRemote)
	case <-time.After(2 * time.Second):
		t.Fatalf("hub never received the change")
	}

	// The hub must not send the change back.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []bool{false}, leafCalls)
}

func TestWSBusMeshDeliversOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	const n = 3
	var counts [n]atomic.Int64
	buses := make([]*WSBus, n)
	urls := make([]string, n)
	for i := 0; i < n; i++ {
		i := i
		buses[i] = NewWSBus(func(ChangeSet) { counts[i].Add(1) })
		srv := httptest.NewServer(buses[i].Handler())
		defer srv.Close()
		defer buses[i].Close()
		urls[i] = "ws" + strings.TrimPrefix(srv.URL, "http")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				require.NoError(t, buses[i].Dial(ctx, urls[j]))
			}
		}
	}
	// Every pair holds a dialed and an accepted link.
	for i := 0; i < n; i++ {
		b := buses[i]
		require.Eventually(t, func() bool { return b.PeerCount() == 2*(n-1) }, 2*time.Second, 10*time.Millisecond)
	}

	require.NoError(t, buses[0].Publish(ChangeSet{Kind: KindRequests, Op: OpPut, IDs: []string{"r1"}}))
	require.Eventually(t, func() bool {
		return counts[1].Load() == 1 && counts[2].Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(300 * time.Millisecond)
	require.Zero(t, counts[0].Load())
	require.EqualValues(t, 1, counts[1].Load())
	require.EqualValues(t, 1, counts[2].Load())

	require.NoError(t, buses[2].Publish(ChangeSet{Kind: KindRequests, Op: OpDelete, IDs: []string{"r1"}}))
	require.Eventually(t, func() bool {
		return counts[0].Load() == 1 && counts[1].Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	require.EqualValues(t, 1, counts[0].Load())
	require.EqualValues(t, 2, counts[1].Load())
	require.EqualValues(t, 1, counts[2].Load())
}

func TestOriginSeenWindow(t *testing.T) {
	o := &originSeen{seqs: make(map[uint64]struct{})}
	require.True(t, o.mark(2))
	require.True(t, o.mark(1))
	require.False(t, o.mark(2))

	require.True(t, o.mark(seenWindow+10))
	require.False(t, o.mark(5), "sequence numbers below the window count as seen")
	require.True(t, o.mark(seenWindow+9))
	require.LessOrEqual(t, len(o.seqs), seenWindow+1)
}
