package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

type envelope struct {
	Origin string    `json:"origin"`
	Seq    uint64    `json:"seq"`
	Change ChangeSet `json:"change"`
}

// seenWindow is how many sequence numbers per origin are remembered.
// Anything older is treated as already handled.
const seenWindow = 1024

type originSeen struct {
	max  uint64
	seqs map[uint64]struct{}
}

// mark records seq and reports whether it was new.
func (o *originSeen) mark(seq uint64) bool {
	if o.max >= seenWindow && seq <= o.max-seenWindow {
		return false
	}
	if _, ok := o.seqs[seq]; ok {
		return false
	}
	o.seqs[seq] = struct{}{}
	if seq > o.max {
		o.max = seq
		if o.max > seenWindow {
			floor := o.max - seenWindow
			for s := range o.seqs {
				if s <= floor {
					delete(o.seqs, s)
				}
			}
		}
	}
	return true
}

type peer struct {
	conn   net.Conn
	client bool
	mu     sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client {
		return wsutil.WriteClientText(p.conn, data)
	}
	return wsutil.WriteServerText(p.conn, data)
}

func (p *peer) read() ([]byte, error) {
	if p.client {
		return wsutil.ReadServerText(p.conn)
	}
	return wsutil.ReadClientText(p.conn)
}

// WSBus links sibling processes over WebSocket. A process may accept peers
// through Handler and dial other processes with Dial. Only locally published
// changes are sent; a received change is delivered and never passed on, so
// every process that should hear a change must be linked to its origin.
// Messages carry an origin id and a sequence number. Two processes that dial
// each other hold two links, and the seen-set delivers each change once.
type WSBus struct {
	origin  string
	deliver func(ChangeSet)
	seq     atomic.Uint64

	mu     sync.Mutex
	peers  map[*peer]struct{}
	closed bool
	wg     sync.WaitGroup

	seenMu sync.Mutex
	seen   map[string]*originSeen
}

// NewWSBus creates a bus that hands remote change sets to deliver.
func NewWSBus(deliver func(ChangeSet)) *WSBus {
	return &WSBus{
		origin:  uuid.NewString(),
		deliver: deliver,
		peers:   make(map[*peer]struct{}),
		seen:    make(map[string]*originSeen),
	}
}

// Origin returns this process's origin id.
func (b *WSBus) Origin() string { return b.origin }

// PeerCount returns the number of connected peers.
func (b *WSBus) PeerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.peers)
}

// Handler upgrades incoming requests and registers them as peers.
func (b *WSBus) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("Peer upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		if !b.add(&peer{conn: conn}) {
			conn.Close()
		}
	})
}

// Dial connects to a sibling process's peer endpoint.
func (b *WSBus) Dial(ctx context.Context, url string) error {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return fmt.Errorf("notify: dial %s: %w", url, err)
	}
	if !b.add(&peer{conn: conn, client: true}) {
		conn.Close()
		return fmt.Errorf("notify: bus closed")
	}
	slog.Info("Connected to change peer", "url", url)
	return nil
}

// Publish sends a locally originated change set to every peer.
func (b *WSBus) Publish(cs ChangeSet) error {
	data, err := json.Marshal(envelope{Origin: b.origin, Seq: b.seq.Add(1), Change: cs})
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}
	b.broadcast(data)
	return nil
}

// Close disconnects every peer and waits for the read loops to exit.
func (b *WSBus) Close() error {
	b.mu.Lock()
	b.closed = true
	for p := range b.peers {
		p.conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

func (b *WSBus) add(p *peer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.peers[p] = struct{}{}
	b.wg.Add(1)
	go b.readLoop(p)
	return true
}

func (b *WSBus) remove(p *peer) {
	b.mu.Lock()
	delete(b.peers, p)
	b.mu.Unlock()
	p.conn.Close()
}

func (b *WSBus) broadcast(data []byte) {
	b.mu.Lock()
	targets := make([]*peer, 0, len(b.peers))
	for p := range b.peers {
		targets = append(targets, p)
	}
	b.mu.Unlock()

	for _, p := range targets {
		if err := p.write(data); err != nil {
			slog.Debug("Dropping change peer", "error", err)
			b.remove(p)
		}
	}
}

func (b *WSBus) readLoop(p *peer) {
	defer b.wg.Done()
	defer b.remove(p)

	for {
		data, err := p.read()
		if err != nil {
			slog.Debug("Change peer read loop exit", "error", err)
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("Malformed change message", "error", err)
			continue
		}
		if env.Origin == b.origin || !b.firstSeen(env.Origin, env.Seq) {
			continue
		}
		if b.deliver != nil {
			b.deliver(env.Change)
		}
	}
}

func (b *WSBus) firstSeen(origin string, seq uint64) bool {
	b.seenMu.Lock()
	defer b.seenMu.Unlock()
	o, ok := b.seen[origin]
	if !ok {
		o = &originSeen{seqs: make(map[uint64]struct{})}
		b.seen[origin] = o
	}
	return o.mark(seq)
}
