package overlay

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

// PeerQueueCapacity bounds a peer's outbound queue. Once it is full,
// Enqueue and the flood engine block until the sender drains it.
const PeerQueueCapacity = 10000

// Peer tracks one neighbor of this node: its address, its own announced
// 1-hop neighbor set, and the outbound message queue its sender
// goroutine drains.
type Peer struct {
	Address string

	mu        sync.Mutex
	neighbors map[string]struct{}
	sendCh    chan wire.Message

	available atomic.Bool
	canceled  atomic.Bool
}

// NewPeer returns a Peer for address with the given announced
// neighbors (may be nil) and a fresh outbound queue.
func NewPeer(address string, neighbors []string) *Peer {
	p := &Peer{
		Address:   address,
		neighbors: toSet(neighbors),
	}
	p.sendCh = make(chan wire.Message, PeerQueueCapacity)
	return p
}

func toSet(values []string) map[string]struct{} {
	s := make(map[string]struct{}, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Neighbors returns the peer's last-announced 1-hop neighbor addresses.
func (p *Peer) Neighbors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.neighbors))
	for addr := range p.neighbors {
		out = append(out, addr)
	}
	return out
}

// SetNeighbors replaces the peer's announced neighbor set and reports
// whether it actually changed.
func (p *Peer) SetNeighbors(neighbors []string) bool {
	next := toSet(neighbors)
	p.mu.Lock()
	defer p.mu.Unlock()
	if setsEqual(p.neighbors, next) {
		return false
	}
	p.neighbors = next
	return true
}

// HasNeighbor reports whether addr is in the peer's announced set.
func (p *Peer) HasNeighbor(addr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.neighbors[addr]
	return ok
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Channel returns the peer's current outbound queue.
func (p *Peer) Channel() chan wire.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendCh
}

// ResetChannel discards the peer's outbound queue and replaces it with
// an empty one, dropping whatever was still queued. Done on every
// reconnect attempt: draining the old queue in place could race
// forever against a producer that never stops enqueuing, but swapping
// in a fresh channel is immediate and safe.
func (p *Peer) ResetChannel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendCh = make(chan wire.Message, PeerQueueCapacity)
}

// Enqueue queues msg for delivery to this peer, blocking if the queue
// is full (backpressure).
func (p *Peer) Enqueue(msg wire.Message) {
	p.Channel() <- msg
}

// Available reports whether the sender goroutine for this peer
// currently holds a live connection.
func (p *Peer) Available() bool { return p.available.Load() }

// SetAvailable updates the peer's connectedness flag.
func (p *Peer) SetAvailable(v bool) { p.available.Store(v) }

// Cancel marks the peer as torn down; its sender goroutine should stop.
func (p *Peer) Cancel() { p.canceled.Store(true) }

// Canceled reports whether Cancel has been called.
func (p *Peer) Canceled() bool { return p.canceled.Load() }

// String implements fmt.Stringer.
func (p *Peer) String() string { return "neighbor " + p.Address }
