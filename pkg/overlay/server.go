// Package overlay implements bebo's peer-link lifecycle: handshake,
// framed read/send loops, neighbor bookkeeping, MPR-restricted flood,
// and the periodic maintenance tasks that keep the mesh converged.
package overlay

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SRI-CSL/prism-sub001/pkg/store"
)

// Protocol-level timing constants, carried over from the original
// implementation (some deliberately low "for testing").
const (
	NeighborNotifierWakeTimeout = 10 * time.Second
	IgnoreInterval              = 300 * time.Second
	IgnorePurgeInterval         = 300 * time.Second
	ResolutionInterval          = 60 * time.Second
	StartupResolutionInterval   = 5 * time.Second
	StartupInterval             = 120 * time.Second
	MaxGetCount                 = 100

	// BeboPort is the default peer-link TCP port (0xbeb0).
	BeboPort = 0xbeb0
)

type neighborUpdate struct {
	peer     *Peer
	isDelete bool
}

// Config collects the settings a Server needs that come from the CLI
// or environment rather than runtime discovery.
type Config struct {
	Host    string
	Port    int
	NoMPR   bool
	HexMode bool
	Me      map[string]struct{}
	Version string
}

// Server is the single node-local instance of the bebo overlay: it
// owns the neighbor table, the MPR set, and the message store, and
// drives every peer-link and maintenance goroutine.
type Server struct {
	Host    string
	Port    int
	NoMPR   bool
	HexMode bool
	Version string

	Store *store.Store
	Seeds *Seeds
	log   *zap.Logger

	me map[string]struct{}

	mu                 sync.Mutex
	neighbors          map[string]*Peer
	mpr                map[string]struct{}
	hasMPR             bool
	ignoredPeers       map[string]time.Time
	cancelScopes       map[string][]context.CancelFunc
	connectedNeighbors atomic.Int64

	neighborUpdates chan neighborUpdate
	wake            chan struct{}
}

// NewServer returns a Server ready to be driven by Run, AcceptLoop, and
// RunResolver.
func NewServer(cfg Config, st *store.Store, log *zap.Logger) *Server {
	me := cfg.Me
	if me == nil {
		me = make(map[string]struct{})
	}
	return &Server{
		Host:            cfg.Host,
		Port:            cfg.Port,
		NoMPR:           cfg.NoMPR,
		HexMode:         cfg.HexMode,
		Version:         cfg.Version,
		Store:           st,
		Seeds:           NewSeeds(),
		log:             log,
		me:              me,
		neighbors:       make(map[string]*Peer),
		ignoredPeers:    make(map[string]time.Time),
		cancelScopes:    make(map[string][]context.CancelFunc),
		neighborUpdates: make(chan neighborUpdate, 10),
		wake:            make(chan struct{}, 1),
	}
}

// IsMe reports whether address is one of this node's own addresses.
func (s *Server) IsMe(address string) bool {
	_, ok := s.me[address]
	return ok
}

// IsIgnored reports whether address is currently under the post-delete
// ignore window.
func (s *Server) IsIgnored(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	when, ok := s.ignoredPeers[address]
	return ok && time.Now().Before(when)
}

// PeerAllowed reports whether a connection from/to address should be
// accepted at all.
func (s *Server) PeerAllowed(address string) bool {
	return !s.IsIgnored(address)
}

func (s *Server) addCancelScope(address string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelScopes[address] = append(s.cancelScopes[address], cancel)
}

func (s *Server) cancelPeerLocked(address string) {
	for _, cancel := range s.cancelScopes[address] {
		cancel()
	}
	delete(s.cancelScopes, address)
}

// ConnectedNeighbors returns the number of neighbors with a live
// sender connection right now.
func (s *Server) ConnectedNeighbors() int64 {
	return s.connectedNeighbors.Load()
}

// Neighbors returns a snapshot copy of the current neighbor table.
func (s *Server) Neighbors() map[string]*Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Peer, len(s.neighbors))
	for k, v := range s.neighbors {
		out[k] = v
	}
	return out
}

// AllNeighborsNonEmpty reports whether every known neighbor has
// announced at least one neighbor of its own.
func (s *Server) AllNeighborsNonEmpty() bool {
	for _, p := range s.Neighbors() {
		if len(p.Neighbors()) == 0 {
			return false
		}
	}
	return true
}

// DeleteNeighbor requests removal of the named neighbor, returning
// false if it is not currently known.
func (s *Server) DeleteNeighbor(ctx context.Context, address string) bool {
	s.mu.Lock()
	peer, ok := s.neighbors[address]
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case s.neighborUpdates <- neighborUpdate{peer: peer, isDelete: true}:
	case <-ctx.Done():
	}
	return true
}

// queueNeighbor enqueues an add-or-update for peer, blocking if the
// maintenance loop is backed up.
func (s *Server) queueNeighbor(ctx context.Context, peer *Peer) {
	select {
	case s.neighborUpdates <- neighborUpdate{peer: peer}:
	case <-ctx.Done():
	}
}

// tryQueueNeighbor enqueues an add-or-update for peer without blocking,
// dropping the update if the maintenance loop's queue is full. Used by
// the DNS resolver, which would rather skip a cycle than stall.
func (s *Server) tryQueueNeighbor(peer *Peer) bool {
	select {
	case s.neighborUpdates <- neighborUpdate{peer: peer}:
		return true
	default:
		return false
	}
}

// notifyWake wakes up the neighbor notifier without blocking if it's
// already pending a wake.
func (s *Server) notifyWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Seed queues the initial set of neighbor addresses supplied on the
// command line, environment, or seed list.
func (s *Server) Seed(ctx context.Context, addresses []string) {
	for _, addr := range addresses {
		s.queueNeighbor(ctx, NewPeer(addr, nil))
	}
}

// mprSnapshot returns the current MPR set and whether one is in
// effect (false means "broadcast to everyone").
func (s *Server) mprSnapshot() (map[string]struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mpr, s.hasMPR
}

// dialerFor returns a Dialer bound to our published address, so
// outbound connections originate from it rather than an arbitrary
// local interface (required on loopback-alias testbeds).
func (s *Server) dialerFor(network string) net.Dialer {
	return net.Dialer{
		LocalAddr: localAddr(network, s.Host),
		Timeout:   10 * time.Second,
	}
}

func localAddr(network, host string) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(host)}
}

// spawnSender is overridable in tests; production code always starts a
// goroutine.
var spawnSender = func(ctx context.Context, s *Server, peer *Peer) {
	go s.sender(ctx, peer)
}

// Run drives the maintenance side of the overlay — the neighbor
// manager, the neighbor notifier, and the periodic store purge — until
// ctx is canceled or one of them returns an error. The TCP accept loop
// and DNS resolver are started separately (AcceptLoop, RunResolver),
// since their inputs (a listener, a name list) are caller-supplied.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.RunNeighborManager(gctx) })
	g.Go(func() error { return s.RunNeighborNotifier(gctx) })
	g.Go(func() error { return s.RunPeriodicPurger(gctx) })
	return g.Wait()
}

func (s *Server) logger(name string) *zap.Logger {
	if s.log == nil {
		return zap.NewNop()
	}
	return s.log.Named(name)
}
