package overlay

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

// RunNeighborNotifier periodically (or immediately on a topology
// change, via the wake channel) floods our current set of connected
// neighbor addresses to the mesh, so 2-hop peers can learn about us
// for MPR purposes.
func (s *Server) RunNeighborNotifier(ctx context.Context) error {
	log := s.logger("neighbor_notifier")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-time.After(NeighborNotifierWakeTimeout):
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		addresses := make([]string, 0)
		for addr, p := range s.Neighbors() {
			if p.Available() {
				addresses = append(addresses, addr)
			}
		}
		log.Debug("announcing neighbors", zap.Strings("addresses", addresses))
		s.Inject(wire.NewNeighborsMessage(addresses), nil)
	}
}

// RunPeriodicPurger asks the message store to enforce its eviction
// limits on a fixed tick, independent of message traffic (which
// already triggers a purge on every insert).
func (s *Server) RunPeriodicPurger(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Store.Purge()
		}
	}
}

// RunResolver periodically re-resolves each named neighbor (as opposed
// to ones given as a bare address) and, on finding a new address,
// queues it as a neighbor. It wakes more frequently for the first
// StartupInterval, on the theory the rest of the mesh may have just
// started too.
func (s *Server) RunResolver(ctx context.Context, names []string, v4OK, v6OK bool) error {
	log := s.logger("resolver")
	resolver := net.DefaultResolver
	start := time.Now()

	for {
		log.Debug("resolver awake")
		for _, name := range names {
			address, err := s.resolveOne(ctx, resolver, name, v4OK, v6OK)
			if err != nil {
				log.Debug("resolution failed", zap.String("name", name), zap.Error(err))
				continue
			}
			if address == "" {
				continue
			}
			s.mu.Lock()
			_, known := s.neighbors[address]
			s.mu.Unlock()
			if known {
				continue
			}
			if !s.tryQueueNeighbor(NewPeer(address, nil)) {
				log.Debug("dropping resolved neighbor, queue would block", zap.String("address", address))
			}
		}

		var sleep time.Duration
		if time.Since(start) >= StartupInterval {
			sleep = ResolutionInterval
		} else {
			sleep = StartupResolutionInterval
		}
		log.Debug("resolver asleep")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (s *Server) resolveOne(ctx context.Context, resolver *net.Resolver, name string, v4OK, v6OK bool) (string, error) {
	ips, err := resolver.LookupIP(ctx, "ip", name)
	if err != nil {
		return "", err
	}
	if v6OK {
		for _, ip := range ips {
			if ip.To4() == nil {
				return ip.String(), nil
			}
		}
	}
	if v4OK {
		for _, ip := range ips {
			if ip.To4() != nil {
				return ip.String(), nil
			}
		}
	}
	return "", nil
}
