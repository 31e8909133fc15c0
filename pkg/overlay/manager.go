package overlay

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunNeighborManager drains neighbor add/update/delete requests,
// periodically purges expired ignore-list entries, maintains the
// neighbor table, starts a sender goroutine for each newly-discovered
// neighbor, and recomputes the MPR set whenever the topology changes.
func (s *Server) RunNeighborManager(ctx context.Context) error {
	log := s.logger("neighbor_maintenance")
	lastIgnoredPurge := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update := <-s.neighborUpdates:
			now := time.Now()
			if lastIgnoredPurge.IsZero() || now.Sub(lastIgnoredPurge) >= IgnorePurgeInterval {
				s.purgeIgnoredPeers(now)
				lastIgnoredPurge = now
			}

			recompute := true
			if update.isDelete {
				recompute = s.applyDelete(log, update.peer)
			} else {
				recompute = s.applyUpsert(ctx, log, update.peer)
			}
			if recompute {
				s.computeMPR()
			}
		}
	}
}

// purgeIgnoredPeers drops every ignore-list entry whose expiry has
// already passed. The ignore window should only ever shrink; an entry
// with expiry <= now has already expired.
func (s *Server) purgeIgnoredPeers(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for peer, expiry := range s.ignoredPeers {
		if !expiry.After(now) {
			delete(s.ignoredPeers, peer)
		}
	}
}

func (s *Server) applyDelete(log *zap.Logger, peer *Peer) bool {
	s.mu.Lock()
	existing, ok := s.neighbors[peer.Address]
	if !ok || existing.Canceled() {
		s.mu.Unlock()
		return false
	}
	existing.Cancel()
	s.cancelPeerLocked(peer.Address)
	delete(s.neighbors, peer.Address)
	s.ignoredPeers[peer.Address] = time.Now().Add(IgnoreInterval)
	s.mu.Unlock()

	log.Info("deleted neighbor", zap.String("address", peer.Address))
	s.notifyWake()
	return true
}

// applyUpsert adds a brand-new neighbor or updates an existing one's
// announced neighbor set. Critically, an update to an existing entry
// mutates it in place rather than replacing it, so the entry's running
// sender goroutine and outbound queue survive — an inbound-only
// NeighborsMessage must never discard a live outbound connection.
func (s *Server) applyUpsert(ctx context.Context, log *zap.Logger, updated *Peer) bool {
	s.mu.Lock()
	existing, ok := s.neighbors[updated.Address]
	if ok {
		s.mu.Unlock()
		if existing.SetNeighbors(updated.Neighbors()) {
			log.Debug("neighbor changed", zap.String("address", updated.Address))
			s.notifyWake()
			return true
		}
		log.Debug("neighbor unchanged", zap.String("address", updated.Address))
		return false
	}

	log.Info("new neighbor", zap.String("address", updated.Address))
	s.neighbors[updated.Address] = updated
	s.mu.Unlock()

	updated.ResetChannel()
	spawnSender(ctx, s, updated)
	s.notifyWake()
	return true
}
