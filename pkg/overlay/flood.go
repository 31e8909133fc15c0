package overlay

import (
	"go.uber.org/zap"

	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

// Inject feeds message into the mesh: RelayMessages are deduplicated
// against the store before forwarding, other message kinds (such as
// NeighborsMessage announcements) always flood. originator, if
// non-nil, is excluded from the flood — it is where message came from.
//
// Returns the store sequence number (0 for non-RelayMessage kinds) and
// whether this was the first time the message was seen.
func (s *Server) Inject(message wire.Message, originator *Peer) (seq uint64, created bool) {
	log := s.logger("inject")

	wantBroadcast := true
	var existing *wire.RelayMessage
	relay, isRelay := message.(*wire.RelayMessage)
	if isRelay {
		wantBroadcast = relay.Broadcast
		var stored uint64
		existing, stored = s.Store.Add(relay)
		if existing != nil {
			seq = stored
			if existing.Broadcast {
				// Already seen and already sent; nothing more to do.
				wantBroadcast = false
			} else if wantBroadcast {
				// Seen before but not yet sent, and now we want to: remember
				// that so we don't re-flood it again later.
				existing.Broadcast = true
			}
		} else {
			seq = stored
		}
	}

	log.Debug("inject", zap.String("key", message.Key()), zap.Bool("broadcast", wantBroadcast))
	if !wantBroadcast {
		return seq, existing == nil
	}

	for addr, neighbor := range s.Neighbors() {
		if originator != nil && addr == originator.Address {
			continue
		}
		ch := neighbor.Channel()
		if ch == nil {
			continue
		}
		var out wire.Message
		if isRelay {
			doBroadcast := s.NoMPR || s.InMPR(addr)
			out = wire.NewRelayMessage(relay.Payload, doBroadcast)
		} else {
			out = message
		}
		ch <- out
	}
	return seq, existing == nil
}
