package overlay

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/SRI-CSL/prism-sub001/pkg/netaddr"
	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

const maxBackoff = 32 * time.Second

// sender owns the outbound connection to one neighbor: connect (bound
// to our published address), handshake, then drain the peer's queue
// onto the wire until the connection drops, reconnecting with
// exponential backoff.
func (s *Server) sender(ctx context.Context, peer *Peer) {
	senderCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.addCancelScope(peer.Address, cancel)

	log := s.logger("sender")
	log.Debug("starting", zap.String("peer", peer.Address))

	backoff := 1 * time.Second
	retry := true
	for retry {
		if senderCtx.Err() != nil {
			return
		}
		connected := false

		network, err := netaddr.NetworkFor(peer.Address)
		if err != nil {
			log.Error("bad neighbor address", zap.String("peer", peer.Address), zap.Error(err))
			return
		}
		dialer := s.dialerFor(network)
		log.Debug("connecting", zap.String("peer", peer.Address))
		conn, err := dialer.DialContext(senderCtx, network,
			net.JoinHostPort(peer.Address, strconv.Itoa(s.Port)))
		if err != nil {
			log.Debug("connect failed", zap.String("peer", peer.Address), zap.Error(err))
		} else {
			connected = true
			s.connectedNeighbors.Inc()
			backoff = 1 * time.Second
			log.Info("connected", zap.String("peer", peer.Address))

			if tc, ok := conn.(*net.TCPConn); ok {
				_ = tc.SetKeepAlive(true)
			}

			theirError, hsErr := handshake(conn, "")
			switch {
			case hsErr != nil:
				log.Error("handshake failed", zap.String("peer", peer.Address), zap.Error(hsErr))
			case theirError != "":
				log.Debug("handshake error", zap.String("peer", peer.Address), zap.String("error", theirError))
				s.DeleteNeighbor(senderCtx, peer.Address)
				retry = false
			default:
				peer.SetAvailable(true)
				s.drainSend(senderCtx, conn, peer, log)
			}
			conn.Close()
		}

		if connected {
			s.connectedNeighbors.Dec()
		}
		peer.SetAvailable(false)
		s.computeMPR()
		peer.ResetChannel()

		if connected {
			log.Info("disconnected", zap.String("peer", peer.Address))
		} else {
			log.Debug("connection failed", zap.String("peer", peer.Address), zap.Duration("backoff", backoff))
		}

		if !retry {
			break
		}
		select {
		case <-time.After(backoff):
		case <-senderCtx.Done():
			return
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	log.Debug("finished", zap.String("peer", peer.Address))
}

// drainSend writes every message enqueued for peer to conn until the
// connection fails or the context is canceled.
func (s *Server) drainSend(ctx context.Context, conn net.Conn, peer *Peer, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case message := <-peer.Channel():
			log.Debug("sending", zap.String("peer", peer.Address), zap.String("key", message.Key()))
			if err := wire.WriteFrame(conn, message); err != nil {
				log.Debug("send failed", zap.String("peer", peer.Address), zap.Error(err))
				return
			}
		}
	}
}
