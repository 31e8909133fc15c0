package overlay

import (
	"context"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

// AcceptLoop accepts inbound peer-link connections on listener until
// ctx is canceled or Accept fails.
func (s *Server) AcceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// handleConn runs the handshake and read loop for one inbound
// connection, enforcing self-connection and ignore-list rejection
// before ever reading a RelayMessage or NeighborsMessage.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	log := s.logger("reader")

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	var ourError string
	if s.IsMe(host) {
		log.Error("rejecting connection from my own host", zap.String("peer", host))
		ourError = "connection from myself"
	} else if !s.PeerAllowed(host) {
		log.Error("peering not allowed", zap.String("peer", host))
		ourError = "peering not allowed"
	}

	theirError, err := handshake(conn, ourError)
	if err != nil {
		log.Error("handshake failed", zap.String("peer", host), zap.Error(err))
		return
	}
	if ourError != "" || theirError != "" {
		if theirError != "" {
			log.Error("peer handshake error", zap.String("peer", host), zap.String("error", theirError))
		}
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.addCancelScope(host, cancel)
	log.Info("connected", zap.String("peer", host))

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAlive(true)
	}

	for {
		if connCtx.Err() != nil {
			return
		}
		message, err := wire.ReadFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug("EOF", zap.String("peer", host))
			} else {
				log.Error("read failed", zap.String("peer", host), zap.Error(err))
			}
			break
		}
		log.Debug("received", zap.String("peer", host), zap.String("key", message.Key()))
		switch m := message.(type) {
		case *wire.RelayMessage:
			neighbor := s.neighborFor(host)
			s.Inject(m, neighbor)
		case *wire.NeighborsMessage:
			filtered := make([]string, 0, len(m.Neighbors))
			for _, addr := range m.Neighbors {
				if !s.IsMe(addr) {
					filtered = append(filtered, addr)
				}
			}
			s.queueNeighbor(connCtx, NewPeer(host, filtered))
		default:
			log.Error("unhandled message type from peer", zap.String("peer", host))
		}
	}
	log.Info("disconnected", zap.String("peer", host))
}

func (s *Server) neighborFor(address string) *Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.neighbors[address]
}
