package overlay

import (
	"fmt"
	"net"
	"time"

	"github.com/SRI-CSL/prism-sub001/pkg/wire"
)

// handshakeTimeout bounds how long either side waits for the other's
// HandshakeMessage before giving up on the connection entirely.
const handshakeTimeout = 10 * time.Second

// handshake exchanges one HandshakeMessage in each direction over conn.
// ourError, if non-empty, tells the remote why we refuse to peer; the
// returned theirError is the remote's equivalent refusal reason (empty
// on success).
func handshake(conn net.Conn, ourError string) (theirError string, err error) {
	deadline := time.Now().Add(handshakeTimeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return "", err
	}
	defer conn.SetDeadline(time.Time{})

	if err := wire.WriteFrame(conn, wire.NewHandshakeMessage(ourError)); err != nil {
		return "", fmt.Errorf("handshake timed out or failed: %w", err)
	}
	msg, err := wire.ReadFrame(conn)
	if err != nil {
		return "", fmt.Errorf("handshake timed out or failed: %w", err)
	}
	hs, ok := msg.(*wire.HandshakeMessage)
	if !ok {
		return "did not get a return HandshakeMessage", nil
	}
	return hs.Error, nil
}
