// Package wire implements bebo's peer-link framing and tagged-field
// record encoding: a 4-byte big-endian length prefix wrapping a CBOR
// map keyed by small integer field IDs.
package wire

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// FieldID is a tagged-field map key, as used on the wire.
type FieldID int

// Field IDs shared by every record kind.
const (
	FieldType       FieldID = 1
	FieldMessage    FieldID = 2
	FieldBroadcast  FieldID = 3
	FieldNeighbors  FieldID = 4
	FieldError      FieldID = 5
)

// Kind identifies which of the three record shapes a Message carries.
type Kind int

// The three record kinds that can appear on a peer link.
const (
	KindHandshake Kind = 1
	KindRelay     Kind = 2
	KindNeighbors Kind = 3
)

// Message is the common interface satisfied by every record kind that
// can be framed on a peer link or injected into the flood engine.
type Message interface {
	Kind() Kind
	// Key returns the flood engine's dedup fingerprint for this
	// message. Only meaningful for RelayMessage; other kinds return a
	// description string that is never looked up in the store.
	Key() string
}

// RelayMessage carries an opaque payload flooded across the mesh.
//
// Broadcast and SequenceNumber/Timestamp are transient bookkeeping: the
// wire form only ever carries Payload and Broadcast. SequenceNumber and
// Timestamp are assigned by the store on first insertion.
type RelayMessage struct {
	Payload   []byte
	Broadcast bool

	SequenceNumber uint64
	Timestamp      int64

	key string
}

// NewRelayMessage returns a RelayMessage wrapping payload, with its
// content key precomputed.
func NewRelayMessage(payload []byte, broadcast bool) *RelayMessage {
	return &RelayMessage{
		Payload:   payload,
		Broadcast: broadcast,
		key:       contentKey(payload),
	}
}

func contentKey(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Kind implements Message.
func (m *RelayMessage) Kind() Kind { return KindRelay }

// Key implements Message. It is the lowercase hex SHA-256 of Payload.
func (m *RelayMessage) Key() string {
	if m.key == "" {
		m.key = contentKey(m.Payload)
	}
	return m.key
}

// Size returns the payload length in bytes.
func (m *RelayMessage) Size() int { return len(m.Payload) }

// MimeType is always application/octet-stream: bebo never inspects
// payload contents.
func (m *RelayMessage) MimeType() string { return "application/octet-stream" }

// ToJSON returns the payload base64-encoded, for the JSON read APIs.
func (m *RelayMessage) ToJSON() string {
	return base64.StdEncoding.EncodeToString(m.Payload)
}

// NeighborsMessage announces the sender's 1-hop neighbor addresses.
// Never stored; exchanged only between directly-linked peers.
type NeighborsMessage struct {
	Neighbors []string
}

// NewNeighborsMessage returns a NeighborsMessage for the given
// addresses.
func NewNeighborsMessage(neighbors []string) *NeighborsMessage {
	return &NeighborsMessage{Neighbors: neighbors}
}

// Kind implements Message.
func (m *NeighborsMessage) Kind() Kind { return KindNeighbors }

// Key implements Message. NeighborsMessage is never looked up by key;
// this exists only to satisfy the interface.
func (m *NeighborsMessage) Key() string {
	return "neighbors"
}

// HandshakeMessage is exchanged once, in both directions, at the start
// of every peer connection. A non-empty Error means the sender refuses
// to peer.
type HandshakeMessage struct {
	Error string
}

// NewHandshakeMessage returns a HandshakeMessage with the given error
// (empty string means success).
func NewHandshakeMessage(errText string) *HandshakeMessage {
	return &HandshakeMessage{Error: errText}
}

// Kind implements Message.
func (m *HandshakeMessage) Kind() Kind { return KindHandshake }

// Key implements Message.
func (m *HandshakeMessage) Key() string {
	return "handshake"
}
