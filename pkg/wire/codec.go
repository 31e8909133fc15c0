package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/SRI-CSL/prism-sub001/pkg/netaddr"
)

// SyntaxError reports malformed framing or a malformed tagged record.
// The wire codec never blacklists a peer for this; the caller just
// closes the connection (spec §7: "Wire-syntax").
type SyntaxError struct {
	msg string
}

func (e *SyntaxError) Error() string { return e.msg }

func syntaxErrorf(format string, args ...interface{}) error {
	return &SyntaxError{msg: fmt.Sprintf(format, args...)}
}

// IsSyntaxError reports whether err is a wire-syntax error.
func IsSyntaxError(err error) bool {
	_, ok := err.(*SyntaxError)
	return ok
}

// maxFrameLength bounds a single record so a corrupt or hostile peer
// cannot force an unbounded allocation from the 4-byte length prefix.
const maxFrameLength = 64 * 1024 * 1024

// toMap renders a Message as its tagged-field record, ready for CBOR
// encoding.
func toMap(m Message) (map[FieldID]interface{}, error) {
	switch v := m.(type) {
	case *HandshakeMessage:
		rec := map[FieldID]interface{}{FieldType: int(KindHandshake)}
		if v.Error != "" {
			rec[FieldError] = v.Error
		}
		return rec, nil
	case *RelayMessage:
		return map[FieldID]interface{}{
			FieldType:      int(KindRelay),
			FieldMessage:   v.Payload,
			FieldBroadcast: v.Broadcast,
		}, nil
	case *NeighborsMessage:
		binary := make([][]byte, len(v.Neighbors))
		for i, addr := range v.Neighbors {
			b, err := netaddr.ToBinaryAddress(addr)
			if err != nil {
				return nil, fmt.Errorf("encoding neighbor address %q: %w", addr, err)
			}
			binary[i] = b
		}
		return map[FieldID]interface{}{
			FieldType:      int(KindNeighbors),
			FieldNeighbors: binary,
		}, nil
	default:
		return nil, fmt.Errorf("wire: unknown message type %T", m)
	}
}

// Encode renders m as its framed wire form: a 4-byte big-endian length
// followed by the CBOR-encoded tagged record.
func Encode(m Message) ([]byte, error) {
	rec, err := toMap(m)
	if err != nil {
		return nil, err
	}
	body, err := cbor.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if len(body) > maxFrameLength {
		return nil, fmt.Errorf("wire: record too large (%d bytes)", len(body))
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// decode parses a raw CBOR record body into a Message, enforcing §4.A's
// strictness rules.
func decode(body []byte) (Message, error) {
	var raw map[int]interface{}
	if err := cbor.Unmarshal(body, &raw); err != nil {
		return nil, syntaxErrorf("not a tagged record: %v", err)
	}
	typeField, ok := raw[int(FieldType)]
	if !ok {
		return nil, syntaxErrorf("no TYPE field")
	}
	kind, err := asInt(typeField)
	if err != nil {
		return nil, syntaxErrorf("TYPE not an integer: %v", err)
	}
	switch Kind(kind) {
	case KindHandshake:
		return decodeHandshake(raw)
	case KindRelay:
		return decodeRelay(raw)
	case KindNeighbors:
		return decodeNeighbors(raw)
	default:
		return nil, syntaxErrorf("unknown type %d", kind)
	}
}

func decodeHandshake(raw map[int]interface{}) (Message, error) {
	errText := ""
	if v, ok := raw[int(FieldError)]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, syntaxErrorf("ERROR not a string")
		}
		errText = s
	}
	return &HandshakeMessage{Error: errText}, nil
}

func decodeRelay(raw map[int]interface{}) (Message, error) {
	v, ok := raw[int(FieldMessage)]
	if !ok {
		return nil, syntaxErrorf("no MESSAGE field")
	}
	payload, ok := v.([]byte)
	if !ok {
		return nil, syntaxErrorf("MESSAGE not a byte string")
	}
	broadcast := false
	if v, ok := raw[int(FieldBroadcast)]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, syntaxErrorf("BROADCAST not a bool")
		}
		broadcast = b
	}
	return NewRelayMessage(payload, broadcast), nil
}

func decodeNeighbors(raw map[int]interface{}) (Message, error) {
	v, ok := raw[int(FieldNeighbors)]
	if !ok {
		return nil, syntaxErrorf("no NEIGHBORS field")
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, syntaxErrorf("NEIGHBORS not a list")
	}
	addrs := make([]string, 0, len(list))
	for _, item := range list {
		b, ok := item.([]byte)
		if !ok {
			return nil, syntaxErrorf("neighbor entry not a byte string")
		}
		addr, err := netaddr.ToTextAddress(b)
		if err != nil {
			return nil, syntaxErrorf("neighbor entry not an IP address: %v", err)
		}
		addrs = append(addrs, addr)
	}
	return &NeighborsMessage{Neighbors: addrs}, nil
}

// asInt narrows a decoded CBOR numeric value (which may surface as any
// of Go's integer types depending on magnitude) to an int, rejecting
// non-numeric kinds so a bool can never masquerade as TYPE (spec §4.A:
// "booleans are not integers").
func asInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("not an integer: %T", v)
	}
}

// ReadFrame reads one length-prefixed record from r and decodes it.
func ReadFrame(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLength {
		return nil, syntaxErrorf("frame too large (%d bytes)", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return decode(body)
}

// WriteFrame frames and writes m to w.
func WriteFrame(w io.Writer, m Message) error {
	packet, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(packet)
	return err
}
