package httpapi

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

var jpegMagics = [][]byte{
	{0xff, 0xd8, 0xff, 0xe0},
	{0xff, 0xd8, 0xff, 0xee},
}

// isJPEG reports whether data begins with a JPEG start-of-image marker
// followed by an APP0 (JFIF) or APP14 (Adobe) segment marker. Other
// JPEG variants, such as EXIF (APP1), are not recognized.
func isJPEG(data []byte) bool {
	for _, magic := range jpegMagics {
		if bytes.HasPrefix(data, magic) {
			return true
		}
	}
	return false
}

// explain attempts to decode data as a CBOR value for display. bebo
// never interprets payload semantics itself, so unlike the tool this
// was ported from (which relabels a specific application's field
// numbers) this just renders the generic decoded structure; the caller
// falls back to a hex dump when data isn't valid CBOR at all.
func explain(data []byte) (interface{}, error) {
	var v interface{}
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("httpapi: not decodable as cbor: %w", err)
	}
	return relabel(v), nil
}

// relabel walks a decoded CBOR value turning byte strings into hex, so
// the JSON-rendered explanation is printable.
func relabel(v interface{}) interface{} {
	switch x := v.(type) {
	case []byte:
		return fmt.Sprintf("%x", x)
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, val := range x {
			out[fmt.Sprintf("%v", k)] = relabel(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, val := range x {
			out[i] = relabel(val)
		}
		return out
	default:
		return x
	}
}

// kindOf returns a short human label for data's contents, used by the
// index page's message listing.
func kindOf(data []byte) string {
	if isJPEG(data) {
		return "JPEG image"
	}
	if _, err := explain(data); err == nil {
		return "CBOR message"
	}
	return "Unknown"
}

// hexdump renders data in the classic 16-bytes-per-row offset/hex/ascii
// layout.
func hexdump(data []byte) string {
	var out strings.Builder
	for offset := 0; offset < len(data); offset += 16 {
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[offset:end]
		fmt.Fprintf(&out, "%08x ", offset)
		var ascii strings.Builder
		for _, b := range row {
			fmt.Fprintf(&out, "%02x ", b)
			if b >= 32 && b < 127 {
				ascii.WriteByte(b)
			} else {
				ascii.WriteByte('.')
			}
		}
		for i := len(row); i < 16; i++ {
			out.WriteString("   ")
		}
		out.WriteString(ascii.String())
		out.WriteByte('\n')
	}
	return out.String()
}
