// Package netaddr converts between text and packed binary IP address
// forms, matching the original bebo's address handling (4 bytes for
// IPv4, 16 for IPv6, no embedded port).
package netaddr

import (
	"fmt"
	"net"
)

// ToBinaryAddress packs a text address (v4 or v6) into its 4- or
// 16-byte form.
func ToBinaryAddress(address string) ([]byte, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("netaddr: not an IP address: %q", address)
	}
	if v4 := ip.To4(); v4 != nil {
		return []byte(v4), nil
	}
	return []byte(ip.To16()), nil
}

// ToTextAddress unpacks a 4- or 16-byte address into its text form.
func ToTextAddress(b []byte) (string, error) {
	switch len(b) {
	case net.IPv4len:
		return net.IP(b).String(), nil
	case net.IPv6len:
		return net.IP(b).String(), nil
	default:
		return "", fmt.Errorf("netaddr: address is %d bytes, want 4 or 16", len(b))
	}
}

// IsTextAddress reports whether value parses as an IP address.
func IsTextAddress(value string) bool {
	return net.ParseIP(value) != nil
}

// IsIPv6 reports whether address parses as an IPv6 address (as opposed
// to IPv4 or an IPv4-mapped IPv6 address).
func IsIPv6(address string) bool {
	ip := net.ParseIP(address)
	return ip != nil && ip.To4() == nil
}

// NetworkFor returns the dial/listen network ("tcp4" or "tcp6")
// matching address's family, mirroring the original's
// af_for_text_address dispatch used before bind()/connect().
func NetworkFor(address string) (string, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return "", fmt.Errorf("netaddr: not an IP address: %q", address)
	}
	if ip.To4() != nil {
		return "tcp4", nil
	}
	return "tcp6", nil
}
