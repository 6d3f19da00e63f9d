// Package subnet determines which IPv4 range discovery should cover.
package subnet

import (
	"iter"
	"net/netip"
)

// DefaultRange is used when the local subnet cannot be detected
var DefaultRange = NewRange(netip.MustParsePrefix("192.168.1.0/24"))

// Range is an IPv4 prefix to be swept. Addresses are produced lazily.
type Range struct {
	prefix netip.Prefix
}

// NewRange creates a range from p, masking off host bits
func NewRange(p netip.Prefix) Range {
	return Range{prefix: p.Masked()}
}

// RangeAround returns the /24 holding addr
func RangeAround(addr netip.Addr) Range {
	p, _ := addr.Prefix(24)
	return NewRange(p)
}

// Prefix returns the underlying prefix
func (r Range) Prefix() netip.Prefix { return r.prefix }

// String returns the range in CIDR notation
func (r Range) String() string { return r.prefix.String() }

// IsValid reports whether the range holds a usable prefix
func (r Range) IsValid() bool { return r.prefix.IsValid() }

// Contains reports whether addr lies inside the range
func (r Range) Contains(addr netip.Addr) bool {
	return r.prefix.Contains(addr)
}

// Size returns the number of addresses Hosts yields
func (r Range) Size() int {
	if !r.prefix.IsValid() {
		return 0
	}
	hostBits := r.prefix.Addr().BitLen() - r.prefix.Bits()
	n := 1 << hostBits
	if hostBits >= 2 {
		n -= 2
	}
	return n
}

// Hosts yields every host address in the range in ascending order. The
// network and broadcast addresses are skipped for prefixes shorter than /31.
func (r Range) Hosts() iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		if !r.prefix.IsValid() {
			return
		}
		skipEdges := r.prefix.Addr().BitLen()-r.prefix.Bits() >= 2
		addr := r.prefix.Addr()
		if skipEdges {
			addr = addr.Next()
		}
		for addr.IsValid() && r.prefix.Contains(addr) {
			next := addr.Next()
			if skipEdges && (!next.IsValid() || !r.prefix.Contains(next)) {
				return // broadcast
			}
			if !yield(addr) {
				return
			}
			addr = next
		}
	}
}
