// Package ipclass performs reserved-range classification of IPv4 and IPv6
// addresses (spec.md §4.2 analyzer 5) as an ordered switch of net/netip
// checks; the classification is not branch-free. This is a pure bit-range
// problem; no third-party library in the example pack does it more
// idiomatically than net/netip range checks, so this package is a deliberate
// stdlib-only component (see DESIGN.md).
package ipclass

import "net/netip"

// Class is a single-byte enum of reserved IP ranges, matching the
// `_srv_ipType=<enum-byte>` contract (spec.md §4.2 analyzer 5).
type Class byte

const (
	Public Class = iota
	Private
	Loopback
	LinkLocal
	CGNAT
	Multicast
	Invalid
)

func (c Class) String() string {
	switch c {
	case Public:
		return "public"
	case Private:
		return "private"
	case Loopback:
		return "loopback"
	case LinkLocal:
		return "link-local"
	case CGNAT:
		return "cgnat"
	case Multicast:
		return "multicast"
	default:
		return "invalid"
	}
}

// Classify normalizes addr (folding IPv4-mapped IPv6 to plain IPv4 per
// spec.md §8.3) and returns its reserved-range class.
func Classify(addrText string) Class {
	addr, err := netip.ParseAddr(addrText)
	if err != nil {
		return Invalid
	}
	addr = Normalize(addr)

	if addr.Is4() {
		return classifyV4(addr)
	}
	return classifyV6(addr)
}

// Normalize folds an IPv4-mapped IPv6 address to its IPv4 form, leaving any
// other address unchanged (spec.md §8.3).
func Normalize(addr netip.Addr) netip.Addr {
	if addr.Is4In6() {
		return addr.Unmap()
	}
	return addr
}

func classifyV4(addr netip.Addr) Class {
	switch {
	case addr.IsLoopback():
		return Loopback
	case addr.IsLinkLocalUnicast():
		return LinkLocal
	case addr.IsMulticast():
		return Multicast
	case inPrefix(addr, "10.0.0.0/8"),
		inPrefix(addr, "172.16.0.0/12"),
		inPrefix(addr, "192.168.0.0/16"):
		return Private
	case inPrefix(addr, "100.64.0.0/10"):
		return CGNAT
	default:
		return Public
	}
}

func classifyV6(addr netip.Addr) Class {
	switch {
	case addr.IsLoopback():
		return Loopback
	case addr.IsLinkLocalUnicast():
		return LinkLocal
	case addr.IsMulticast():
		return Multicast
	case inPrefix(addr, "fc00::/7"):
		return Private
	default:
		return Public
	}
}

func inPrefix(addr netip.Addr, cidr string) bool {
	p := netip.MustParsePrefix(cidr)
	return p.Contains(addr)
}
