package capture

import (
	"net"
	"net/netip"

	"github.com/smartpixl/smartpixl/internal/ipclass"
)

// SameHostChecker decides whether a caller is allowed to reach the internal
// endpoints (spec.md §4.1): loopback, a local interface address, or an
// explicitly configured allow-list, all checked after IPv4-mapped-IPv6
// normalization.
type SameHostChecker struct {
	allowed map[netip.Addr]struct{}
}

// NewSameHostChecker builds a checker seeded with the host's own interface
// addresses plus any explicitly configured allow-list entries.
func NewSameHostChecker(extraAllowed []string) *SameHostChecker {
	c := &SameHostChecker{allowed: make(map[netip.Addr]struct{})}

	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if addr, ok := netip.AddrFromSlice(ipNet.IP); ok {
				c.allowed[ipclass.Normalize(addr)] = struct{}{}
			}
		}
	}

	for _, s := range extraAllowed {
		if addr, err := netip.ParseAddr(s); err == nil {
			c.allowed[ipclass.Normalize(addr)] = struct{}{}
		}
	}

	return c
}

// Allowed reports whether remoteAddr (a host:port or bare IP string) is
// same-host per spec.md §4.1.
func (c *SameHostChecker) Allowed(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = ipclass.Normalize(addr)

	if addr.IsLoopback() {
		return true
	}
	_, ok := c.allowed[addr]
	return ok
}
