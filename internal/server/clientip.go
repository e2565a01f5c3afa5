package server

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientIPResolver attributes a request to an address for rate limiting,
// lockout and access logs. Forwarding headers are honoured only when the
// direct peer is a trusted proxy.
type clientIPResolver struct {
	trusted []netip.Prefix
}

// ParseTrustedProxies parses a list of IPs and CIDR ranges.
func ParseTrustedProxies(list []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, s := range list {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", s, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func (c clientIPResolver) isTrusted(a netip.Addr) bool {
	a = a.Unmap()
	for _, p := range c.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// resolve returns the peer address, or when the peer is a trusted proxy the
// rightmost X-Forwarded-For hop that is not itself trusted. X-Real-IP is
// used only when every forwarded hop is trusted.
func (c clientIPResolver) resolve(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(peer); err == nil {
		peer = host
	}
	last, err := netip.ParseAddr(peer)
	if err != nil || !c.isTrusted(last) {
		return peer
	}

	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			// Anything left of a garbled hop was not written by our proxies.
			return last.Unmap().String()
		}
		if !c.isTrusted(a) {
			return a.Unmap().String()
		}
		last = a
	}

	if a, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return a.Unmap().String()
	}
	return last.Unmap().String()
}
