package middleware

import (
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedRealIP rewrites r.RemoteAddr to the client address a trusted proxy
// reported. Bulk load audit events store that address as ip_address, so
// forwarding headers are honoured only when the connection itself comes from
// a configured proxy network.
//
// X-Forwarded-For is read right to left and the first hop outside the trusted
// networks is the client; a spoofed entry added by the client sits to the
// left of it and is never reached. X-Real-IP is used only when no forwarded
// chain is present. Anything unparseable leaves RemoteAddr untouched.
func TrustedRealIP(trustedCIDRs []string) func(http.Handler) http.Handler {
	proxies := parseTrustedProxies(trustedCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if addr, ok := proxies.clientAddr(r); ok {
				r.RemoteAddr = addr.String()
			}
			next.ServeHTTP(w, r)
		})
	}
}

// trustedProxies is the set of networks whose forwarding headers are believed.
type trustedProxies []netip.Prefix

// parseTrustedProxies accepts CIDRs and bare addresses. Invalid entries are
// logged and skipped.
func parseTrustedProxies(entries []string) trustedProxies {
	var out trustedProxies
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(entry); err == nil {
			a = a.Unmap()
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
			continue
		}
		slog.Warn("realip: invalid trusted proxy, skipping", "entry", entry)
	}
	return out
}

func (t trustedProxies) contains(a netip.Addr) bool {
	for _, p := range t {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// clientAddr returns the client address the forwarding headers name, and
// false when RemoteAddr should be kept.
func (t trustedProxies) clientAddr(r *http.Request) (netip.Addr, bool) {
	if len(t) == 0 {
		return netip.Addr{}, false
	}
	peer, ok := parseHostAddr(r.RemoteAddr)
	if !ok || !t.contains(peer) {
		return netip.Addr{}, false
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		var leftmost netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				return netip.Addr{}, false
			}
			hop = hop.Unmap()
			if !t.contains(hop) {
				return hop, true
			}
			leftmost = hop
		}
		// Every hop is a proxy; the first one is the closest thing to a client.
		return leftmost, true
	}

	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		if a, err := netip.ParseAddr(rip); err == nil {
			return a.Unmap(), true
		}
	}
	return netip.Addr{}, false
}

// parseHostAddr parses "host:port" or a bare address, unmapping IPv4-in-IPv6.
func parseHostAddr(s string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}
