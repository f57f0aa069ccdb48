package smtp

import (
	"context"
	"net"
	"strings"
)

// localHostname discovers the name to present in the EHLO/HELO
// command: reverse-DNS first, falling back to a bracketed numeric
// address, falling back to a fixed placeholder, matching the
// original's getnameinfo-then-numeric-then-localhost.localdomain
// fallback chain.
func localHostname(ctx context.Context, localAddr net.Addr) string {
	host, _, err := net.SplitHostPort(localAddr.String())
	if err != nil {
		host = localAddr.String()
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "localhost.localdomain"
	}

	var resolver net.Resolver
	if names, err := resolver.LookupAddr(ctx, ip.String()); err == nil && len(names) > 0 {
		return strings.TrimSuffix(names[0], ".")
	}

	if ip.To4() != nil {
		return "[" + ip.String() + "]"
	}
	return "[IPv6:" + ip.String() + "]"
}
