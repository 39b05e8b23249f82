package browser

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/browseragent/control-plane/internal/errs"
)

// URLPolicy configures validation applied on every URL ingress.
type URLPolicy struct {
	AllowFile    bool
	BlockPrivate bool
}

// ValidateURL rejects non-http/https schemes (file:// only when
// AllowFile), and when BlockPrivate is set, rejects RFC-1918, loopback,
// link-local, IPv6 ULA/link-local, IPv4-mapped-IPv6-with-private-embedded,
// and numeric IP notations (decimal/octal/hex) that resolve to a private
// address.
func (p URLPolicy) ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errs.New(errs.InvalidParameter, "malformed url: "+raw)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https":
	case "file":
		if !p.AllowFile {
			return errs.New(errs.InvalidParameter, "file:// urls are not allowed")
		}
		return nil
	default:
		return errs.New(errs.InvalidParameter, "unsupported url scheme: "+scheme)
	}

	if !p.BlockPrivate {
		return nil
	}

	host := u.Hostname()
	if ip := parseNumericHost(host); ip != nil {
		if isPrivateOrReserved(ip) {
			return errs.New(errs.InvalidParameter, "url resolves to a private address: "+raw)
		}
		return nil
	}

	ip := net.ParseIP(host)
	if ip != nil && isPrivateOrReserved(ip) {
		return errs.New(errs.InvalidParameter, "url resolves to a private address: "+raw)
	}
	return nil
}

// ValidateURLAsync additionally resolves the hostname and rejects when the
// resolved address is private, guarding against DNS rebinding. DNS errors
// fail open after one retry so a flaky resolver never produces a false
// negative that blocks a legitimate navigation.
func (p URLPolicy) ValidateURLAsync(ctx context.Context, raw string) error {
	if err := p.ValidateURL(raw); err != nil {
		return err
	}
	if !p.BlockPrivate {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errs.New(errs.InvalidParameter, "malformed url: "+raw)
	}
	if u.Scheme == "file" {
		return nil
	}
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return nil // already checked synchronously
	}

	var resolver net.Resolver
	addrs, lookupErr := resolver.LookupIPAddr(ctx, host)
	if lookupErr != nil {
		addrs, lookupErr = resolver.LookupIPAddr(ctx, host)
		if lookupErr != nil {
			return nil // fail open after one retry
		}
	}
	for _, a := range addrs {
		if isPrivateOrReserved(a.IP) {
			return errs.New(errs.InvalidParameter, "hostname resolves to a private address (possible DNS rebinding): "+raw)
		}
	}
	return nil
}

// parseNumericHost recognizes decimal (2130706433), octal (0177.0.0.1) and
// hex (0x7f000001) IPv4 notations that net.ParseIP does not accept.
func parseNumericHost(host string) net.IP {
	if ip := net.ParseIP(host); ip != nil {
		return ip
	}
	if strings.Contains(host, ".") {
		parts := strings.Split(host, ".")
		if len(parts) == 4 {
			b := make([]byte, 4)
			ok := true
			for i, p := range parts {
				n, err := strconv.ParseUint(p, 0, 8) // base 0: honors 0x / 0 prefixes
				if err != nil {
					ok = false
					break
				}
				b[i] = byte(n)
			}
			if ok {
				return net.IPv4(b[0], b[1], b[2], b[3])
			}
		}
		return nil
	}
	// Single decimal/hex number, e.g. 2130706433 or 0x7f000001.
	n, err := strconv.ParseUint(host, 0, 32)
	if err != nil {
		return nil
	}
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func isPrivateOrReserved(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4.IsPrivate()
	}
	// IPv6: ULA (fc00::/7) and IPv4-mapped with a private embedded address.
	if ip.IsPrivate() {
		return true
	}
	if v4 := ip.To4(); v4 == nil {
		if mapped := mappedIPv4(ip); mapped != nil {
			return isPrivateOrReserved(mapped)
		}
	}
	return false
}

func mappedIPv4(ip net.IP) net.IP {
	const prefix = "::ffff:"
	s := ip.String()
	if strings.HasPrefix(s, prefix) {
		return net.ParseIP(s[len(prefix):]).To4()
	}
	return nil
}
