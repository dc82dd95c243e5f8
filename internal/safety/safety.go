// Package safety guards outbound fetches against internal targets (SSRF).
// Candidate URLs come from templates and third-party search results, so every
// URL is checked here before the fetcher sees it.
package safety

import (
	"net/netip"
	"net/url"
	"strings"
)

var metadataAddr = netip.MustParseAddr("169.254.169.254")

// IsSafePublicURL reports whether raw is an http(s) URL pointing at a public
// host. It fails closed: anything it cannot parse is unsafe.
func IsSafePublicURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return false
	}
	if u.User != nil {
		return false
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return false
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return false
	}

	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return !IsPrivateIP(addr)
	}
	// Bare integers, hex, octal, and other shorthand IPv4 forms are resolved
	// by some stacks as addresses; refuse them.
	if isNumericHost(host) {
		return false
	}
	return true
}

// IsPrivateIP reports whether addr is loopback, private, link-local,
// unspecified, or the cloud metadata address.
func IsPrivateIP(addr netip.Addr) bool {
	addr = addr.Unmap()
	if addr == metadataAddr {
		return true
	}
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsUnspecified()
}

// DomainOf returns the lowercase hostname of raw, or "" when raw does not
// parse.
func DomainOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// InAllowlist reports whether domain equals an allowed domain or is a
// subdomain of one. An empty allowlist allows nothing; callers skip the check
// when no allowlist is configured.
func InAllowlist(domain string, allowed []string) bool {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if domain == "" {
		return false
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if domain == a || strings.HasSuffix(domain, "."+a) {
			return true
		}
	}
	return false
}

// isNumericHost reports whether host is an inet_aton style IPv4 literal: one
// to four dot-separated labels, each decimal, octal, or 0x-prefixed hex.
func isNumericHost(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) > 4 {
		return false
	}
	for _, l := range labels {
		if !isNumericLabel(l) {
			return false
		}
	}
	return true
}

func isNumericLabel(l string) bool {
	if l == "" {
		return false
	}
	digits, isHex := strings.CutPrefix(l, "0x")
	for _, r := range digits {
		switch {
		case r >= '0' && r <= '9':
		case isHex && r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
