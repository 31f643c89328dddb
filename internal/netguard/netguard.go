// Package netguard validates outbound URLs against SSRF rules before the
// web_fetch tool dials them. Adapted from
// haasonsaas-nexus/internal/net/ssrf, generalized to a single
// ValidateURL entry point for codeforge's HTTP-fetching tools.
package netguard

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/codeforge/codeforge/internal/errs"
)

var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
}

var dangerousSuffixes = []string{
	".localhost",
	".local",
	".internal",
}

func normalizeHostname(hostname string) string {
	n := strings.TrimSpace(hostname)
	n = strings.ToLower(n)
	n = strings.TrimSuffix(n, ".")
	if strings.HasPrefix(n, "[") && strings.HasSuffix(n, "]") {
		n = n[1 : len(n)-1]
	}
	return n
}

// IsBlockedHostname reports whether hostname is explicitly blocked or
// carries a dangerous suffix.
func IsBlockedHostname(hostname string) bool {
	n := normalizeHostname(hostname)
	if n == "" {
		return false
	}
	if blockedHostnames[n] {
		return true
	}
	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(n, suffix) {
			return true
		}
	}
	return false
}

// IsPrivateIPAddress reports whether address (IPv4 or IPv6, optionally
// bracketed) is a private, loopback, link-local, or carrier-grade-NAT
// address.
func IsPrivateIPAddress(address string) bool {
	n := normalizeHostname(address)
	ip := net.ParseIP(n)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		return isPrivateIPv4(v4[0], v4[1])
	}
	// Unique local addresses: fc00::/7
	if len(ip) == net.IPv6len && (ip[0]&0xfe) == 0xfc {
		return true
	}
	return false
}

func isPrivateIPv4(a, b byte) bool {
	switch {
	case a == 10:
		return true
	case a == 127:
		return true
	case a == 169 && b == 254:
		return true
	case a == 172 && b >= 16 && b <= 31:
		return true
	case a == 192 && b == 168:
		return true
	case a == 100 && b >= 64 && b <= 127:
		return true
	case a == 0:
		return true
	}
	return false
}

// ValidateURL checks that rawURL uses http(s), carries a resolvable
// public hostname, and, when a port is given, that the port is numeric;
// no port number is blocked. It performs a
// DNS lookup so a hostname that merely resolves to a private address is
// also rejected (defeats DNS-rebinding toward internal hosts).
func ValidateURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidParameters, "invalid URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errs.New(errs.KindInvalidParameters, "only http and https URLs are allowed")
	}
	host := u.Hostname()
	if host == "" {
		return nil, errs.New(errs.KindInvalidParameters, "URL has no host")
	}
	if IsBlockedHostname(host) {
		return nil, errs.New(errs.KindPermissionDenied, fmt.Sprintf("blocked hostname: %s", host))
	}
	if ip := net.ParseIP(host); ip != nil {
		if IsPrivateIPAddress(host) {
			return nil, errs.New(errs.KindPermissionDenied, "blocked: private/internal IP address")
		}
		return u, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransientNetwork, "unable to resolve hostname: "+host, err)
	}
	if len(ips) == 0 {
		return nil, errs.New(errs.KindTransientNetwork, "unable to resolve hostname: "+host)
	}
	for _, ip := range ips {
		if IsPrivateIPAddress(ip.String()) {
			return nil, errs.New(errs.KindPermissionDenied, "blocked: hostname resolves to private/internal IP address")
		}
	}
	if port := u.Port(); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return nil, errs.New(errs.KindInvalidParameters, "invalid port")
		}
	}
	return u, nil
}
