// Package hostutil validates and normalizes status endpoint URLs.
package hostutil

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// StatusPath is appended to bare hosts by NormalizeStatusURL.
const StatusPath = "/latest/status/"

// NormalizeStatusURL turns a host or partial URL into a status endpoint URL.
// Bare hosts get http:// when local and https:// otherwise, and an empty
// path becomes StatusPath. Full URLs with a path are returned unchanged.
func NormalizeStatusURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		host, _, _ := strings.Cut(raw, "/")
		if IsLocalhost(host) {
			raw = "http://" + raw
		} else {
			raw = "https://" + raw
		}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = StatusPath
	}
	return u.String()
}

// RequireSecureURL rejects URLs that are not https, except http on a
// loopback host.
func RequireSecureURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	switch u.Scheme {
	case "https":
		return nil
	case "http":
		if IsLocalhost(u.Host) {
			return nil
		}
		return fmt.Errorf("insecure http:// URL %q: use https:// (http is only allowed for localhost)", raw)
	default:
		return fmt.Errorf("unsupported scheme in URL %q", raw)
	}
}

// IsLocalhost reports whether host, with an optional port, is localhost,
// a .localhost subdomain, 127.0.0.1 or [::1].
func IsLocalhost(host string) bool {
	if host == "" {
		return false
	}
	name := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		name = h
	} else if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		name = host[1 : len(host)-1]
	} else if strings.Count(host, ":") > 1 {
		// Unbracketed IPv6 cannot carry a port and is not a valid URL host.
		return false
	}

	switch {
	case name == "localhost", strings.HasSuffix(name, ".localhost"):
		return true
	case name == "127.0.0.1", name == "::1":
		return true
	default:
		return false
	}
}
