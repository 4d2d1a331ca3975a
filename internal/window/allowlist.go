package window

import (
	"net/url"
	"strings"
)

// NavigationPolicy is the application's sole navigation allowlist for
// embedded consent surfaces. Providers that require a federated sign-in
// popup during consent (a nested dialog on a second known domain) need
// that one extra destination; everything else is denied so an embedded
// surface can hand it to the external browser instead.
type NavigationPolicy struct {
	allowed []string
}

// NewNavigationPolicy builds a policy allowing the given hosts. An entry
// of the form ".example.com" also matches any subdomain of example.com;
// a bare host matches exactly.
func NewNavigationPolicy(hosts ...string) *NavigationPolicy {
	allowed := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			allowed = append(allowed, h)
		}
	}
	return &NavigationPolicy{allowed: allowed}
}

// Allow reports whether a surface bound to this policy may navigate to
// rawURL. Only https destinations on allowlisted hosts pass; loopback
// redirect targets are always permitted so the final hop back to the
// local listener is never blocked.
func (p *NavigationPolicy) Allow(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	// The loopback redirect is plain http by design.
	if host == "127.0.0.1" || host == "localhost" {
		return u.Scheme == "http" || u.Scheme == "https"
	}

	if u.Scheme != "https" {
		return false
	}

	for _, allowed := range p.allowed {
		if strings.HasPrefix(allowed, ".") {
			if host == allowed[1:] || strings.HasSuffix(host, allowed) {
				return true
			}
			continue
		}
		if host == allowed {
			return true
		}
	}

	return false
}
