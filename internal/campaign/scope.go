package campaign

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope decides whether a link stays on the job board. Applications hosted anywhere else are
// external and are never driven.
type Scope struct {
	rootDomain string
}

// NewScope derives the scope from the board's base URL.
func NewScope(baseURL string) (*Scope, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	hostname := u.Hostname()
	if hostname == "" {
		return nil, fmt.Errorf("base URL must have a hostname: %s", baseURL)
	}

	// eTLD+1, so id.jobstreet.com and www.jobstreet.com share a scope.
	domain, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		return nil, fmt.Errorf("could not determine effective TLD+1 for %s: %w", hostname, err)
	}
	return &Scope{rootDomain: domain}, nil
}

// Contains reports whether raw is on the board's domain or one of its subdomains.
func (s *Scope) Contains(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == s.rootDomain || strings.HasSuffix(host, "."+s.rootDomain)
}

// RootDomain returns the eTLD+1 of the board.
func (s *Scope) RootDomain() string {
	return s.rootDomain
}
