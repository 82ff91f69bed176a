package stores

import (
	"net/url"
	"strings"

	"github.com/snapp/backend/internal/domain"
)

// Route pairs a URL predicate with the adapter that handles matching URLs.
type Route struct {
	Match   func(rawURL string) bool
	Adapter domain.SourceAdapter
}

// Chain is an ordered list of routes. The first matching route claims a URL.
type Chain struct {
	routes []Route
}

// NewChain builds a chain evaluated in the given order.
func NewChain(routes ...Route) *Chain {
	return &Chain{routes: routes}
}

// HostMatcher returns a predicate that matches URLs whose host contains fragment.
func HostMatcher(fragment string) func(string) bool {
	fragment = strings.ToLower(fragment)
	return func(rawURL string) bool {
		return fragment != "" && hostContains(rawURL, fragment)
	}
}

// Resolve returns the adapter claiming rawURL, or false when the scraper should be used.
func (c *Chain) Resolve(rawURL string) (domain.SourceAdapter, bool) {
	for _, r := range c.routes {
		if r.Match(rawURL) {
			return r.Adapter, true
		}
	}
	return nil, false
}

// Adapters lists every routed adapter in enumeration order.
func (c *Chain) Adapters() []domain.SourceAdapter {
	out := make([]domain.SourceAdapter, 0, len(c.routes))
	for _, r := range c.routes {
		out = append(out, r.Adapter)
	}
	return out
}

func hostContains(rawURL, fragment string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return strings.Contains(strings.ToLower(u.Hostname()), fragment)
}
