package fetch

import (
	"net/url"
	"strings"
)

// DefaultRelayURL is the public CORS relay; the encoded target is appended
const DefaultRelayURL = "https://api.allorigins.win/raw?url="

// DefaultRelayHosts lists hostname fragments of APIs that reject
// cross-origin requests
var DefaultRelayHosts = []string{"alphavantage.co", "finnhub.io", "api.stlouisfed.org"}

// Relay rewrites requests for known hosts to go through a CORS relay
type Relay struct {
	prefix string
	hosts  []string
}

// NewRelay creates a relay. Empty arguments select the defaults.
func NewRelay(prefix string, hosts []string) *Relay {
	if prefix == "" {
		prefix = DefaultRelayURL
	}
	if len(hosts) == 0 {
		hosts = DefaultRelayHosts
	}
	lowered := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			lowered = append(lowered, h)
		}
	}
	return &Relay{prefix: prefix, hosts: lowered}
}

// Matches reports whether rawURL's hostname contains a relayed host
func (r *Relay) Matches(rawURL string) bool {
	if r == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range r.hosts {
		if strings.Contains(host, h) {
			return true
		}
	}
	return false
}

// Rewrite returns the outbound URL for rawURL. URLs that do not match are
// returned unchanged.
func (r *Relay) Rewrite(rawURL string) string {
	if !r.Matches(rawURL) {
		return rawURL
	}
	return r.prefix + EncodeURIComponent(rawURL)
}

var uriComponentUnescapes = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeURIComponent escapes s like the browser function of the same name
func EncodeURIComponent(s string) string {
	return uriComponentUnescapes.Replace(url.QueryEscape(s))
}
