package relay

import (
	"net/url"
	"strings"
)

// TransportKind selects which adapter a relay URL is reachable through.
type TransportKind int

const (
	// TransportStandard routes through the pooled go-nostr client.
	TransportStandard TransportKind = iota
	// TransportOnion routes through the SOCKS-proxied websocket session.
	TransportOnion
)

func (k TransportKind) String() string {
	if k == TransportOnion {
		return "onion"
	}
	return "standard"
}

// Classify maps a relay URL to its transport. Pure, no I/O: a relay is onion
// iff its hostname ends in ".onion". Anything unparseable is standard and
// left for the pooled client to reject.
func Classify(rawURL string) TransportKind {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "onion" || strings.HasSuffix(host, ".onion") {
		return TransportOnion
	}
	return TransportStandard
}

// Partition splits urls into the standard and onion subsets, preserving the
// input order within each subset.
func Partition(urls []string) (standard, onion []string) {
	for _, u := range urls {
		if Classify(u) == TransportOnion {
			onion = append(onion, u)
		} else {
			standard = append(standard, u)
		}
	}
	return standard, onion
}

// NormalizeURL makes a relay address dialable: bare hostnames get a wss://
// scheme and trailing slashes are trimmed. Already-schemed ws:// and wss://
// addresses pass through unchanged apart from the trim.
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return s
	}
	if !strings.Contains(s, "://") {
		return "wss://" + s
	}
	return s
}
