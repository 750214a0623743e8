// Package relay provides the transports nostr-backup speaks to relays with:
// a pooled go-nostr client for clearnet relays and a hand-rolled NIP-01
// websocket session over a SOCKS5 proxy for .onion relays, composed behind
// one Client interface by Pool.
package relay

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// PublishStatus is the terminal state of one publish attempt against one relay.
type PublishStatus string

const (
	// StatusAckedSuccess means the relay acknowledged and accepted the event.
	StatusAckedSuccess PublishStatus = "acked-success"
	// StatusAckedRejected means the relay acknowledged but refused the event.
	StatusAckedRejected PublishStatus = "acked-rejected"
	// StatusTimedOut means no acknowledgment arrived within the bound.
	StatusTimedOut PublishStatus = "timed-out"
	// StatusTransportError means the connection failed before an acknowledgment.
	StatusTransportError PublishStatus = "transport-error"
)

// PublishOutcome is the single terminal result of publishing one event to one
// relay. At most one outcome is retained per (event, relay) pair; anything
// arriving after the pair is terminal is discarded by the accumulator.
type PublishOutcome struct {
	EventID string
	Relay   string
	Status  PublishStatus
	Detail  string
}

// Accepted reports whether the relay stored the event.
func (o PublishOutcome) Accepted() bool {
	return o.Status == StatusAckedSuccess
}

// Client is the capability set both transports implement. Query returns every
// event the relays produced for the filter, merged. Publish sends one event to
// every relay and yields exactly one PublishOutcome per relay on the returned
// channel, closing it once all relays have resolved.
type Client interface {
	Query(ctx context.Context, urls []string, filter nostr.Filter) ([]*nostr.Event, error)
	Publish(ctx context.Context, urls []string, ev *nostr.Event) <-chan PublishOutcome
}
