package relay

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/djinoz/nostr-event-backup-to-relay/pkg/logger"
)

// Compile-time interface checks.
var (
	_ Client = (*Pool)(nil)
	_ Client = (*StandardAdapter)(nil)
	_ Client = (*OnionAdapter)(nil)
)

// PoolConfig carries the transport settings the Pool needs.
type PoolConfig struct {
	SOCKSHost    string
	SOCKSPort    int
	ProbeTimeout time.Duration
	QueryTimeout time.Duration
	OnionTimeout time.Duration
}

// Pool composes the standard and onion adapters behind the Client interface.
// Relay urls are partitioned by Classify on every call; onion relays are only
// attempted when the SOCKS proxy answers a reachability probe, otherwise that
// subset is skipped with a warning and the call degrades to the standard
// subset.
type Pool struct {
	standard Client
	onion    Client

	socksHost    string
	socksPort    int
	probeTimeout time.Duration

	// probe is swapped out by tests; the default is ProbeSOCKS, called
	// fresh on every query and publish that involves onion relays.
	probe func(host string, port int, timeout time.Duration) bool
}

// NewPool builds a Pool with real adapters. ctx owns the lifetime of the
// underlying go-nostr pool connections.
func NewPool(ctx context.Context, cfg PoolConfig) *Pool {
	socksAddr := net.JoinHostPort(cfg.SOCKSHost, strconv.Itoa(cfg.SOCKSPort))
	return &Pool{
		standard:     NewStandardAdapter(ctx, cfg.QueryTimeout),
		onion:        NewOnionAdapter(socksAddr, cfg.OnionTimeout),
		socksHost:    cfg.SOCKSHost,
		socksPort:    cfg.SOCKSPort,
		probeTimeout: cfg.ProbeTimeout,
		probe:        ProbeSOCKS,
	}
}

// Query partitions urls, queries the standard subset unconditionally and the
// onion subset only when the proxy is reachable, and merges the results with
// standard events first. Duplicate events across relays are kept; dedup is
// the sync engine's job.
func (p *Pool) Query(ctx context.Context, urls []string, filter nostr.Filter) ([]*nostr.Event, error) {
	standard, onion := Partition(urls)

	var merged []*nostr.Event
	if len(standard) > 0 {
		events, err := p.standard.Query(ctx, standard, filter)
		if err != nil {
			logger.WarnCF("pool", "Standard query failed", map[string]any{
				"relays": len(standard),
				"error":  err.Error(),
			})
		}
		merged = append(merged, events...)
	}

	if len(onion) > 0 {
		if !p.probe(p.socksHost, p.socksPort, p.probeTimeout) {
			logger.WarnCF("pool", "SOCKS proxy unreachable, skipping onion relays", map[string]any{
				"proxy":   net.JoinHostPort(p.socksHost, strconv.Itoa(p.socksPort)),
				"skipped": len(onion),
			})
		} else {
			events, err := p.onion.Query(ctx, onion, filter)
			if err != nil {
				logger.WarnCF("pool", "Onion query failed", map[string]any{
					"relays": len(onion),
					"error":  err.Error(),
				})
			}
			merged = append(merged, events...)
		}
	}

	return merged, nil
}

// Publish fans ev out to both transports and multiplexes their outcomes into
// one channel. Exactly one outcome is delivered per requested url; the
// channel closes once every url has resolved. Onion urls resolve immediately
// as transport errors when the proxy probe fails.
func (p *Pool) Publish(ctx context.Context, urls []string, ev *nostr.Event) <-chan PublishOutcome {
	standard, onion := Partition(urls)
	out := make(chan PublishOutcome, len(urls))

	var wg sync.WaitGroup
	forward := func(ch <-chan PublishOutcome) {
		defer wg.Done()
		for o := range ch {
			out <- o
		}
	}

	if len(standard) > 0 {
		wg.Add(1)
		go forward(p.standard.Publish(ctx, standard, ev))
	}

	if len(onion) > 0 {
		if !p.probe(p.socksHost, p.socksPort, p.probeTimeout) {
			logger.WarnCF("pool", "SOCKS proxy unreachable, failing onion publishes", map[string]any{
				"proxy":   net.JoinHostPort(p.socksHost, strconv.Itoa(p.socksPort)),
				"skipped": len(onion),
			})
			for _, u := range onion {
				out <- PublishOutcome{
					EventID: ev.ID,
					Relay:   u,
					Status:  StatusTransportError,
					Detail:  "SOCKS proxy unreachable",
				}
			}
		} else {
			wg.Add(1)
			go forward(p.onion.Publish(ctx, onion, ev))
		}
	}

	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
