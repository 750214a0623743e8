// Package backup computes which of a pubkey's events are missing from a target
// relay and republishes them in bounded-concurrency batches.
package backup

import (
	"context"
	"fmt"
	"sort"

	"github.com/nbd-wtf/go-nostr"

	"github.com/djinoz/nostr-event-backup-to-relay/pkg/logger"
	"github.com/djinoz/nostr-event-backup-to-relay/pkg/relay"
)

// Options selects what to synchronize.
type Options struct {
	// Author is the hex pubkey whose events are backed up.
	Author string
	// Kinds restricts the event kinds fetched.
	Kinds []int
	// Since and Until bound the time window (unix seconds, zero = unbounded).
	Since int64
	Until int64
	// Limit caps each per-relay query (0 = relay default).
	Limit int
	// Target is the relay the events are copied to.
	Target string
	// Sources are the relays events are fetched from.
	Sources []string
}

// Filter builds the query filter for these options. The filter is built once
// and never mutated while a query is in flight.
func (o Options) Filter() nostr.Filter {
	f := nostr.Filter{
		Authors: []string{o.Author},
		Kinds:   o.Kinds,
		Limit:   o.Limit,
	}
	if o.Since > 0 {
		ts := nostr.Timestamp(o.Since)
		f.Since = &ts
	}
	if o.Until > 0 {
		ts := nostr.Timestamp(o.Until)
		f.Until = &ts
	}
	return f
}

// Plan is the computed sync set: the candidate events that are not yet on the
// target, oldest first.
type Plan struct {
	// New holds the events to publish, ascending by CreatedAt (stable for
	// ties).
	New []*nostr.Event
	// Existing is how many distinct event ids the target already holds.
	Existing int
	// Candidates is how many events the source query produced, duplicates
	// included.
	Candidates int
}

// Engine computes sync plans against a relay client.
type Engine struct {
	client relay.Client
}

// NewEngine creates an Engine over any relay client.
func NewEngine(client relay.Client) *Engine {
	return &Engine{client: client}
}

// Plan fetches the target's existing ids and the sources' candidates, and
// returns the candidates the target is missing. If the target cannot be
// queried the existing set is treated as empty and the run proceeds: the
// worst case is republishing events the target already holds, which relays
// deduplicate by id anyway.
func (e *Engine) Plan(ctx context.Context, opts Options) (*Plan, error) {
	if opts.Author == "" {
		return nil, fmt.Errorf("author pubkey is required")
	}
	if opts.Target == "" {
		return nil, fmt.Errorf("target relay is required")
	}

	filter := opts.Filter()

	existing := make(map[string]struct{})
	targetEvents, err := e.client.Query(ctx, []string{opts.Target}, filter)
	if err != nil {
		logger.WarnCF("sync", "Could not fetch existing events from target, assuming none (duplicates possible)", map[string]any{
			"target": opts.Target,
			"error":  err.Error(),
		})
	}
	for _, ev := range targetEvents {
		existing[ev.ID] = struct{}{}
	}

	queryRelays := appendUnique(opts.Sources, opts.Target)
	candidates, err := e.client.Query(ctx, queryRelays, filter)
	if err != nil {
		return nil, fmt.Errorf("querying source relays: %w", err)
	}

	seen := make(map[string]struct{}, len(candidates))
	var fresh []*nostr.Event
	for _, ev := range candidates {
		if _, ok := existing[ev.ID]; ok {
			continue
		}
		if _, ok := seen[ev.ID]; ok {
			continue
		}
		seen[ev.ID] = struct{}{}
		fresh = append(fresh, ev)
	}

	// Oldest first so the target receives events in chronological order.
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].CreatedAt < fresh[j].CreatedAt
	})

	logger.InfoCF("sync", "Plan computed", map[string]any{
		"existing":   len(existing),
		"candidates": len(candidates),
		"new":        len(fresh),
	})

	return &Plan{
		New:        fresh,
		Existing:   len(existing),
		Candidates: len(candidates),
	}, nil
}

func appendUnique(urls []string, extra string) []string {
	out := make([]string, 0, len(urls)+1)
	seen := make(map[string]struct{}, len(urls)+1)
	for _, u := range append(append([]string{}, urls...), extra) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
