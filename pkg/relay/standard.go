package relay

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/djinoz/nostr-event-backup-to-relay/pkg/logger"
)

// DefaultQueryTimeout bounds one pooled query across the standard subset.
// Without it a relay that never sends EOSE would stall the whole run.
const DefaultQueryTimeout = 30 * time.Second

// StandardAdapter speaks to clearnet relays through a shared go-nostr
// SimplePool. It does not retry: whatever the pool reports per relay is
// surfaced as-is.
type StandardAdapter struct {
	pool         *nostr.SimplePool
	queryTimeout time.Duration
}

// NewStandardAdapter creates an adapter around a fresh SimplePool.
// queryTimeout <= 0 selects DefaultQueryTimeout.
func NewStandardAdapter(ctx context.Context, queryTimeout time.Duration) *StandardAdapter {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &StandardAdapter{
		pool:         nostr.NewSimplePool(ctx),
		queryTimeout: queryTimeout,
	}
}

// Query fetches matching events from every url and merges them in arrival
// order. Failures are best-effort: a relay that cannot be reached contributes
// nothing and is logged, it never fails the call.
func (a *StandardAdapter) Query(ctx context.Context, urls []string, filter nostr.Filter) ([]*nostr.Event, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.queryTimeout)
	defer cancel()

	var events []*nostr.Event
	for ie := range a.pool.SubManyEose(ctx, urls, nostr.Filters{filter}) {
		if ie.Event == nil {
			continue
		}
		events = append(events, ie.Event)
	}

	logger.DebugCF("standard", "Query finished", map[string]any{
		"relays": len(urls),
		"events": len(events),
	})
	return events, nil
}

// Publish sends ev to every url concurrently and yields one outcome per url.
func (a *StandardAdapter) Publish(ctx context.Context, urls []string, ev *nostr.Event) <-chan PublishOutcome {
	out := make(chan PublishOutcome, len(urls))
	go func() {
		defer close(out)
		done := make(chan PublishOutcome, len(urls))
		for _, u := range urls {
			go func(u string) {
				done <- a.publishOne(ctx, u, ev)
			}(u)
		}
		for range urls {
			out <- <-done
		}
	}()
	return out
}

func (a *StandardAdapter) publishOne(ctx context.Context, url string, ev *nostr.Event) PublishOutcome {
	r, err := a.pool.EnsureRelay(url)
	if err != nil {
		return PublishOutcome{
			EventID: ev.ID,
			Relay:   url,
			Status:  StatusTransportError,
			Detail:  err.Error(),
		}
	}

	err = r.Publish(ctx, *ev)
	return PublishOutcome{
		EventID: ev.ID,
		Relay:   url,
		Status:  classifyPublishError(err),
		Detail:  errDetail(err),
	}
}

// classifyPublishError maps a go-nostr publish error to a PublishStatus. The
// pool surfaces a relay's negative OK as an error whose text carries the
// relay's reason ("msg: ..."); everything else is a transport fault.
func classifyPublishError(err error) PublishStatus {
	switch {
	case err == nil:
		return StatusAckedSuccess
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimedOut
	case strings.Contains(err.Error(), "msg:"):
		return StatusAckedRejected
	default:
		return StatusTransportError
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
