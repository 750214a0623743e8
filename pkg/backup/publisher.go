package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/djinoz/nostr-event-backup-to-relay/pkg/logger"
	"github.com/djinoz/nostr-event-backup-to-relay/pkg/relay"
)

// Publisher defaults.
const (
	DefaultBatchSize      = 10
	DefaultBatchDelay     = 1000 * time.Millisecond
	DefaultPublishTimeout = 8 * time.Second
)

// Report aggregates a publish run.
type Report struct {
	Published int
	Failed    int
	// Outcomes holds one terminal outcome per event, in publish order.
	Outcomes []relay.PublishOutcome
}

// Total returns how many events were attempted.
func (r Report) Total() int {
	return r.Published + r.Failed
}

// SuccessRate returns the published fraction in [0, 1]. Zero attempts count
// as a fully successful run.
func (r Report) SuccessRate() float64 {
	if r.Total() == 0 {
		return 1
	}
	return float64(r.Published) / float64(r.Total())
}

// Publisher republishes events to a target relay in fixed-size batches.
// Within a batch every event publishes concurrently, each racing a per-event
// timeout; the batch waits for all events to reach a terminal outcome before
// the inter-batch delay. Failed events are not retried within a run.
type Publisher struct {
	client    relay.Client
	batchSize int
	delay     time.Duration
	timeout   time.Duration
}

// NewPublisher creates a Publisher. Non-positive batchSize, delay, or timeout
// select the defaults.
func NewPublisher(client relay.Client, batchSize int, delay, timeout time.Duration) *Publisher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if delay < 0 {
		delay = DefaultBatchDelay
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	return &Publisher{
		client:    client,
		batchSize: batchSize,
		delay:     delay,
		timeout:   timeout,
	}
}

// Run publishes events to target and returns the aggregated report. Every
// event ends in exactly one terminal outcome, so Published+Failed equals
// len(events).
func (p *Publisher) Run(ctx context.Context, target string, events []*nostr.Event) Report {
	outcomes := newOutcomeSet()

	total := len(events)
	batches := (total + p.batchSize - 1) / p.batchSize
	for start := 0; start < total; start += p.batchSize {
		end := start + p.batchSize
		if end > total {
			end = total
		}
		batch := events[start:end]

		logger.InfoCF("publish", "Publishing batch", map[string]any{
			"batch":   start/p.batchSize + 1,
			"batches": batches,
			"size":    len(batch),
		})

		var wg sync.WaitGroup
		for _, ev := range batch {
			wg.Add(1)
			go func(ev *nostr.Event) {
				defer wg.Done()
				p.publishOne(ctx, outcomes, target, ev)
			}(ev)
		}
		wg.Wait()

		if end < total && p.delay > 0 {
			time.Sleep(p.delay)
		}
	}

	report := Report{Outcomes: make([]relay.PublishOutcome, 0, total)}
	for _, ev := range events {
		o, ok := outcomes.get(ev.ID, target)
		if !ok {
			// Should not happen: publishOne always records a terminal
			// outcome. Account for it as a failure rather than losing it.
			o = relay.PublishOutcome{
				EventID: ev.ID,
				Relay:   target,
				Status:  relay.StatusTransportError,
				Detail:  "no outcome recorded",
			}
		}
		report.Outcomes = append(report.Outcomes, o)
		if o.Accepted() {
			report.Published++
		} else {
			report.Failed++
		}
	}

	logger.InfoCF("publish", "Run finished", map[string]any{
		"published": report.Published,
		"failed":    report.Failed,
	})
	return report
}

// publishOne races the relay's outcome against the per-event timeout. The
// first terminal signal wins; anything the transport reports afterwards is
// drained and discarded by the outcome set.
func (p *Publisher) publishOne(ctx context.Context, outcomes *outcomeSet, target string, ev *nostr.Event) {
	ch := p.client.Publish(ctx, []string{target}, ev)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case o, ok := <-ch:
		if !ok {
			o = relay.PublishOutcome{
				EventID: ev.ID,
				Relay:   target,
				Status:  relay.StatusTransportError,
				Detail:  "closed without response",
			}
		}
		outcomes.record(o)
	case <-timer.C:
		outcomes.record(relay.PublishOutcome{
			EventID: ev.ID,
			Relay:   target,
			Status:  relay.StatusTimedOut,
			Detail:  fmt.Sprintf("no acknowledgment within %s", p.timeout),
		})
		go drain(outcomes, ch)
	}
}

// drain consumes late signals so the transport goroutine can finish. The
// outcome set rejects them since the pair is already terminal.
func drain(outcomes *outcomeSet, ch <-chan relay.PublishOutcome) {
	for o := range ch {
		if !outcomes.record(o) {
			logger.DebugCF("publish", "Discarding late signal", map[string]any{
				"event":  o.EventID,
				"relay":  o.Relay,
				"status": string(o.Status),
			})
		}
	}
}

// outcomeSet retains at most one terminal outcome per (event, relay) pair.
type outcomeSet struct {
	mu  sync.Mutex
	set map[string]relay.PublishOutcome
}

func newOutcomeSet() *outcomeSet {
	return &outcomeSet{set: make(map[string]relay.PublishOutcome)}
}

func key(eventID, relayURL string) string {
	return eventID + "\x00" + relayURL
}

// record stores o if the pair has no terminal outcome yet. It reports whether
// o was retained.
func (s *outcomeSet) record(o relay.PublishOutcome) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(o.EventID, o.Relay)
	if _, ok := s.set[k]; ok {
		return false
	}
	s.set[k] = o
	return true
}

func (s *outcomeSet) get(eventID, relayURL string) (relay.PublishOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.set[key(eventID, relayURL)]
	return o, ok
}
