package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/net/proxy"

	"github.com/djinoz/nostr-event-backup-to-relay/pkg/logger"
)

// DefaultOnionTimeout bounds one complete onion operation (dial, handshake,
// and the full request/response exchange).
const DefaultOnionTimeout = 15 * time.Second

// DialFunc opens the underlying TCP connection for a websocket dial.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// OnionAdapter speaks the relay wire protocol directly over SOCKS-proxied
// websockets. No pooled client supports dialing through Tor, so each
// operation opens one fresh connection, runs a single REQ or EVENT exchange,
// and closes. Connections are never reused.
type OnionAdapter struct {
	socksAddr string
	opTimeout time.Duration

	// dial is the raw connection factory. Tests replace it to reach an
	// in-process relay without a SOCKS daemon.
	dial DialFunc
}

// NewOnionAdapter creates an adapter that dials through the SOCKS5 proxy at
// socksAddr ("host:port"). opTimeout <= 0 selects DefaultOnionTimeout.
func NewOnionAdapter(socksAddr string, opTimeout time.Duration) *OnionAdapter {
	if opTimeout <= 0 {
		opTimeout = DefaultOnionTimeout
	}
	a := &OnionAdapter{
		socksAddr: socksAddr,
		opTimeout: opTimeout,
	}
	a.dial = a.socksDial
	return a
}

func (a *OnionAdapter) socksDial(ctx context.Context, network, addr string) (net.Conn, error) {
	d, err := proxy.SOCKS5("tcp", a.socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("creating SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return d.Dial(network, addr)
	}
	return cd.DialContext(ctx, network, addr)
}

func (a *OnionAdapter) connect(ctx context.Context, url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		NetDialContext:   a.dial,
		HandshakeTimeout: a.opTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return conn, nil
}

// Query runs one subscription per url concurrently. Each url is isolated: a
// failed or timed-out relay contributes nothing and is logged, the others are
// unaffected. The merged result preserves per-relay arrival order.
func (a *OnionAdapter) Query(ctx context.Context, urls []string, filter nostr.Filter) ([]*nostr.Event, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	type result struct {
		index  int
		events []*nostr.Event
	}
	results := make(chan result, len(urls))
	for i, u := range urls {
		go func(i int, u string) {
			evs, err := a.queryOne(ctx, u, filter)
			if err != nil {
				logger.WarnCF("onion", "Query failed", map[string]any{
					"relay": u,
					"error": err.Error(),
				})
				results <- result{index: i}
				return
			}
			results <- result{index: i, events: evs}
		}(i, u)
	}

	perRelay := make([][]*nostr.Event, len(urls))
	for range urls {
		r := <-results
		perRelay[r.index] = r.events
	}

	var merged []*nostr.Event
	for _, evs := range perRelay {
		merged = append(merged, evs...)
	}
	return merged, nil
}

// queryOne opens a fresh connection, sends ["REQ", subID, filter] and
// accumulates ["EVENT", subID, event] frames until ["EOSE", subID] arrives or
// the operation timeout fires. Frames it cannot parse are logged and skipped.
func (a *OnionAdapter) queryOne(ctx context.Context, url string, filter nostr.Filter) ([]*nostr.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opTimeout)
	defer cancel()

	conn, err := a.connect(ctx, url)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	subID := uuid.NewString()
	if err := conn.WriteJSON([]any{"REQ", subID, filter}); err != nil {
		return nil, fmt.Errorf("sending REQ: %w", err)
	}

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)

	var events []*nostr.Event
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return events, fmt.Errorf("reading from %s: %w", url, err)
		}

		label, rest, err := parseFrame(data)
		if err != nil {
			logger.WarnCF("onion", "Skipping malformed frame", map[string]any{
				"relay": url,
				"error": err.Error(),
			})
			continue
		}

		switch label {
		case "EVENT":
			if len(rest) < 2 || !rawStringEquals(rest[0], subID) {
				continue
			}
			var ev nostr.Event
			if err := json.Unmarshal(rest[1], &ev); err != nil {
				logger.WarnCF("onion", "Skipping undecodable event", map[string]any{
					"relay": url,
					"error": err.Error(),
				})
				continue
			}
			events = append(events, &ev)
		case "EOSE":
			if len(rest) >= 1 && rawStringEquals(rest[0], subID) {
				logger.DebugCF("onion", "Subscription drained", map[string]any{
					"relay":  url,
					"events": len(events),
				})
				return events, nil
			}
		case "NOTICE":
			logger.DebugCF("onion", "Relay notice", map[string]any{
				"relay":  url,
				"notice": string(data),
			})
		default:
			// Unknown frame types are tolerated to stay compatible with
			// relays that speak protocol extensions.
		}
	}
}

// Publish sends ev to every url concurrently and yields one outcome per url.
func (a *OnionAdapter) Publish(ctx context.Context, urls []string, ev *nostr.Event) <-chan PublishOutcome {
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

// publishOne opens a fresh connection, sends ["EVENT", event] and waits for
// the ["OK", id, accepted, reason] acknowledgment matching the event id.
// First resolution wins: an ack settles the status, a read failure is a
// transport error, a clean close without an ack is a transport error, and the
// deadline settles as timed-out.
func (a *OnionAdapter) publishOne(ctx context.Context, url string, ev *nostr.Event) PublishOutcome {
	outcome := PublishOutcome{EventID: ev.ID, Relay: url}

	ctx, cancel := context.WithTimeout(ctx, a.opTimeout)
	defer cancel()

	conn, err := a.connect(ctx, url)
	if err != nil {
		outcome.Status = StatusTransportError
		outcome.Detail = err.Error()
		return outcome
	}
	defer conn.Close()

	if err := conn.WriteJSON([]any{"EVENT", ev}); err != nil {
		outcome.Status = StatusTransportError
		outcome.Detail = fmt.Sprintf("sending EVENT: %v", err)
		return outcome
	}

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case isTimeout(err):
				outcome.Status = StatusTimedOut
				outcome.Detail = fmt.Sprintf("no acknowledgment within %s", a.opTimeout)
			case isClosed(err):
				outcome.Status = StatusTransportError
				outcome.Detail = "closed without response"
			default:
				outcome.Status = StatusTransportError
				outcome.Detail = err.Error()
			}
			return outcome
		}

		label, rest, err := parseFrame(data)
		if err != nil {
			logger.WarnCF("onion", "Skipping malformed frame", map[string]any{
				"relay": url,
				"error": err.Error(),
			})
			continue
		}
		if label != "OK" || len(rest) < 2 || !rawStringEquals(rest[0], ev.ID) {
			continue
		}

		var accepted bool
		if err := json.Unmarshal(rest[1], &accepted); err != nil {
			logger.WarnCF("onion", "Skipping malformed OK frame", map[string]any{
				"relay": url,
				"error": err.Error(),
			})
			continue
		}
		var reason string
		if len(rest) >= 3 {
			json.Unmarshal(rest[2], &reason)
		}

		if accepted {
			outcome.Status = StatusAckedSuccess
		} else {
			outcome.Status = StatusAckedRejected
		}
		outcome.Detail = reason
		return outcome
	}
}

// parseFrame splits a wire frame into its label and remaining elements.
// Frames are JSON arrays whose first element is a string label.
func parseFrame(data []byte) (string, []json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return "", nil, fmt.Errorf("not a JSON array: %w", err)
	}
	if len(arr) == 0 {
		return "", nil, errors.New("empty frame")
	}
	var label string
	if err := json.Unmarshal(arr[0], &label); err != nil {
		return "", nil, fmt.Errorf("non-string frame label: %w", err)
	}
	return label, arr[1:], nil
}

func rawStringEquals(raw json.RawMessage, want string) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == want
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseAbnormalClosure,
			websocket.CloseNoStatusReceived)
}
