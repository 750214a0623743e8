package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/djinoz/nostr-event-backup-to-relay/pkg/backup"
	"github.com/djinoz/nostr-event-backup-to-relay/pkg/relay"
)

// fakeRelay is an in-process relay speaking just enough of the wire protocol
// for the backup flow: REQ answered from its store, EVENT stored and OK'd.
type fakeRelay struct {
	mu     sync.Mutex
	events map[string]*nostr.Event
	srv    *httptest.Server
	url    string
}

func newFakeRelay(t *testing.T) *fakeRelay {
	t.Helper()
	fr := &fakeRelay{events: make(map[string]*nostr.Event)}

	upgrader := websocket.Upgrader{}
	fr.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		fr.serve(conn)
	}))
	t.Cleanup(fr.srv.Close)

	fr.url = "ws" + strings.TrimPrefix(fr.srv.URL, "http")
	return fr
}

func (fr *fakeRelay) store(evs ...*nostr.Event) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	for _, ev := range evs {
		fr.events[ev.ID] = ev
	}
}

func (fr *fakeRelay) count() int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return len(fr.events)
}

func (fr *fakeRelay) serve(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame []json.RawMessage
		if err := json.Unmarshal(data, &frame); err != nil || len(frame) == 0 {
			continue
		}
		var label string
		if err := json.Unmarshal(frame[0], &label); err != nil {
			continue
		}

		switch label {
		case "REQ":
			if len(frame) < 3 {
				continue
			}
			var subID string
			json.Unmarshal(frame[1], &subID)
			var filter nostr.Filter
			json.Unmarshal(frame[2], &filter)

			fr.mu.Lock()
			for _, ev := range fr.events {
				if filter.Matches(ev) {
					conn.WriteJSON([]any{"EVENT", subID, ev})
				}
			}
			fr.mu.Unlock()
			conn.WriteJSON([]any{"EOSE", subID})
		case "EVENT":
			if len(frame) < 2 {
				continue
			}
			var ev nostr.Event
			if err := json.Unmarshal(frame[1], &ev); err != nil {
				continue
			}
			fr.store(&ev)
			conn.WriteJSON([]any{"OK", ev.ID, true, ""})
		case "CLOSE":
			// Subscription teardown, nothing to do.
		}
	}
}

func signedEvent(t *testing.T, sk, content string, createdAt int64) *nostr.Event {
	t.Helper()
	ev := &nostr.Event{
		Kind:      1,
		CreatedAt: nostr.Timestamp(createdAt),
		Content:   content,
		Tags:      nostr.Tags{},
	}
	require.NoError(t, ev.Sign(sk))
	return ev
}

// TestBackupFlow runs the whole pipeline against live in-process relays:
// plan the missing events, publish them, then verify a second run finds
// nothing left to do.
func TestBackupFlow(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	author, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	older := signedEvent(t, sk, "older note", 1000)
	newer := signedEvent(t, sk, "newer note", 2000)
	shared := signedEvent(t, sk, "already backed up", 1500)

	source := newFakeRelay(t)
	source.store(older, newer, shared)
	target := newFakeRelay(t)
	target.store(shared)

	ctx := context.Background()
	pool := relay.NewPool(ctx, relay.PoolConfig{
		SOCKSHost:    "127.0.0.1",
		SOCKSPort:    9050,
		ProbeTimeout: time.Second,
		QueryTimeout: 5 * time.Second,
		OnionTimeout: 5 * time.Second,
	})

	opts := backup.Options{
		Author:  author,
		Kinds:   []int{1},
		Target:  target.url,
		Sources: []string{source.url},
	}

	engine := backup.NewEngine(pool)
	plan, err := engine.Plan(ctx, opts)
	require.NoError(t, err)
	require.Len(t, plan.New, 2, "only the events missing from the target")
	require.Equal(t, older.ID, plan.New[0].ID, "oldest first")
	require.Equal(t, newer.ID, plan.New[1].ID)

	publisher := backup.NewPublisher(pool, 1, 10*time.Millisecond, 5*time.Second)
	report := publisher.Run(ctx, target.url, plan.New)
	require.Equal(t, 2, report.Published)
	require.Equal(t, 0, report.Failed)
	require.Equal(t, len(plan.New), report.Total())
	require.Equal(t, 3, target.count(), "target holds everything now")

	// Idempotence: a second run plans nothing.
	again, err := engine.Plan(ctx, opts)
	require.NoError(t, err)
	require.Empty(t, again.New)
}

// TestBackupFlowDegradesWithoutProxy mixes an onion source into the relay
// list while no SOCKS proxy is running: the onion subset is skipped and the
// standard relays still serve the plan.
func TestBackupFlowDegradesWithoutProxy(t *testing.T) {
	sk := nostr.GeneratePrivateKey()
	author, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)

	note := signedEvent(t, sk, "clearnet note", 1000)
	source := newFakeRelay(t)
	source.store(note)
	target := newFakeRelay(t)

	ctx := context.Background()
	pool := relay.NewPool(ctx, relay.PoolConfig{
		SOCKSHost: "127.0.0.1",
		// A port nothing listens on, so the probe fails fast.
		SOCKSPort:    1,
		ProbeTimeout: 200 * time.Millisecond,
		QueryTimeout: 5 * time.Second,
		OnionTimeout: time.Second,
	})

	plan, err := backup.NewEngine(pool).Plan(ctx, backup.Options{
		Author:  author,
		Kinds:   []int{1},
		Target:  target.url,
		Sources: []string{source.url, "ws://unreachable.onion", "ws://another.onion"},
	})
	require.NoError(t, err, "proxy being down must degrade, not fail")
	require.Len(t, plan.New, 1)
	require.Equal(t, note.ID, plan.New[0].ID)
}
