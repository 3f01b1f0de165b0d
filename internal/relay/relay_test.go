package relay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mostro-trade/mostro-client/internal/relayevent"
)

func sampleEvent(id string, kind int, tags ...relayevent.Tag) *relayevent.Event {
	return &relayevent.Event{
		ID:     id,
		PubKey: "aa",
		Kind:   kind,
		Tags:   tags,
	}
}

func TestPoolPublishSucceedsIfAnyRelayAccepts(t *testing.T) {
	good := NewMockRelay("wss://good")
	bad := NewMockRelay("wss://bad")
	bad.RejectPublish = errors.New("connection refused")

	pool := NewPoolFromRelays([]Relay{good, bad})
	evt := sampleEvent("evt1", 1059)
	if err := pool.Publish(context.Background(), evt); err != nil {
		t.Fatalf("expected publish to succeed via the good relay, got %v", err)
	}
	if len(good.events) != 1 {
		t.Fatalf("expected event stored on the good relay")
	}
}

func TestPoolPublishFailsIfAllRelaysReject(t *testing.T) {
	r1 := NewMockRelay("wss://one")
	r1.RejectPublish = errors.New("boom")
	r2 := NewMockRelay("wss://two")
	r2.RejectPublish = errors.New("boom")

	pool := NewPoolFromRelays([]Relay{r1, r2})
	if err := pool.Publish(context.Background(), sampleEvent("evt2", 1059)); err == nil {
		t.Fatalf("expected PublishFailed when every relay rejects")
	}
}

func TestPoolQueryUnionsAndDedupesByID(t *testing.T) {
	r1 := NewMockRelay("wss://one")
	r2 := NewMockRelay("wss://two")

	shared := sampleEvent("shared", 30000, relayevent.Tag{"z", "order"})
	onlyR1 := sampleEvent("only-r1", 30000, relayevent.Tag{"z", "order"})
	r1.Seed(shared, onlyR1)
	r2.Seed(shared)

	pool := NewPoolFromRelays([]Relay{r1, r2})
	events, err := pool.Query(context.Background(), Filter{Kinds: []int{30000}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 deduplicated events, got %d", len(events))
	}
}

func TestPoolQueryFiltersByTag(t *testing.T) {
	r := NewMockRelay("wss://one")
	r.Seed(
		sampleEvent("order-open", 30000, relayevent.Tag{"z", "order"}, relayevent.Tag{"s", "pending"}),
		sampleEvent("order-closed", 30000, relayevent.Tag{"z", "order"}, relayevent.Tag{"s", "success"}),
	)

	pool := NewPoolFromRelays([]Relay{r})
	events, err := pool.Query(context.Background(), Filter{
		Kinds: []int{30000},
		Tags:  map[string][]string{"s": {"pending"}},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 || events[0].ID != "order-open" {
		t.Fatalf("expected only the pending order, got %+v", events)
	}
}

func TestPoolQueryFailsWithNoRelays(t *testing.T) {
	pool := NewPoolFromRelays([]Relay{})
	if _, err := pool.Query(context.Background(), Filter{}); err == nil {
		t.Fatalf("expected RelayError with zero configured relays")
	}
}

func TestPoolCloseReleasesEveryRelay(t *testing.T) {
	r1 := NewMockRelay("wss://one")
	r2 := NewMockRelay("wss://two")
	pool := NewPoolFromRelays([]Relay{r1, r2})
	if err := pool.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !r1.closed || !r2.closed {
		t.Fatalf("expected both relays closed")
	}
}

func TestFilterMarshalJSONFlattensTags(t *testing.T) {
	since := int64(100)
	f := Filter{
		Authors: []string{"aa"},
		Kinds:   []int{30000},
		Tags:    map[string][]string{"z": {"order"}},
		Since:   &since,
		Limit:   10,
	}
	data, err := f.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"authors":["aa"]`, `"kinds":[30000]`, `"#z":["order"]`, `"since":100`, `"limit":10`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %q in %s", want, s)
		}
	}
}
