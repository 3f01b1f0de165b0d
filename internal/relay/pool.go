package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/mostro-trade/mostro-client/internal/mostroerr"
	"github.com/mostro-trade/mostro-client/internal/relayevent"
	"github.com/mostro-trade/mostro-client/pkg/logging"
)

// Pool fans an action's relay I/O out across every configured relay:
// publish is disjunctive (succeeds if any relay accepts), query is unioned
// and deduplicated by event id (spec §5 "relay I/O is fan-out-parallel
// across relays").
type Pool struct {
	relays []Relay
	log    *logging.Logger
}

// NewPool constructs a Pool with one wsRelay per URL.
func NewPool(urls []string) *Pool {
	relays := make([]Relay, 0, len(urls))
	for _, u := range urls {
		relays = append(relays, NewWSRelay(u))
	}
	return &Pool{relays: relays, log: logging.Default().Component("relay_pool")}
}

// NewPoolFromRelays builds a Pool over pre-constructed relays (used in tests
// to wire in mock relays instead of real websocket connections).
func NewPoolFromRelays(relays []Relay) *Pool {
	return &Pool{relays: relays, log: logging.Default().Component("relay_pool")}
}

// Publish sends event to every relay concurrently. It succeeds if at least
// one relay accepts the event; per-relay failures are logged as warnings
// (spec §4.D step 6, §7 RelayError/PublishFailed kinds).
func (p *Pool) Publish(ctx context.Context, event *relayevent.Event) error {
	if len(p.relays) == 0 {
		return mostroerr.New(mostroerr.PublishFailed, "no relays configured")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var accepted int
	var lastErr error

	for _, r := range p.relays {
		wg.Add(1)
		go func(r Relay) {
			defer wg.Done()
			if err := r.Publish(ctx, event); err != nil {
				p.log.Warn("relay publish failed", "relay", r.URL(), "error", err)
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return
			}
			mu.Lock()
			accepted++
			mu.Unlock()
		}(r)
	}
	wg.Wait()

	if accepted == 0 {
		return mostroerr.Wrap(mostroerr.PublishFailed, "no relay accepted the event", lastErr)
	}
	return nil
}

// Query fetches filter from every relay concurrently and returns the union
// of results, deduplicated by event id (spec §5 "duplicate events... are
// deduplicated by id on the way in"). It only fails if every relay errors.
func (p *Pool) Query(ctx context.Context, filter Filter) ([]*relayevent.Event, error) {
	if len(p.relays) == 0 {
		return nil, mostroerr.New(mostroerr.RelayError, "no relays configured")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)
	var out []*relayevent.Event
	var okCount int
	var lastErr error

	for _, r := range p.relays {
		wg.Add(1)
		go func(r Relay) {
			defer wg.Done()
			events, err := r.Query(ctx, filter)
			if err != nil {
				p.log.Warn("relay query failed", "relay", r.URL(), "error", err)
				mu.Lock()
				lastErr = err
				mu.Unlock()
			}
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				okCount++
			}
			for _, e := range events {
				if seen[e.ID] {
					continue
				}
				seen[e.ID] = true
				out = append(out, e)
			}
		}(r)
	}
	wg.Wait()

	if okCount == 0 {
		return nil, mostroerr.Wrap(mostroerr.RelayError, fmt.Sprintf("all %d relays failed", len(p.relays)), lastErr)
	}
	return out, nil
}

// Close releases every relay connection (spec §4.H step 7: "always release
// relay connections on completion, success or failure").
func (p *Pool) Close() error {
	var lastErr error
	for _, r := range p.relays {
		if err := r.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
