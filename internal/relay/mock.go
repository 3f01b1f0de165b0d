package relay

import (
	"context"
	"sync"

	"github.com/mostro-trade/mostro-client/internal/relayevent"
)

// MockRelay is an in-memory Relay used to test the gift-wrap/chat/engine
// components without a real relay connection (spec §6 "a mock in-memory
// relay implementing the same interface backs the component tests").
type MockRelay struct {
	url string
	mu  sync.Mutex
	events []*relayevent.Event
	// RejectPublish, when set, makes every Publish call fail with this error.
	RejectPublish error
	closed bool
}

// NewMockRelay constructs an empty MockRelay.
func NewMockRelay(url string) *MockRelay {
	return &MockRelay{url: url}
}

func (m *MockRelay) URL() string { return m.url }

// Publish stores event in-memory, or fails if RejectPublish is set.
func (m *MockRelay) Publish(ctx context.Context, event *relayevent.Event) error {
	if m.RejectPublish != nil {
		return m.RejectPublish
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Query returns every stored event matching filter.
func (m *MockRelay) Query(ctx context.Context, filter Filter) ([]*relayevent.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*relayevent.Event
	for _, e := range m.events {
		if matches(e, filter) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MockRelay) Close() error {
	m.closed = true
	return nil
}

// Seed injects events directly, bypassing Publish (useful to simulate events
// already present on a relay before a test begins).
func (m *MockRelay) Seed(events ...*relayevent.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
}

func matches(e *relayevent.Event, f Filter) bool {
	if len(f.IDs) > 0 && !contains(f.IDs, e.ID) {
		return false
	}
	if len(f.Authors) > 0 && !contains(f.Authors, e.PubKey) {
		return false
	}
	if len(f.Kinds) > 0 && !containsInt(f.Kinds, e.Kind) {
		return false
	}
	if f.Since != nil && e.CreatedAt < *f.Since {
		return false
	}
	if f.Until != nil && e.CreatedAt > *f.Until {
		return false
	}
	for name, values := range f.Tags {
		tagValues := e.FindTagValues(name)
		if !anyMatch(tagValues, values) {
			return false
		}
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

func anyMatch(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}
