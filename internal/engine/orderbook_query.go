package engine

import (
	"context"
	"fmt"

	"github.com/mostro-trade/mostro-client/internal/orderbook"
	"github.com/mostro-trade/mostro-client/internal/relay"
)

// OrderEventKind is the relay event kind the coordinator publishes public
// order announcements under. It must match the target coordinator (spec §6
// "exact numeric values are carried in configuration/constants").
const OrderEventKind = 38383

// QueryOrderBook fetches and parses the public order book (spec §4.G),
// applying filter across every configured relay and unioning/deduplicating
// results (spec §5).
func (e *Engine) QueryOrderBook(ctx context.Context, filter orderbook.Filter) ([]*orderbook.Entry, error) {
	tagFilter := filter.ToTagFilter(OrderEventKind)
	events, err := e.pool.Query(ctx, relay.Filter{
		Authors: tagFilter.Authors,
		Kinds:   tagFilter.Kinds,
		Tags:    tagFilter.Tags,
	})
	if err != nil {
		return nil, err
	}
	return orderbook.ParseAll(events), nil
}

// QueryStatus looks up a single order's current public status (action
// "query-status", spec §4.H).
func (e *Engine) QueryStatus(ctx context.Context, orderID string) (*orderbook.Entry, error) {
	entries, err := e.QueryOrderBook(ctx, orderbook.Filter{CoordinatorPubKey: e.cfg.MostroPubKey})
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.ID == orderID {
			return entry, nil
		}
	}
	return nil, fmt.Errorf("order %s not found in the fetched order book", orderID)
}
