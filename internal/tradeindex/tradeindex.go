// Package tradeindex resolves the §9 open question left by the Trade
// Engine's fallback-to-index-1 behavior: a persisted order_id -> trade_index
// map, so that requests against an existing order always reach the trade
// key it was actually opened with.
package tradeindex

import "github.com/mostro-trade/mostro-client/internal/store"

// Map resolves an order id to the trade-key index it was opened with.
type Map struct {
	store *store.Store
}

// New wraps a Store's SQLite-backed trade-index table.
func New(s *store.Store) *Map {
	return &Map{store: s}
}

// Record associates orderID with the trade-key index used to open or take
// it. Call this immediately after allocating the index for a new trade.
func (m *Map) Record(orderID string, index uint32) error {
	return m.store.RecordTradeIndex(orderID, index)
}

// Lookup returns the trade-key index recorded for orderID, if any. Callers
// still need the documented fallback to index 1 for orders predating this
// map, or restored from a coordinator that never recorded one locally.
func (m *Map) Lookup(orderID string) (index uint32, ok bool, err error) {
	return m.store.LookupTradeIndex(orderID)
}

// All returns every order_id -> trade_index mapping this client has
// recorded. The engine's restore-session flow does not call it.
func (m *Map) All() (map[string]uint32, error) {
	return m.store.AllTradeIndices()
}
