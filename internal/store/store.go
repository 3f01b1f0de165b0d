// Package store holds the client's persisted runtime state: a SQLite-backed
// order→trade-index map and order-book event cache (adapted from the
// teacher's internal/storage package), a JSON trade-state file, and an
// append-only audit journal.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the client's SQLite cache database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (creating if necessary) mostro.db under dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "mostro.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trade_index_map (
		order_id TEXT PRIMARY KEY,
		trade_index INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS order_events (
		id TEXT PRIMARY KEY,
		event_json TEXT NOT NULL,
		cached_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_order_events_cached_at ON order_events(cached_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordTradeIndex persists the trade-key index used for orderID, resolving
// the §9 "fallback to index 1" limitation for any order this client records
// (see internal/tradeindex).
func (s *Store) RecordTradeIndex(orderID string, index uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO trade_index_map (order_id, trade_index, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(order_id) DO UPDATE SET trade_index = excluded.trade_index, updated_at = excluded.updated_at`,
		orderID, index, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("record trade index: %w", err)
	}
	return nil
}

// LookupTradeIndex returns the trade-key index previously recorded for
// orderID, if any.
func (s *Store) LookupTradeIndex(orderID string) (uint32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var index uint32
	err := s.db.QueryRow(`SELECT trade_index FROM trade_index_map WHERE order_id = ?`, orderID).Scan(&index)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup trade index: %w", err)
	}
	return index, true, nil
}

// AllTradeIndices returns every recorded order_id -> trade_index mapping.
// The engine's restore-session flow does not call it; it queries only the
// trade key at the coordinator's last index.
func (s *Store) AllTradeIndices() (map[string]uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT order_id, trade_index FROM trade_index_map`)
	if err != nil {
		return nil, fmt.Errorf("list trade indices: %w", err)
	}
	defer rows.Close()

	out := map[string]uint32{}
	for rows.Next() {
		var orderID string
		var index uint32
		if err := rows.Scan(&orderID, &index); err != nil {
			return nil, fmt.Errorf("scan trade index row: %w", err)
		}
		out[orderID] = index
	}
	return out, rows.Err()
}

// CacheOrderEvent stores the raw JSON of a public order-book event, keyed by
// its event id, for offline browsing between relay queries.
func (s *Store) CacheOrderEvent(id string, eventJSON []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO order_events (id, event_json, cached_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET event_json = excluded.event_json, cached_at = excluded.cached_at`,
		id, string(eventJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache order event: %w", err)
	}
	return nil
}

// CachedOrderEvents returns every cached order event's raw JSON newer than
// since.
func (s *Store) CachedOrderEvents(since time.Time) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT event_json FROM order_events WHERE cached_at >= ?`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("list cached order events: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan cached order event: %w", err)
		}
		out = append(out, []byte(raw))
	}
	return out, rows.Err()
}
