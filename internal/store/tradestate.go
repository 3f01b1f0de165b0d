package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TradeState is the small piece of mutable state kept across restarts: a
// next trade-key index field and the rolling daily counters the Safety
// Envelope reads (spec §3 "Trade-index cursor", "Daily counters").
// NextTradeIndex is stored and reloaded here, but keys.Hierarchy neither
// reads nor writes it; the hierarchy's cursor starts at 1 on each start.
type TradeState struct {
	NextTradeIndex  uint32           `json:"next_trade_index"`
	DailyVolumeSats map[string]int64 `json:"daily_volume"`
	DailyTrades     map[string]int   `json:"daily_trades"`
	LastTradeAt     time.Time        `json:"last_trade_at"`
}

// NewTradeState returns an empty state starting at trade index 1 (index 0 is
// reserved for the identity key).
func NewTradeState() *TradeState {
	return &TradeState{
		NextTradeIndex:  1,
		DailyVolumeSats: map[string]int64{},
		DailyTrades:     map[string]int{},
	}
}

// LoadOrCreateTradeState reads trade-state.json from dataDir, creating an
// empty one if absent.
func LoadOrCreateTradeState(dataDir string) (*TradeState, error) {
	path := tradeStatePath(dataDir)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		state := NewTradeState()
		if err := state.Save(dataDir); err != nil {
			return nil, err
		}
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read trade state: %w", err)
	}
	var state TradeState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse trade state: %w", err)
	}
	if state.DailyVolumeSats == nil {
		state.DailyVolumeSats = map[string]int64{}
	}
	if state.DailyTrades == nil {
		state.DailyTrades = map[string]int{}
	}
	return &state, nil
}

// Save persists the trade state, owner-only permissions.
func (s *TradeState) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trade state: %w", err)
	}
	if err := os.WriteFile(tradeStatePath(dataDir), data, 0600); err != nil {
		return fmt.Errorf("write trade state: %w", err)
	}
	return nil
}

// PruneOlderThan removes daily counter entries older than cutoff (spec §3:
// "entries older than 7 days are garbage-collected on write").
func (s *TradeState) PruneOlderThan(cutoff time.Time) {
	cutoffDate := cutoff.Format("2006-01-02")
	for date := range s.DailyVolumeSats {
		if date < cutoffDate {
			delete(s.DailyVolumeSats, date)
		}
	}
	for date := range s.DailyTrades {
		if date < cutoffDate {
			delete(s.DailyTrades, date)
		}
	}
}

// RecordTrade adds sats to today's volume counter and increments today's
// trade count, pruning entries older than 7 days.
func (s *TradeState) RecordTrade(now time.Time, sats int64) {
	s.PruneOlderThan(now.AddDate(0, 0, -7))
	date := now.Format("2006-01-02")
	s.DailyVolumeSats[date] += sats
	s.DailyTrades[date]++
	s.LastTradeAt = now
}

// TodayVolume and TodayTrades report the rolling counters for now's date.
func (s *TradeState) TodayVolume(now time.Time) int64 {
	return s.DailyVolumeSats[now.Format("2006-01-02")]
}

func (s *TradeState) TodayTrades(now time.Time) int {
	return s.DailyTrades[now.Format("2006-01-02")]
}

func tradeStatePath(dataDir string) string {
	return filepath.Join(dataDir, "trade-state.json")
}
