package store

import (
	"testing"
	"time"
)

func TestRecordAndLookupTradeIndex(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	if _, ok, err := s.LookupTradeIndex("order-1"); err != nil || ok {
		t.Fatalf("expected no mapping yet, got ok=%v err=%v", ok, err)
	}
	if err := s.RecordTradeIndex("order-1", 3); err != nil {
		t.Fatalf("record: %v", err)
	}
	index, ok, err := s.LookupTradeIndex("order-1")
	if err != nil || !ok || index != 3 {
		t.Fatalf("unexpected lookup result: index=%d ok=%v err=%v", index, ok, err)
	}

	// Updating overwrites rather than erroring.
	if err := s.RecordTradeIndex("order-1", 4); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	index, _, _ = s.LookupTradeIndex("order-1")
	if index != 4 {
		t.Fatalf("expected updated index 4, got %d", index)
	}
}

func TestAllTradeIndices(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	_ = s.RecordTradeIndex("order-1", 1)
	_ = s.RecordTradeIndex("order-2", 2)

	all, err := s.AllTradeIndices()
	if err != nil {
		t.Fatalf("all trade indices: %v", err)
	}
	if len(all) != 2 || all["order-1"] != 1 || all["order-2"] != 2 {
		t.Fatalf("unexpected map: %+v", all)
	}
}

func TestCacheAndListOrderEvents(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	if err := s.CacheOrderEvent("evt-1", []byte(`{"id":"evt-1"}`)); err != nil {
		t.Fatalf("cache event: %v", err)
	}
	events, err := s.CachedOrderEvents(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 cached event, got %d", len(events))
	}
}

func TestTradeStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	state, err := LoadOrCreateTradeState(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.NextTradeIndex != 1 {
		t.Fatalf("expected fresh state to start at index 1")
	}

	now := time.Now()
	state.RecordTrade(now, 50000)
	state.NextTradeIndex = 2
	if err := state.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := LoadOrCreateTradeState(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.NextTradeIndex != 2 {
		t.Fatalf("expected reloaded next index 2, got %d", reloaded.NextTradeIndex)
	}
	if reloaded.TodayVolume(now) != 50000 || reloaded.TodayTrades(now) != 1 {
		t.Fatalf("unexpected counters: volume=%d trades=%d", reloaded.TodayVolume(now), reloaded.TodayTrades(now))
	}
}

func TestTradeStatePrunesOldEntries(t *testing.T) {
	state := NewTradeState()
	old := time.Now().AddDate(0, 0, -10)
	state.RecordTrade(old, 1000)
	state.RecordTrade(time.Now(), 2000)

	if len(state.DailyVolumeSats) != 1 {
		t.Fatalf("expected old entry pruned, got %d entries", len(state.DailyVolumeSats))
	}
}

func TestAppendAudit(t *testing.T) {
	dir := t.TempDir()
	entry := AuditEntry{Timestamp: time.Now(), Action: "release", OrderID: "order-1", Result: AuditSuccess}
	if err := AppendAudit(dir, entry); err != nil {
		t.Fatalf("append audit: %v", err)
	}
	if err := AppendAudit(dir, entry); err != nil {
		t.Fatalf("append audit again: %v", err)
	}
}
