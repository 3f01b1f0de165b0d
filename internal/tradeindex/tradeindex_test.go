package tradeindex

import (
	"testing"

	"github.com/mostro-trade/mostro-client/internal/store"
)

func TestRecordAndLookup(t *testing.T) {
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	m := New(s)
	if _, ok, err := m.Lookup("order-1"); err != nil || ok {
		t.Fatalf("expected no mapping yet")
	}
	if err := m.Record("order-1", 5); err != nil {
		t.Fatalf("record: %v", err)
	}
	index, ok, err := m.Lookup("order-1")
	if err != nil || !ok || index != 5 {
		t.Fatalf("unexpected lookup: index=%d ok=%v err=%v", index, ok, err)
	}
}

func TestAll(t *testing.T) {
	s, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()

	m := New(s)
	_ = m.Record("order-1", 1)
	_ = m.Record("order-2", 2)
	all, err := m.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
}
