package engine

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/mostro-trade/mostro-client/internal/config"
	"github.com/mostro-trade/mostro-client/internal/giftwrap"
	"github.com/mostro-trade/mostro-client/internal/keys"
	"github.com/mostro-trade/mostro-client/internal/mostro"
	"github.com/mostro-trade/mostro-client/internal/mostroerr"
	"github.com/mostro-trade/mostro-client/internal/oracle"
	"github.com/mostro-trade/mostro-client/internal/relay"
	"github.com/mostro-trade/mostro-client/internal/safety"
	"github.com/mostro-trade/mostro-client/internal/store"
)

// testHarness wires a full Engine against a MockRelay standing in for the
// coordinator, so the publish/poll/correlate cycle can be exercised without
// real network I/O.
type testHarness struct {
	engine      *Engine
	clientKeys  *keys.Hierarchy
	coordinator *keys.Hierarchy
	relayMock   *relay.MockRelay
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	dir := t.TempDir()

	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		t.Fatalf("generate mnemonic: %v", err)
	}
	clientKeys, err := keys.Import(mnemonic)
	if err != nil {
		t.Fatalf("import client keys: %v", err)
	}

	coordinatorMnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		t.Fatalf("generate coordinator mnemonic: %v", err)
	}
	coordinatorKeys, err := keys.Import(coordinatorMnemonic)
	if err != nil {
		t.Fatalf("import coordinator keys: %v", err)
	}
	coordinatorIdentity, err := coordinatorKeys.IdentityKeypair()
	if err != nil {
		t.Fatalf("coordinator identity: %v", err)
	}

	st, err := store.New(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.DataDir = dir
	cfg.MostroPubKey = hex.EncodeToString(coordinatorIdentity.XOnly[:])

	priceOracle := oracle.New("http://127.0.0.1:0")
	env := safety.New(cfg, dir, priceOracle)

	mockRelay := relay.NewMockRelay("wss://mock")
	pool := relay.NewPoolFromRelays([]relay.Relay{mockRelay})

	eng, err := New(cfg, clientKeys, pool, env, priceOracle, st, cfg.MostroPubKey)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	eng.pollDelay = 50 * time.Millisecond

	return &testHarness{engine: eng, clientKeys: clientKeys, coordinator: coordinatorKeys, relayMock: mockRelay}
}

// seedReply builds a gift-wrap envelope from the coordinator back to the
// client's trade key and seeds it directly into the mock relay, as if the
// coordinator had already published its reply.
func (h *testHarness) seedReply(t *testing.T, clientTradeXOnly [32]byte, reply mostro.Message) {
	t.Helper()
	coordinatorTrade, err := h.coordinator.TradeKeypair(1)
	if err != nil {
		t.Fatalf("coordinator trade key: %v", err)
	}
	wrap, err := giftwrap.Build(giftwrap.DefaultConfig(), clientTradeXOnly, reply, coordinatorTrade.Private, nil)
	if err != nil {
		t.Fatalf("build reply wrap: %v", err)
	}
	h.relayMock.Seed(wrap)
}

func TestCreateOrderHappyPath(t *testing.T) {
	h := newTestHarness(t)

	nextIndex := h.clientKeys.CurrentTradeIndex()
	clientTrade, err := h.clientKeys.TradeKeypair(nextIndex)
	if err != nil {
		t.Fatalf("peek trade key: %v", err)
	}

	// Seed the reply shortly after Create starts, within the engine's poll
	// delay: the engine derives the same trade index deterministically, so we
	// know which key to reply to.
	orderID := "order-123"
	go func() {
		time.Sleep(10 * time.Millisecond)
		reply := mostro.Message{
			Category: mostro.CategoryOrder,
			Kind: mostro.MessageKind{
				Version: mostro.ProtocolVersion,
				ID:      &orderID,
				Action:  mostro.ActionNewOrder,
			},
		}
		h.seedReply(t, clientTrade.XOnly, reply)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	outcome, err := h.engine.CreateOrder(ctx, mostro.NewOrderInput{
		Kind:       mostro.KindSell,
		FiatCode:   "usd",
		Amount:     100_000,
		FiatAmount: 50,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if outcome.OrderID != orderID {
		t.Fatalf("expected order id %q, got %q", orderID, outcome.OrderID)
	}
	if outcome.Action != mostro.ActionNewOrder {
		t.Fatalf("expected new-order action, got %v", outcome.Action)
	}
}

func TestCreateOrderRejectedBySafetyLimit(t *testing.T) {
	h := newTestHarness(t)
	h.engine.cfg.Limits.MaxTradeAmountSats = 1000
	// safety.New copies the limits, so rebuild the envelope to apply the new one.
	h.engine.safety = safety.New(h.engine.cfg, h.engine.cfg.DataDir, h.engine.oracle)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := h.engine.CreateOrder(ctx, mostro.NewOrderInput{
		Kind:   mostro.KindSell,
		Amount: 1_000_000,
	})
	if mostroerr.Of(err) != mostroerr.LimitExceeded {
		t.Fatalf("expected LimitExceeded rejection, got %v", err)
	}
}

func TestCreateOrderTimesOutWithoutReply(t *testing.T) {
	h := newTestHarness(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := h.engine.CreateOrder(ctx, mostro.NewOrderInput{
		Kind:   mostro.KindSell,
		Amount: 100_000,
	})
	if err == nil {
		t.Fatalf("expected a timeout error with no seeded reply")
	}
}

func TestCancelFallsBackToIndexOneWithoutTrackedOrder(t *testing.T) {
	h := newTestHarness(t)

	untracked, err := h.clientKeys.TradeKeypair(1)
	if err != nil {
		t.Fatalf("trade key 1: %v", err)
	}

	orderID := "untracked-order"
	go func() {
		time.Sleep(10 * time.Millisecond)
		reply := mostro.Message{
			Category: mostro.CategoryOrder,
			Kind: mostro.MessageKind{
				Version: mostro.ProtocolVersion,
				ID:      &orderID,
				Action:  mostro.ActionCanceled,
			},
		}
		h.seedReply(t, untracked.XOnly, reply)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	outcome, err := h.engine.Cancel(ctx, orderID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if outcome.Action != mostro.ActionCanceled {
		t.Fatalf("expected canceled action, got %v", outcome.Action)
	}
}
