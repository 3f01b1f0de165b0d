package mostro

import (
	"encoding/json"
	"testing"
	"time"
)

func int64p(v int64) *int64 { return &v }

func TestNewOrderMarshalRoundTrip(t *testing.T) {
	reqID, err := NewRequestID()
	if err != nil {
		t.Fatalf("new request id: %v", err)
	}
	msg := BuildNewOrder(reqID, NewOrderInput{
		Kind:          KindSell,
		FiatCode:      "usd",
		Amount:        0,
		FiatAmount:    100,
		PaymentMethod: "zelle",
	})

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Category != CategoryOrder || decoded.Kind.Action != ActionNewOrder {
		t.Fatalf("unexpected decoded envelope: %+v", decoded)
	}
	if decoded.Kind.Payload.Order == nil {
		t.Fatalf("expected order payload")
	}
	if decoded.Kind.Payload.Order.FiatCode != "USD" {
		t.Fatalf("expected upper-cased fiat code, got %q", decoded.Kind.Payload.Order.FiatCode)
	}
	if *decoded.Kind.Payload.Order.Status != StatusPending {
		t.Fatalf("expected pending status")
	}
}

func TestRangeOrderTakePayloadVariants(t *testing.T) {
	reqID := uint64(1)
	orderID := "order-123"
	rangeOrder := SmallOrder{
		Kind:      KindSell,
		MinAmount: int64p(10),
		MaxAmount: int64p(100),
	}

	// With invoice + amount: payment_request carries the amount.
	withInvoice := BuildTakeSell(reqID, orderID, 2, rangeOrder, "lnbc1...", int64p(50))
	if withInvoice.Kind.Payload.PaymentRequest == nil {
		t.Fatalf("expected payment_request payload")
	}
	if withInvoice.Kind.Payload.PaymentRequest.Invoice != "lnbc1..." {
		t.Fatalf("unexpected invoice: %q", withInvoice.Kind.Payload.PaymentRequest.Invoice)
	}
	if withInvoice.Kind.Payload.PaymentRequest.Amount == nil || *withInvoice.Kind.Payload.PaymentRequest.Amount != 50 {
		t.Fatalf("expected amount 50 inside payment_request")
	}

	// Amount only, no invoice: bare {amount} payload.
	amountOnly := BuildTakeSell(reqID, orderID, 2, rangeOrder, "", int64p(75))
	if amountOnly.Kind.Payload.PaymentRequest != nil {
		t.Fatalf("did not expect payment_request without an invoice")
	}
	if amountOnly.Kind.Payload.Amount == nil || *amountOnly.Kind.Payload.Amount != 75 {
		t.Fatalf("expected bare amount payload of 75")
	}

	// Neither invoice nor amount: no payload at all, coordinator follows up.
	neither := BuildTakeSell(reqID, orderID, 2, rangeOrder, "", nil)
	if !neither.Kind.Payload.isEmpty() {
		t.Fatalf("expected empty payload when neither invoice nor amount supplied")
	}

	data, err := json.Marshal(neither)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var asMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &asMap); err != nil {
		t.Fatalf("unmarshal to map: %v", err)
	}
	var kind MessageKind
	if err := json.Unmarshal(asMap["order"], &kind); err != nil {
		t.Fatalf("decode kind: %v", err)
	}
	if string(asMap["order"]) == "" {
		t.Fatalf("expected order key present")
	}
}

func TestTakeBuyIgnoresAmountForFixedOrder(t *testing.T) {
	fixedOrder := SmallOrder{Kind: KindBuy, FiatAmount: 100}
	msg := BuildTakeBuy(1, "order-1", 3, fixedOrder, int64p(50))
	if msg.Kind.Payload.Amount != nil {
		t.Fatalf("fixed-amount order must not carry a picked amount")
	}
}

func TestUnknownCategoryAndActionTolerance(t *testing.T) {
	raw := []byte(`{"future-category": {"version": 1, "action": "future-action"}}`)
	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("expected tolerant parse, got error: %v", err)
	}
	if msg.Category != CategoryUnknown || msg.Kind.Action != ActionUnknown {
		t.Fatalf("expected unknown category/action, got %+v", msg)
	}
}

func TestKnownCategoryUnknownAction(t *testing.T) {
	raw := []byte(`{"order": {"version": 1, "action": "some-future-action"}}`)
	msg, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Category != CategoryOrder {
		t.Fatalf("expected known category order, got %q", msg.Category)
	}
	if msg.Kind.Action != ActionUnknown {
		t.Fatalf("expected unknown action, got %q", msg.Kind.Action)
	}
}

func TestMatchByRequestID(t *testing.T) {
	reqID := uint64(42)
	release := Message{Category: CategoryOrder, Kind: MessageKind{Action: ActionReleased, RequestID: &reqID}}
	candidates := []Received{
		{Message: &release, ReceivedAt: time.Now().Add(-time.Hour)},
	}
	result, ok := Match(candidates, reqID, ActionReleased, time.Now(), 0)
	if !ok || !result.ByRequestID || result.Stale {
		t.Fatalf("expected fresh exact match regardless of age, got %+v ok=%v", result, ok)
	}
}

func TestMatchFallbackStalenessGuard(t *testing.T) {
	old := Message{Category: CategoryOrder, Kind: MessageKind{Action: ActionReleased}}
	now := time.Now()
	candidates := []Received{
		{Message: &old, ReceivedAt: now.Add(-45 * time.Second)},
	}
	result, ok := Match(candidates, 999, ActionReleased, now, 0)
	if !ok {
		t.Fatalf("expected fallback match")
	}
	if result.ByRequestID {
		t.Fatalf("expected fallback match, not request-id match")
	}
	if !result.Stale {
		t.Fatalf("expected stale warning for a 45s old fallback match")
	}
}

func TestMatchFallbackFreshNoWarning(t *testing.T) {
	recent := Message{Category: CategoryOrder, Kind: MessageKind{Action: ActionReleased}}
	now := time.Now()
	candidates := []Received{
		{Message: &recent, ReceivedAt: now.Add(-5 * time.Second)},
	}
	result, ok := Match(candidates, 999, ActionReleased, now, 0)
	if !ok || result.Stale {
		t.Fatalf("expected fresh fallback match without staleness warning, got %+v", result)
	}
}

func TestMatchNoCandidates(t *testing.T) {
	_, ok := Match(nil, 1, ActionReleased, time.Now(), 0)
	if ok {
		t.Fatalf("expected no match against empty candidate set")
	}
}
