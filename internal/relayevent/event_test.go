package relayevent

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/mostro-trade/mostro-client/internal/cryptoutil"
)

func TestFinalizeAndVerify(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	u := Unsigned{
		PubKey:    cryptoutil.XOnlyPubKey(priv),
		CreatedAt: time.Now().Unix(),
		Kind:      1,
		Tags:      []Tag{{"p", "deadbeef"}},
		Content:   "hello mostro",
	}

	e, err := Finalize(u, priv)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !Verify(e) {
		t.Fatalf("expected finalized event to verify")
	}
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	u := Unsigned{
		PubKey:    cryptoutil.XOnlyPubKey(priv),
		CreatedAt: 1700000000,
		Kind:      1,
		Content:   "original",
	}
	e, err := Finalize(u, priv)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	e.Content = "tampered"
	if Verify(e) {
		t.Fatalf("expected tampered event to fail verification")
	}
}

func TestIdempotentID(t *testing.T) {
	priv, _ := btcec.NewPrivateKey()
	u := Unsigned{
		PubKey:    cryptoutil.XOnlyPubKey(priv),
		CreatedAt: 1700000000,
		Kind:      1,
		Tags:      []Tag{{"d", "order-1"}},
		Content:   "x",
	}
	id1, _, err := ID(u)
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	id2, _, err := ID(u)
	if err != nil {
		t.Fatalf("id: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("event id not deterministic")
	}
}

func TestFindTag(t *testing.T) {
	e := &Event{Tags: []Tag{{"d", "order-1"}, {"pm", "zelle", "wise"}}}
	if v, ok := e.FindTag("d"); !ok || v != "order-1" {
		t.Fatalf("unexpected FindTag result: %q %v", v, ok)
	}
	if v, ok := e.FindTag("missing"); ok || v != "" {
		t.Fatalf("expected missing tag to be absent")
	}
	vals := e.FindTagValues("pm")
	if len(vals) != 2 || vals[0] != "zelle" || vals[1] != "wise" {
		t.Fatalf("unexpected multi-value tag result: %v", vals)
	}
}
