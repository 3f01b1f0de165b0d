package chat

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/mostro-trade/mostro-client/internal/cryptoutil"
	"github.com/mostro-trade/mostro-client/internal/relayevent"
)

func mustPriv(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func TestSharedIdentitySymmetric(t *testing.T) {
	alice := mustPriv(t)
	bob := mustPriv(t)

	fromAlice, err := SharedIdentity(alice, cryptoutil.XOnlyPubKey(bob))
	if err != nil {
		t.Fatalf("alice shared identity: %v", err)
	}
	fromBob, err := SharedIdentity(bob, cryptoutil.XOnlyPubKey(alice))
	if err != nil {
		t.Fatalf("bob shared identity: %v", err)
	}
	if SharedPubKey(fromAlice) != SharedPubKey(fromBob) {
		t.Fatalf("shared pubkeys diverge: %x vs %x", SharedPubKey(fromAlice), SharedPubKey(fromBob))
	}
}

func TestBuildOpenRoundTrip(t *testing.T) {
	alice := mustPriv(t)
	bob := mustPriv(t)

	aliceShared, err := SharedIdentity(alice, cryptoutil.XOnlyPubKey(bob))
	if err != nil {
		t.Fatalf("alice shared identity: %v", err)
	}
	bobShared, err := SharedIdentity(bob, cryptoutil.XOnlyPubKey(alice))
	if err != nil {
		t.Fatalf("bob shared identity: %v", err)
	}

	wrap, err := Build(alice, SharedPubKey(aliceShared), "hola, ya envie el pago")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	inbound, err := Open(bobShared, wrap)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if inbound.Text != "hola, ya envie el pago" {
		t.Fatalf("unexpected text: %q", inbound.Text)
	}
	if inbound.Author != cryptoutil.XOnlyPubKey(alice) {
		t.Fatalf("author mismatch")
	}
}

func TestTamperedInnerEventFailsVerification(t *testing.T) {
	alice := mustPriv(t)

	inner, err := relayevent.Finalize(relayevent.Unsigned{
		PubKey:  cryptoutil.XOnlyPubKey(alice),
		Kind:    KindChat,
		Content: "original",
	}, alice)
	if err != nil {
		t.Fatalf("finalize inner: %v", err)
	}
	inner.Content = "tampered"
	if relayevent.Verify(inner) {
		t.Fatalf("expected tampered inner event to fail verification directly")
	}
}

func TestOpenFailsForWrongSharedKey(t *testing.T) {
	alice := mustPriv(t)
	bob := mustPriv(t)
	mallory := mustPriv(t)

	aliceShared, err := SharedIdentity(alice, cryptoutil.XOnlyPubKey(bob))
	if err != nil {
		t.Fatalf("alice shared identity: %v", err)
	}
	wrap, err := Build(alice, SharedPubKey(aliceShared), "secret")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	malloryShared, err := SharedIdentity(mallory, cryptoutil.XOnlyPubKey(bob))
	if err != nil {
		t.Fatalf("mallory shared identity: %v", err)
	}
	if _, err := Open(malloryShared, wrap); err == nil {
		t.Fatalf("expected open to fail for a non-party shared identity")
	}
}
