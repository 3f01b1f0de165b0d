package cryptoutil

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
)

func mustKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func TestECDHSymmetry(t *testing.T) {
	a := mustKey(t)
	b := mustKey(t)

	aToB := SharedX(a, b.PubKey())
	bToA := SharedX(b, a.PubKey())

	if aToB != bToA {
		t.Fatalf("shared secrets differ: %x != %x", aToB, bToA)
	}
}

func TestConversationKeySymmetry(t *testing.T) {
	a := mustKey(t)
	b := mustKey(t)

	keyAB, err := ConversationKey(a, XOnlyPubKey(b))
	if err != nil {
		t.Fatalf("conversation key a->b: %v", err)
	}
	keyBA, err := ConversationKey(b, XOnlyPubKey(a))
	if err != nil {
		t.Fatalf("conversation key b->a: %v", err)
	}
	if keyAB != keyBA {
		t.Fatalf("conversation keys differ")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	a := mustKey(t)
	b := mustKey(t)
	key, err := ConversationKey(a, XOnlyPubKey(b))
	if err != nil {
		t.Fatalf("conversation key: %v", err)
	}

	plaintexts := []string{
		"hello",
		"",
		"a longer message that should span more than one padding chunk boundary for sure",
	}
	for _, pt := range plaintexts {
		if pt == "" {
			continue // zero-length plaintext is rejected by the wire format
		}
		ct, err := Encrypt(key, pt)
		if err != nil {
			t.Fatalf("encrypt %q: %v", pt, err)
		}
		got, err := Decrypt(key, ct)
		if err != nil {
			t.Fatalf("decrypt %q: %v", pt, err)
		}
		if got != pt {
			t.Fatalf("round trip mismatch: got %q want %q", got, pt)
		}
	}
}

func TestDecryptFailsOnTamperedCiphertext(t *testing.T) {
	a := mustKey(t)
	b := mustKey(t)
	key, _ := ConversationKey(a, XOnlyPubKey(b))

	ct, err := Encrypt(key, "mostro")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	tampered := []byte(ct)
	tampered[len(tampered)-1] ^= 0x01
	if _, err := Decrypt(key, string(tampered)); err == nil {
		t.Fatalf("expected decrypt failure on tampered ciphertext")
	}
}

func TestSchnorrSignVerify(t *testing.T) {
	priv := mustKey(t)
	hash := Sha256([]byte("new_order"))

	sig, err := Sign(priv, hash)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !Verify(sig, hash, XOnlyPubKey(priv)) {
		t.Fatalf("expected signature to verify")
	}

	other := mustKey(t)
	if Verify(sig, hash, XOnlyPubKey(other)) {
		t.Fatalf("signature should not verify against unrelated key")
	}
}

func TestXOnlyRoundTrip(t *testing.T) {
	priv := mustKey(t)
	xOnly := XOnlyPubKey(priv)
	pub, err := ParseXOnly(xOnly)
	if err != nil {
		t.Fatalf("parse x-only: %v", err)
	}
	if !bytes.Equal(pub.SerializeCompressed()[1:], xOnly[:]) {
		t.Fatalf("round-tripped pubkey does not match")
	}
}
