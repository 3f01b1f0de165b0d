package cryptoutil

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// XOnlyPubKey returns the 32-byte x-only Schnorr public key for priv: the
// SEC-compressed form with the leading parity byte stripped (spec §3).
func XOnlyPubKey(priv *btcec.PrivateKey) [32]byte {
	var out [32]byte
	copy(out[:], priv.PubKey().SerializeCompressed()[1:])
	return out
}

// ParseXOnly parses a 32-byte x-only public key into a full curve point with
// even Y, per BIP340.
func ParseXOnly(xOnly [32]byte) (*btcec.PublicKey, error) {
	pub, err := schnorr.ParsePubKey(xOnly[:])
	if err != nil {
		return nil, fmt.Errorf("parse x-only pubkey: %w", err)
	}
	return pub, nil
}

// Sign produces a BIP340 Schnorr signature over a 32-byte message hash.
func Sign(priv *btcec.PrivateKey, hash [32]byte) ([64]byte, error) {
	sig, err := schnorr.Sign(priv, hash[:])
	if err != nil {
		return [64]byte{}, fmt.Errorf("schnorr sign: %w", err)
	}
	var out [64]byte
	copy(out[:], sig.Serialize())
	return out, nil
}

// Verify checks a BIP340 Schnorr signature against a 32-byte message hash and
// an x-only public key.
func Verify(sig [64]byte, hash [32]byte, xOnlyPub [32]byte) bool {
	pub, err := ParseXOnly(xOnlyPub)
	if err != nil {
		return false
	}
	parsed, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	return parsed.Verify(hash[:], pub)
}
