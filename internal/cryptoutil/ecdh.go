// Package cryptoutil implements the crypto primitives component (spec §4.B):
// ECDH-derived conversation keys, NIP-44 authenticated symmetric encryption, and
// Schnorr sign/verify over secp256k1 x-only keys.
package cryptoutil

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// SharedX computes the X coordinate of the ECDH shared point priv*pub, the raw
// input to the NIP-44 conversation-key KDF. Grounded on the teacher's
// deriveSharedSecret pattern (internal/node/crypto.go), adapted from X25519 to
// secp256k1 Jacobian scalar multiplication since Mostro keys are secp256k1/Schnorr.
func SharedX(priv *btcec.PrivateKey, pub *btcec.PublicKey) [32]byte {
	var point secp256k1.JacobianPoint
	pub.AsJacobian(&point)

	var result secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&priv.Key, &point, &result)
	result.ToAffine()

	var out [32]byte
	xBytes := result.X.Bytes()
	copy(out[:], xBytes[:])
	return out
}

// SharedSecret is symmetric: compute_shared(a_priv, B_pub) == compute_shared(b_priv, A_pub).
func SharedSecret(priv *btcec.PrivateKey, xOnlyPub [32]byte) ([32]byte, error) {
	pub, err := ParseXOnly(xOnlyPub)
	if err != nil {
		return [32]byte{}, err
	}
	return SharedX(priv, pub), nil
}
