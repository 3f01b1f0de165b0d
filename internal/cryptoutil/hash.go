package cryptoutil

import "crypto/sha256"

// Sha256 hashes data with SHA-256, used both for event ids and for the inner
// message-hash signed by trade keys (spec §3, §4.D).
func Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
