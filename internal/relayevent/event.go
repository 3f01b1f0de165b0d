// Package relayevent implements the canonical relay event record (spec §3, §4.C):
// an immutable, content-addressed, Schnorr-signed tuple used for every layer of
// the gift-wrap and chat envelopes.
package relayevent

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/mostro-trade/mostro-client/internal/cryptoutil"
)

// Tag is a single relay tag, e.g. ["p", "<pubkey>"].
type Tag []string

// Event is the canonical relay event tuple (spec §3): id, signer public key,
// kind, creation time, tags, content, signature.
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"` // hex x-only public key of the signer
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig"`
}

// Unsigned is an event before id/signature computation — the shape of a rumor,
// or of a seal/wrap prior to Finalize.
type Unsigned struct {
	PubKey    [32]byte
	CreatedAt int64
	Kind      int
	Tags      []Tag
	Content   string
}

// canonicalSerialization builds the NIP-01 canonical array used for both the
// event id hash and, implicitly, signature verification:
// [0, pubkey, created_at, kind, tags, content].
func canonicalSerialization(u Unsigned) ([]byte, error) {
	arr := []interface{}{
		0,
		hex.EncodeToString(u.PubKey[:]),
		u.CreatedAt,
		u.Kind,
		tagsOrEmpty(u.Tags),
		u.Content,
	}
	data, err := json.Marshal(arr)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical event: %w", err)
	}
	return data, nil
}

func tagsOrEmpty(tags []Tag) []Tag {
	if tags == nil {
		return []Tag{}
	}
	return tags
}

// ID computes the SHA-256 of the canonical serialization, hex-encoded.
func ID(u Unsigned) (string, [32]byte, error) {
	canonical, err := canonicalSerialization(u)
	if err != nil {
		return "", [32]byte{}, err
	}
	hash := cryptoutil.Sha256(canonical)
	return hex.EncodeToString(hash[:]), hash, nil
}

// Finalize computes the id and Schnorr-signs it with priv, producing a
// complete, network-ready Event.
func Finalize(u Unsigned, priv *btcec.PrivateKey) (*Event, error) {
	idHex, idHash, err := ID(u)
	if err != nil {
		return nil, err
	}
	sig, err := cryptoutil.Sign(priv, idHash)
	if err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	return &Event{
		ID:        idHex,
		PubKey:    hex.EncodeToString(u.PubKey[:]),
		CreatedAt: u.CreatedAt,
		Kind:      u.Kind,
		Tags:      tagsOrEmpty(u.Tags),
		Content:   u.Content,
		Sig:       hex.EncodeToString(sig[:]),
	}, nil
}

// Verify checks that an event's id matches its canonical serialization and
// that its signature is valid for its declared signer (spec §3, §8 "Relay
// event integrity").
func Verify(e *Event) bool {
	pubBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return false
	}
	var xOnly [32]byte
	copy(xOnly[:], pubBytes)

	wantID, idHash, err := ID(Unsigned{
		PubKey:    xOnly,
		CreatedAt: e.CreatedAt,
		Kind:      e.Kind,
		Tags:      e.Tags,
		Content:   e.Content,
	})
	if err != nil || wantID != e.ID {
		return false
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil || len(sigBytes) != 64 {
		return false
	}
	var sig [64]byte
	copy(sig[:], sigBytes)

	return cryptoutil.Verify(sig, idHash, xOnly)
}

// FindTag returns the first value of the first tag with the given name, and
// whether one was found.
func (e *Event) FindTag(name string) (string, bool) {
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

// FindTagValues returns every value (index >= 1) across all tags with the
// given name, preserving order — used for multi-value tags like "pm".
func (e *Event) FindTagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if len(t) >= 2 && t[0] == name {
			out = append(out, t[1:]...)
		}
	}
	return out
}
