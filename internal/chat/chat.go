// Package chat implements the two-layer peer-to-peer chat envelope (spec
// §4.E): no seal layer, encrypted and routed to the ECDH shared public key
// so neither the coordinator nor relays can link the traffic to either
// party's trade key.
package chat

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/mostro-trade/mostro-client/internal/cryptoutil"
	"github.com/mostro-trade/mostro-client/internal/relayevent"
)

const (
	// KindChat is the inner (pre-wrap) event kind for a chat line.
	KindChat = 1
	// KindChatWrap is the outer wrap event kind.
	KindChatWrap = 1059

	tweakMin = 60 * time.Second
	tweakMax = 48 * time.Hour
)

// SharedIdentity derives the routing/encryption keypair shared by both trade
// parties (spec §3 "ECDH shared identity"): shared_secret = x(mine_priv ×
// theirs_pub), treated as the private scalar of a new keypair whose public
// half, shared_pubkey = G·shared_secret, is the actual routing target. Both
// sides derive the identical keypair from their own private key and the
// other's public key, since shared_secret is symmetric
// (x(a·B) = x(b·A)).
func SharedIdentity(mine *btcec.PrivateKey, theirs [32]byte) (*btcec.PrivateKey, error) {
	theirPub, err := cryptoutil.ParseXOnly(theirs)
	if err != nil {
		return nil, fmt.Errorf("parse peer trade pubkey: %w", err)
	}
	secret := cryptoutil.SharedX(mine, theirPub)
	sharedPriv, _ := btcec.PrivKeyFromBytes(secret[:])
	return sharedPriv, nil
}

// SharedPubKey returns the x-only routing pubkey for a shared identity
// keypair derived by SharedIdentity.
func SharedPubKey(shared *btcec.PrivateKey) [32]byte {
	return cryptoutil.XOnlyPubKey(shared)
}

// Inbound is a verified, decrypted chat line ready for display.
type Inbound struct {
	Text      string
	Author    [32]byte // the sender's trade pubkey, from the inner event's signer
	CreatedAt int64
}

// Build constructs the two-layer envelope for one outgoing chat line: an
// inner signed event authored by the sender's trade key, then a single
// encrypted wrap addressed to the shared pubkey.
func Build(sender *btcec.PrivateKey, shared [32]byte, text string) (*relayevent.Event, error) {
	inner, err := relayevent.Finalize(relayevent.Unsigned{
		PubKey:    cryptoutil.XOnlyPubKey(sender),
		CreatedAt: time.Now().Unix(),
		Kind:      KindChat,
		Tags:      []relayevent.Tag{{"p", hex.EncodeToString(shared[:])}},
		Content:   text,
	}, sender)
	if err != nil {
		return nil, fmt.Errorf("finalize inner chat event: %w", err)
	}
	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("marshal inner chat event: %w", err)
	}

	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral wrap key: %w", err)
	}
	convKey, err := cryptoutil.ConversationKey(ephemeral, shared)
	if err != nil {
		return nil, fmt.Errorf("derive wrap conversation key: %w", err)
	}
	ciphertext, err := cryptoutil.Encrypt(convKey, string(innerJSON))
	if err != nil {
		return nil, fmt.Errorf("encrypt chat wrap: %w", err)
	}

	wrap, err := relayevent.Finalize(relayevent.Unsigned{
		PubKey:    cryptoutil.XOnlyPubKey(ephemeral),
		CreatedAt: tweakedTimestamp(),
		Kind:      KindChatWrap,
		Tags:      []relayevent.Tag{{"p", hex.EncodeToString(shared[:])}},
		Content:   ciphertext,
	}, ephemeral)
	if err != nil {
		return nil, fmt.Errorf("finalize chat wrap: %w", err)
	}
	return wrap, nil
}

// Open unwraps a fetched chat wrap addressed to the caller's shared pubkey.
// shared is the shared identity keypair derived via SharedIdentity, not the
// caller's trade key: decryption is an ECDH between the shared identity's
// private scalar and the wrap's ephemeral pubkey, symmetric with the
// ephemeral-to-shared-pubkey ECDH Build performed when sending. The inner
// event's signature is verified before the line is accepted; invalid
// signatures are reported as an error so the caller drops the event (spec
// §4.E "receive-side must verify before accepting").
func Open(shared *btcec.PrivateKey, wrap *relayevent.Event) (*Inbound, error) {
	wrapSignerXOnly, err := xOnlyFromHex(wrap.PubKey)
	if err != nil {
		return nil, fmt.Errorf("parse wrap signer: %w", err)
	}

	convKey, err := cryptoutil.ConversationKey(shared, wrapSignerXOnly)
	if err != nil {
		return nil, fmt.Errorf("derive wrap conversation key: %w", err)
	}
	innerJSON, err := cryptoutil.Decrypt(convKey, wrap.Content)
	if err != nil {
		return nil, fmt.Errorf("decrypt chat wrap: %w", err)
	}

	var inner relayevent.Event
	if err := json.Unmarshal([]byte(innerJSON), &inner); err != nil {
		return nil, fmt.Errorf("parse inner chat event: %w", err)
	}
	if !relayevent.Verify(&inner) {
		return nil, fmt.Errorf("inner chat event failed signature verification")
	}

	authorXOnly, err := xOnlyFromHex(inner.PubKey)
	if err != nil {
		return nil, fmt.Errorf("parse chat author: %w", err)
	}
	return &Inbound{
		Text:      inner.Content,
		Author:    authorXOnly,
		CreatedAt: inner.CreatedAt,
	}, nil
}

func xOnlyFromHex(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("invalid x-only pubkey encoding")
	}
	copy(out[:], raw)
	return out, nil
}

// tweakedTimestamp mirrors the gift-wrap envelope's timestamp randomization
// (spec §4.D step 5) so chat wraps are equally resistant to traffic
// correlation by creation time.
func tweakedTimestamp() int64 {
	now := time.Now()
	spread := int64(tweakMax - tweakMin)
	n, err := rand.Int(rand.Reader, big.NewInt(spread))
	offset := tweakMin
	if err == nil {
		offset += time.Duration(n.Int64())
	}
	return now.Add(-offset).Unix()
}
