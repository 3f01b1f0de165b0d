// Package giftwrap implements the three-layer rumor→seal→wrap envelope used
// for all client↔coordinator traffic (spec §4.D): an unsigned inner rumor,
// a signed seal binding either the identity or a trade key, and an outer
// wrap signed by a single-use ephemeral key and addressed to the recipient.
package giftwrap

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/mostro-trade/mostro-client/internal/cryptoutil"
	"github.com/mostro-trade/mostro-client/internal/mostro"
	"github.com/mostro-trade/mostro-client/internal/relayevent"
)

const (
	// KindRumor is the unsigned inner event kind.
	KindRumor = 1
	// DefaultSealKind and DefaultWrapKind follow the relay ecosystem's
	// gift-wrap convention (seal / wrap kinds distinguished from ordinary
	// text-note and other event kinds).
	DefaultSealKind = 13
	DefaultWrapKind = 1059

	tweakMin = 60 * time.Second
	tweakMax = 48 * time.Hour
)

// Config selects the seal/wrap event kinds, in case a coordinator deployment
// configures non-default values.
type Config struct {
	SealKind int
	WrapKind int
}

// DefaultConfig returns the standard seal/wrap kinds.
func DefaultConfig() Config {
	return Config{SealKind: DefaultSealKind, WrapKind: DefaultWrapKind}
}

// rumorWire is the JSON shape of an unsigned rumor, persisted as-is inside
// the seal's encrypted content (no id/sig — rumors are never published).
type rumorWire struct {
	PubKey    string          `json:"pubkey"`
	CreatedAt int64           `json:"created_at"`
	Kind      int             `json:"kind"`
	Tags      []relayevent.Tag `json:"tags"`
	Content   string          `json:"content"`
}

// Inbound is a successfully unwrapped message along with its declared
// author's inner signature and the rumor's actual (untweaked) creation
// time, usable as the message's real age for staleness checks.
type Inbound struct {
	Message        mostro.Message
	InnerSig       *[64]byte
	RumorCreatedAt int64
	RumorSigner    [32]byte
}

// Build constructs and signs a complete wrap event ready to publish.
//
// trade is always required (the rumor is authored by the trade key).
// identity, if non-nil, seals in reputation mode — binding the action to the
// user's long-lived identity rather than the ephemeral trade key.
func Build(cfg Config, recipient [32]byte, msg mostro.Message, trade *btcec.PrivateKey, identity *btcec.PrivateKey) (*relayevent.Event, error) {
	msgHash, err := messageHash(msg)
	if err != nil {
		return nil, err
	}
	innerSig, err := cryptoutil.Sign(trade, msgHash)
	if err != nil {
		return nil, fmt.Errorf("sign inner message: %w", err)
	}

	rumorContent, err := serializeRumorContent(msg, &innerSig)
	if err != nil {
		return nil, err
	}
	rumor := rumorWire{
		PubKey:    hex.EncodeToString(cryptoutil.XOnlyPubKey(trade)[:]),
		CreatedAt: time.Now().Unix(),
		Kind:      KindRumor,
		Tags:      []relayevent.Tag{{"p", hex.EncodeToString(recipient[:])}},
		Content:   rumorContent,
	}
	rumorJSON, err := json.Marshal(rumor)
	if err != nil {
		return nil, fmt.Errorf("marshal rumor: %w", err)
	}

	sealKey := trade
	if identity != nil {
		sealKey = identity
	}
	sealConvKey, err := cryptoutil.ConversationKey(sealKey, recipient)
	if err != nil {
		return nil, fmt.Errorf("derive seal conversation key: %w", err)
	}
	sealCiphertext, err := cryptoutil.Encrypt(sealConvKey, string(rumorJSON))
	if err != nil {
		return nil, fmt.Errorf("encrypt seal: %w", err)
	}
	seal, err := relayevent.Finalize(relayevent.Unsigned{
		PubKey:    cryptoutil.XOnlyPubKey(sealKey),
		CreatedAt: tweakedTimestamp(),
		Kind:      cfg.SealKind,
		Content:   sealCiphertext,
	}, sealKey)
	if err != nil {
		return nil, fmt.Errorf("finalize seal: %w", err)
	}
	sealJSON, err := json.Marshal(seal)
	if err != nil {
		return nil, fmt.Errorf("marshal seal: %w", err)
	}

	ephemeral, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral wrap key: %w", err)
	}
	wrapConvKey, err := cryptoutil.ConversationKey(ephemeral, recipient)
	if err != nil {
		return nil, fmt.Errorf("derive wrap conversation key: %w", err)
	}
	wrapCiphertext, err := cryptoutil.Encrypt(wrapConvKey, string(sealJSON))
	if err != nil {
		return nil, fmt.Errorf("encrypt wrap: %w", err)
	}
	wrap, err := relayevent.Finalize(relayevent.Unsigned{
		PubKey:    cryptoutil.XOnlyPubKey(ephemeral),
		CreatedAt: tweakedTimestamp(),
		Kind:      cfg.WrapKind,
		Tags:      []relayevent.Tag{{"p", hex.EncodeToString(recipient[:])}},
		Content:   wrapCiphertext,
	}, ephemeral)
	if err != nil {
		return nil, fmt.Errorf("finalize wrap: %w", err)
	}
	return wrap, nil
}

// Open unwraps a fetched gift-wrap event back into its inner message. Any
// failure at any layer (decryption, parsing) is reported so the caller can
// skip the event silently, per spec §4.D receive step 2/3.
func Open(recipient *btcec.PrivateKey, wrap *relayevent.Event) (*Inbound, error) {
	wrapSignerXOnly, err := xOnlyFromHex(wrap.PubKey)
	if err != nil {
		return nil, fmt.Errorf("parse wrap signer: %w", err)
	}
	wrapConvKey, err := cryptoutil.ConversationKey(recipient, wrapSignerXOnly)
	if err != nil {
		return nil, fmt.Errorf("derive wrap conversation key: %w", err)
	}
	sealJSON, err := cryptoutil.Decrypt(wrapConvKey, wrap.Content)
	if err != nil {
		return nil, fmt.Errorf("decrypt wrap: %w", err)
	}

	var seal relayevent.Event
	if err := json.Unmarshal([]byte(sealJSON), &seal); err != nil {
		return nil, fmt.Errorf("parse seal: %w", err)
	}
	sealSignerXOnly, err := xOnlyFromHex(seal.PubKey)
	if err != nil {
		return nil, fmt.Errorf("parse seal signer: %w", err)
	}
	sealConvKey, err := cryptoutil.ConversationKey(recipient, sealSignerXOnly)
	if err != nil {
		return nil, fmt.Errorf("derive seal conversation key: %w", err)
	}
	rumorJSON, err := cryptoutil.Decrypt(sealConvKey, seal.Content)
	if err != nil {
		return nil, fmt.Errorf("decrypt seal: %w", err)
	}

	var rumor rumorWire
	if err := json.Unmarshal([]byte(rumorJSON), &rumor); err != nil {
		return nil, fmt.Errorf("parse rumor: %w", err)
	}
	msg, innerSig, err := parseRumorContent(rumor.Content)
	if err != nil {
		return nil, fmt.Errorf("parse rumor content: %w", err)
	}
	rumorSignerXOnly, err := xOnlyFromHex(rumor.PubKey)
	if err != nil {
		return nil, fmt.Errorf("parse rumor signer: %w", err)
	}

	// Note: the rumor's declared signer is intentionally not cross-checked
	// against the seal's signer — the two legitimately differ in
	// reputation mode (spec §4.D).
	return &Inbound{
		Message:        *msg,
		InnerSig:       innerSig,
		RumorCreatedAt: rumor.CreatedAt,
		RumorSigner:    rumorSignerXOnly,
	}, nil
}

func messageHash(msg mostro.Message) ([32]byte, error) {
	canonical, err := json.Marshal(msg)
	if err != nil {
		return [32]byte{}, fmt.Errorf("canonicalize message: %w", err)
	}
	return cryptoutil.Sha256(canonical), nil
}

// rumorTuple is the [Message, inner_sig|null] content of a rumor.
type rumorTuple struct {
	Message  mostro.Message
	InnerSig *[64]byte
}

func serializeRumorContent(msg mostro.Message, sig *[64]byte) (string, error) {
	var sigHex *string
	if sig != nil {
		s := hex.EncodeToString(sig[:])
		sigHex = &s
	}
	data, err := json.Marshal([2]interface{}{msg, sigHex})
	if err != nil {
		return "", fmt.Errorf("serialize rumor content: %w", err)
	}
	return string(data), nil
}

func parseRumorContent(content string) (*mostro.Message, *[64]byte, error) {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal([]byte(content), &tuple); err != nil {
		return nil, nil, fmt.Errorf("decode rumor tuple: %w", err)
	}
	var msg mostro.Message
	if err := json.Unmarshal(tuple[0], &msg); err != nil {
		return nil, nil, fmt.Errorf("decode rumor message: %w", err)
	}
	var sigHex *string
	if len(tuple) > 1 && string(tuple[1]) != "null" {
		if err := json.Unmarshal(tuple[1], &sigHex); err != nil {
			return nil, nil, fmt.Errorf("decode rumor inner sig: %w", err)
		}
	}
	var sig *[64]byte
	if sigHex != nil {
		raw, err := hex.DecodeString(*sigHex)
		if err != nil || len(raw) != 64 {
			return nil, nil, fmt.Errorf("invalid inner signature encoding")
		}
		var arr [64]byte
		copy(arr[:], raw)
		sig = &arr
	}
	return &msg, sig, nil
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

// tweakedTimestamp returns a uniformly random instant in (now-2days, now-60s),
// frustrating traffic correlation between seal/wrap creation and actual send
// time (spec §4.D step 3/5).
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
