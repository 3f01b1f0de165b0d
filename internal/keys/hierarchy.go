// Package keys implements the Key Hierarchy component (spec §4.A): a single
// BIP39 mnemonic seed, fixed-path HD derivation of an identity key plus
// per-trade keys, and an in-memory trade-index cursor. The cursor is not
// written to disk; it starts at 1 for every new Hierarchy.
//
// Grounded on the teacher's internal/wallet package (github.com/tyler-smith/go-bip39
// for mnemonic generation/validation, github.com/btcsuite/btcd/btcutil/hdkeychain
// for BIP32 derivation) with the teacher's generic multi-chain BIP44 path replaced
// by the single fixed NIP-06 path `44'/1237'/38383'/0`.
package keys

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/mostro-trade/mostro-client/internal/cryptoutil"
	"github.com/mostro-trade/mostro-client/internal/mostroerr"
)

// NIP-06 derivation path components: m/44'/1237'/38383'/0/{index}.
const (
	purpose  = hdkeychain.HardenedKeyStart + 44
	coinType = hdkeychain.HardenedKeyStart + 1237
	account  = hdkeychain.HardenedKeyStart + 38383
	change   = 0

	// IdentityIndex is the reserved child index for the identity key.
	IdentityIndex uint32 = 0
)

// KeyPair is a derived secp256k1 key pair: a 32-byte private scalar and the
// corresponding x-only Schnorr public key.
type KeyPair struct {
	Private *btcec.PrivateKey
	XOnly   [32]byte
}

// Hierarchy owns the seed bytes and derives identity/trade keys on demand.
// Derived key pairs are cached inside the Hierarchy; every accessor returns a
// fresh copy, never a pointer into that cache.
type Hierarchy struct {
	mu        sync.Mutex
	masterKey *hdkeychain.ExtendedKey
	cursor    uint32 // next unused trade-key index
	cache     map[uint32]*KeyPair
}

// GenerateMnemonic generates a new 12-word BIP39 mnemonic (128 bits of entropy).
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic enforces the BIP39 English wordlist checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// Import derives a Hierarchy from a mnemonic phrase, with the trade-index
// cursor starting at 1 (the caller should call SetTradeIndex afterwards if
// restoring a prior session).
func Import(mnemonic string) (*Hierarchy, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, mostroerr.New(mostroerr.MnemonicInvalid, "mnemonic failed BIP39 checksum")
	}
	seed := bip39.NewSeed(mnemonic, "")
	return fromSeed(seed)
}

func fromSeed(seed []byte) (*Hierarchy, error) {
	masterKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	return &Hierarchy{
		masterKey: masterKey,
		cursor:    1,
		cache:     make(map[uint32]*KeyPair),
	}, nil
}

// IdentityKeypair returns the key pair at the reserved identity index (0).
func (h *Hierarchy) IdentityKeypair() (*KeyPair, error) {
	return h.deriveIndex(IdentityIndex)
}

// TradeKeypair derives the key pair at the given trade index. index must be >= 1.
func (h *Hierarchy) TradeKeypair(index uint32) (*KeyPair, error) {
	if index < 1 {
		return nil, mostroerr.New(mostroerr.InvalidIndex, fmt.Sprintf("trade index %d must be >= 1", index))
	}
	return h.deriveIndex(index)
}

// NextTradeKeypair derives the key pair at the current cursor and atomically
// increments it.
func (h *Hierarchy) NextTradeKeypair() (*KeyPair, uint32, error) {
	h.mu.Lock()
	index := h.cursor
	h.cursor = index + 1
	h.mu.Unlock()

	kp, err := h.TradeKeypair(index)
	if err != nil {
		return nil, 0, err
	}

	return kp, index, nil
}

// SetTradeIndex explicitly sets the next-unused cursor, used during
// restore-session (spec §4.H).
func (h *Hierarchy) SetTradeIndex(n uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cursor = n
}

// CurrentTradeIndex returns the next unused trade-key index.
func (h *Hierarchy) CurrentTradeIndex() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursor
}

func (h *Hierarchy) deriveIndex(index uint32) (*KeyPair, error) {
	h.mu.Lock()
	if cached, ok := h.cache[index]; ok {
		h.mu.Unlock()
		priv, _ := btcec.PrivKeyFromBytes(cached.Private.Serialize())
		return &KeyPair{Private: priv, XOnly: cached.XOnly}, nil
	}
	h.mu.Unlock()

	purposeKey, err := h.masterKey.Derive(purpose)
	if err != nil {
		return nil, fmt.Errorf("derive purpose: %w", err)
	}
	coinKey, err := purposeKey.Derive(coinType)
	if err != nil {
		return nil, fmt.Errorf("derive coin type: %w", err)
	}
	accountKey, err := coinKey.Derive(account)
	if err != nil {
		return nil, fmt.Errorf("derive account: %w", err)
	}
	changeKey, err := accountKey.Derive(change)
	if err != nil {
		return nil, fmt.Errorf("derive change: %w", err)
	}
	addressKey, err := changeKey.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("derive index %d: %w", index, err)
	}

	privKey, err := addressKey.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}

	kp := &KeyPair{
		Private: privKey,
		XOnly:   cryptoutil.XOnlyPubKey(privKey),
	}

	h.mu.Lock()
	h.cache[index] = kp
	h.mu.Unlock()

	priv, _ := btcec.PrivKeyFromBytes(privKey.Serialize())
	return &KeyPair{Private: priv, XOnly: kp.XOnly}, nil
}
