package cryptoutil

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// nip44Salt is the fixed HKDF-extract salt mandated by the wire format; it is
// not a secret and is the same for every conversation.
var nip44Salt = []byte("nip44-v2")

const (
	nip44Version   = 2
	minPlaintext   = 1
	maxPlaintext   = 65535
	chachaKeyLen   = 32
	chachaNonceLen = 12
	hmacKeyLen     = 32
)

// ConversationKey derives the symmetric key shared by two parties from
// (my_private, their_x_only_public) via HKDF-extract over the ECDH shared X
// coordinate, satisfying kdf(a, G*b) == kdf(b, G*a).
func ConversationKey(priv *btcec.PrivateKey, theirXOnly [32]byte) ([32]byte, error) {
	shared, err := SharedSecret(priv, theirXOnly)
	if err != nil {
		return [32]byte{}, err
	}
	prk := hkdf.Extract(sha256.New, shared[:], nip44Salt)
	var key [32]byte
	copy(key[:], prk)
	return key, nil
}

// Encrypt authenticated-encrypts plaintext under the conversation key,
// producing a versioned base64 ciphertext blob (NIP-44 v2 wire format).
func Encrypt(conversationKey [32]byte, plaintext string) (string, error) {
	if len(plaintext) < minPlaintext || len(plaintext) > maxPlaintext {
		return "", fmt.Errorf("plaintext length %d out of bounds", len(plaintext))
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	padded := pad(plaintext)

	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey[:], chachaNonce[:])
	if err != nil {
		return "", fmt.Errorf("init chacha20: %w", err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.XORKeyStream(ciphertext, padded)

	mac := computeMAC(hmacKey, nonce, ciphertext)

	out := make([]byte, 0, 1+32+len(ciphertext)+32)
	out = append(out, nip44Version)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	out = append(out, mac[:]...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. A MAC or version mismatch is reported as an error;
// callers (gift-wrap/chat receive paths) treat this as DecryptFailed and skip
// the event rather than aborting the whole batch.
func Decrypt(conversationKey [32]byte, payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) < 1+32+32 {
		return "", fmt.Errorf("payload too short")
	}
	if raw[0] != nip44Version {
		return "", fmt.Errorf("unsupported version %d", raw[0])
	}

	var nonce [32]byte
	copy(nonce[:], raw[1:33])
	ciphertext := raw[33 : len(raw)-32]
	var mac [32]byte
	copy(mac[:], raw[len(raw)-32:])

	chachaKey, chachaNonce, hmacKey, err := messageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}

	expectedMAC := computeMAC(hmacKey, nonce, ciphertext)
	if !hmac.Equal(expectedMAC[:], mac[:]) {
		return "", fmt.Errorf("MAC mismatch")
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(chachaKey[:], chachaNonce[:])
	if err != nil {
		return "", fmt.Errorf("init chacha20: %w", err)
	}
	padded := make([]byte, len(ciphertext))
	cipher.XORKeyStream(padded, ciphertext)

	plaintext, err := unpad(padded)
	if err != nil {
		return "", fmt.Errorf("unpad: %w", err)
	}
	return plaintext, nil
}

// messageKeys HKDF-expands the per-message key material from the conversation
// key, keyed on the message's random nonce.
func messageKeys(conversationKey [32]byte, nonce [32]byte) (chachaKey [32]byte, chachaNonce [12]byte, hmacKey [32]byte, err error) {
	r := hkdf.Expand(sha256.New, conversationKey[:], nonce[:])
	buf := make([]byte, chachaKeyLen+chachaNonceLen+hmacKeyLen)
	if _, err = io.ReadFull(r, buf); err != nil {
		return chachaKey, chachaNonce, hmacKey, fmt.Errorf("hkdf expand: %w", err)
	}
	copy(chachaKey[:], buf[:chachaKeyLen])
	copy(chachaNonce[:], buf[chachaKeyLen:chachaKeyLen+chachaNonceLen])
	copy(hmacKey[:], buf[chachaKeyLen+chachaNonceLen:])
	return chachaKey, chachaNonce, hmacKey, nil
}

func computeMAC(hmacKey [32]byte, nonce [32]byte, ciphertext []byte) [32]byte {
	h := hmac.New(sha256.New, hmacKey[:])
	h.Write(nonce[:])
	h.Write(ciphertext)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// calcPaddedLen returns the padded length for a given plaintext length,
// following the NIP-44 power-of-two chunking rule so ciphertext length leaks
// only a coarse size bucket instead of the exact byte count.
func calcPaddedLen(n int) int {
	if n <= 32 {
		return 32
	}
	nextPower := 1
	for nextPower < n {
		nextPower <<= 1
	}
	chunk := 32
	if nextPower > 256 {
		chunk = nextPower / 8
	}
	return chunk * ((n-1)/chunk + 1)
}

func pad(plaintext string) []byte {
	b := []byte(plaintext)
	padded := calcPaddedLen(len(b))
	out := make([]byte, 2+padded)
	binary.BigEndian.PutUint16(out[:2], uint16(len(b)))
	copy(out[2:], b)
	return out
}

func unpad(padded []byte) (string, error) {
	if len(padded) < 2 {
		return "", fmt.Errorf("padded payload too short")
	}
	n := int(binary.BigEndian.Uint16(padded[:2]))
	if n == 0 || 2+n > len(padded) {
		return "", fmt.Errorf("invalid unpadded length %d", n)
	}
	expected := calcPaddedLen(n)
	if len(padded)-2 != expected {
		return "", fmt.Errorf("padding length mismatch")
	}
	plaintext := padded[2 : 2+n]
	if !bytes.Equal(padded[2+n:], make([]byte, len(padded)-2-n)) {
		return "", fmt.Errorf("non-zero padding bytes")
	}
	return string(plaintext), nil
}
