package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for optional seed-at-rest encryption (spec §9 "seed
// encryption (open item)"), grounded on the teacher's internal/wallet/crypto.go.
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)

// EncryptedSeed is the on-disk shape of a passphrase-protected mnemonic.
type EncryptedSeed struct {
	Version    int    `json:"version"`
	Ciphertext []byte `json:"ciphertext"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
}

// LoadOrCreate loads the mnemonic at path, or generates and persists a new one
// if absent. Returns the Hierarchy and whether a new mnemonic was created.
// The seed file is written with owner-only (0600) permissions.
func LoadOrCreate(path, passphrase string) (h *Hierarchy, wasNew bool, mnemonic string, err error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		mnemonic, err = GenerateMnemonic()
		if err != nil {
			return nil, false, "", err
		}
		if err = save(path, mnemonic, passphrase); err != nil {
			return nil, false, "", err
		}
		h, err = Import(mnemonic)
		return h, true, mnemonic, err
	}

	mnemonic, err = load(path, passphrase)
	if err != nil {
		return nil, false, "", err
	}
	h, err = Import(mnemonic)
	return h, false, mnemonic, err
}

func save(path, mnemonic, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create seed directory: %w", err)
	}

	if passphrase == "" {
		if err := os.WriteFile(path, []byte(mnemonic), 0600); err != nil {
			return fmt.Errorf("write seed file: %w", err)
		}
		return nil
	}

	enc, err := encryptMnemonic(mnemonic, passphrase)
	if err != nil {
		return err
	}
	data, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("marshal encrypted seed: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write encrypted seed file: %w", err)
	}
	return nil
}

func load(path, passphrase string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read seed file: %w", err)
	}

	if passphrase == "" {
		return string(data), nil
	}

	var enc EncryptedSeed
	if err := json.Unmarshal(data, &enc); err != nil {
		return "", fmt.Errorf("parse encrypted seed: %w", err)
	}
	return decryptMnemonic(&enc, passphrase)
}

func encryptMnemonic(mnemonic, passphrase string) (*EncryptedSeed, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(passphrase), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	defer secureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(mnemonic), nil)

	return &EncryptedSeed{Version: 1, Ciphertext: ciphertext, Salt: salt, Nonce: nonce}, nil
}

func decryptMnemonic(enc *EncryptedSeed, passphrase string) (string, error) {
	key := argon2.IDKey([]byte(passphrase), enc.Salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	defer secureClear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt seed (wrong passphrase?): %w", err)
	}
	return string(plaintext), nil
}

func secureClear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
