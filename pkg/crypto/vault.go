// Package crypto implements the credential vault: authenticated
// symmetric encryption for secrets at rest (Garmin session tokens,
// account identifiers). The blob format is base64(nonce || ciphertext || tag)
// with AES-256-GCM and a fresh 96-bit nonce per call.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/vitalsync/server/pkg/apierrors"
)

// EncryptionKeyEnv names the environment variable carrying the hex-encoded
// 256-bit key, populated from Secret Manager in deployed environments.
const EncryptionKeyEnv = "GARMIN_ENCRYPTION_KEY"

type Vault struct {
	aead cipher.AEAD
}

// NewVault builds a vault from a raw 32-byte key.
func NewVault(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm mode: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// NewVaultFromEnv loads the key from the environment. A missing or
// malformed key is a startup-class failure, not a per-call one.
func NewVaultFromEnv() (*Vault, error) {
	keyHex := os.Getenv(EncryptionKeyEnv)
	if keyHex == "" {
		return nil, fmt.Errorf("%s not set — configure via Secret Manager", EncryptionKeyEnv)
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", EncryptionKeyEnv, err)
	}
	return NewVault(key)
}

// Encrypt seals plaintext into a base64 blob. Each call uses a random
// nonce, so encrypting the same plaintext twice yields different blobs.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. Any tampering, truncation or
// key mismatch fails with apierrors.ErrDecryption.
func (v *Vault) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: bad base64: %v", apierrors.ErrDecryption, err)
	}
	ns := v.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("%w: blob shorter than nonce", apierrors.ErrDecryption)
	}
	nonce, ciphertext := raw[:ns], raw[ns:]
	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apierrors.ErrDecryption, err)
	}
	return string(plaintext), nil
}
