// Package secretstore implements AEAD encryption at rest for credential
// secrets, decrypted only inside discovery workers (spec §4.1).
package secretstore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSecretCorrupt is returned when ciphertext fails AEAD authentication,
// or is shorter than the nonce it must carry.
var ErrSecretCorrupt = errors.New("secretstore: secret corrupt")

// Store encrypts and decrypts credential secrets with a single process-wide
// 256-bit key.
type Store struct {
	aead cipher.AEAD
}

// New builds a Store from a base64-encoded 256-bit key, trying standard
// base64, then URL-safe base64, then padding-normalized standard base64 —
// the fallback chain required by spec §4.1.
func New(keyB64 string) (*Store, error) {
	key, err := decodeKey(keyB64)
	if err != nil {
		return nil, fmt.Errorf("secretstore: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("secretstore: construct AEAD: %w", err)
	}

	return &Store{aead: aead}, nil
}

func decodeKey(keyB64 string) ([]byte, error) {
	if key, err := base64.StdEncoding.DecodeString(keyB64); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if key, err := base64.URLEncoding.DecodeString(keyB64); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}

	normalized := keyB64
	if m := len(normalized) % 4; m != 0 {
		normalized += strings.Repeat("=", 4-m)
	}
	if key, err := base64.StdEncoding.DecodeString(normalized); err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}

	return nil, fmt.Errorf("encryption.key does not decode to a %d-byte key via any known encoding", chacha20poly1305.KeySize)
}

// Encrypt seals plaintext under a fresh random nonce. Layout is
// base64(nonce || ciphertext || tag). Empty/nil input round-trips to "".
func (s *Store) Encrypt(plaintext []byte) (string, error) {
	if len(plaintext) == 0 {
		return "", nil
	}

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretstore: generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext produced by Encrypt. Empty input round-trips to
// nil. Any authentication failure or undersized input returns
// ErrSecretCorrupt — never the underlying AEAD error, so cipher details are
// never exposed to callers (spec §7).
func (s *Store) Decrypt(ciphertextB64 string) ([]byte, error) {
	if ciphertextB64 == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, ErrSecretCorrupt
	}
	if len(raw) < chacha20poly1305.NonceSize {
		return nil, ErrSecretCorrupt
	}

	nonce, ct := raw[:chacha20poly1305.NonceSize], raw[chacha20poly1305.NonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrSecretCorrupt
	}

	return plaintext, nil
}
