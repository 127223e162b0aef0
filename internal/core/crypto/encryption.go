// Package crypto seals deployment secrets at rest.
// This is part of the Functional Core - all functions are pure with no I/O
// beyond reading the system random source for nonces.
//
// Values are encrypted with AES-256-GCM under a key derived from an operator
// passphrase. Sealed text carries a version prefix so plaintext written before
// a key was configured is still readable.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrKeyTooShort is returned when the encryption key is too short.
	ErrKeyTooShort = errors.New("encryption key must be at least 32 bytes")

	// ErrInvalidCiphertext is returned when decryption fails due to invalid ciphertext.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")

	// ErrDecryptionFailed is returned when decryption fails (wrong key or corrupted data).
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

	// ErrNoKey is returned when sealed text is opened without a key.
	ErrNoKey = errors.New("value is encrypted but no key is configured")
)

// SealedPrefix marks text produced by Seal.
const SealedPrefix = "enc:v1:"

// =============================================================================
// Key Derivation
// =============================================================================

// DeriveKey derives a 32-byte AES-256 key from a passphrase using SHA-256.
// The same passphrase always yields the same key.
func DeriveKey(passphrase string) []byte {
	hash := sha256.Sum256([]byte(passphrase))
	return hash[:]
}

// =============================================================================
// AES-256-GCM Encryption
// =============================================================================

// Encrypt encrypts plaintext using AES-256-GCM.
// The output is nonce (12 bytes) || ciphertext || tag (16 bytes).
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) < 32 {
		return nil, ErrKeyTooShort
	}
	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// =============================================================================
// Text Sealing
// =============================================================================

// Seal encrypts plaintext into a prefixed base64 string suitable for a text column.
func Seal(plaintext string, key []byte) (string, error) {
	ciphertext, err := Encrypt([]byte(plaintext), key)
	if err != nil {
		return "", err
	}
	return SealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// IsSealed reports whether text was produced by Seal.
func IsSealed(text string) bool {
	return strings.HasPrefix(text, SealedPrefix)
}

// Open reverses Seal. Text without the prefix is returned unchanged.
func Open(text string, key []byte) (string, error) {
	if !IsSealed(text) {
		return text, nil
	}
	if len(key) == 0 {
		return "", ErrNoKey
	}
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(text, SealedPrefix))
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	plaintext, err := Decrypt(ciphertext, key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
