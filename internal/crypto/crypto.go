package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrDecryptionFailed indicates the ciphertext was tampered with or encrypted
// under a different key. GCM authentication guarantees we never return
// corrupted plaintext silently.
var ErrDecryptionFailed = errors.New("crypto: decryption failed")

const keySize = 32 // AES-256

// Service performs symmetric authenticated encryption with a single
// process-wide key. The key is fixed at construction and read-only afterwards.
type Service struct {
	aead cipher.AEAD
}

// NewService derives a 32-byte AES key from the given secret using
// HKDF-SHA256 and returns a ready-to-use encryption service. The secret
// itself is never retained.
func NewService(secret string) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("crypto: secret cannot be empty")
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("scribe-at-rest"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("crypto: key derivation: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new GCM: %w", err)
	}

	return &Service{aead: aead}, nil
}

// EncryptBytes encrypts plaintext with a fresh random nonce. The nonce is
// prepended to the returned ciphertext so ciphertexts are self-contained.
// Identical plaintexts produce different ciphertexts on every call.
func (s *Service) EncryptBytes(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: random nonce: %w", err)
	}

	// Seal appends ciphertext+tag after the nonce prefix.
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptBytes reverses EncryptBytes. Returns ErrDecryptionFailed when the
// ciphertext is truncated, tampered with, or was produced under another key.
func (s *Service) DecryptBytes(ciphertext []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(ciphertext) < nonceSize+s.aead.Overhead() {
		return nil, ErrDecryptionFailed
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// EncryptText encrypts a string and returns the ciphertext base64-encoded,
// suitable for storage in a text column.
func (s *Service) EncryptText(text string) (string, error) {
	ciphertext, err := s.EncryptBytes([]byte(text))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptText reverses EncryptText.
func (s *Service) DecryptText(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	plaintext, err := s.DecryptBytes(ciphertext)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
