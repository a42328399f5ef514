package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/atinyakov/PermKeeper/internal/models"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCrypto covers every encrypt/decrypt failure: malformed blob, wrong key,
// tampered data.
var ErrCrypto = errors.New("crypto failure")

// NonceSize is the IV length for every supported suite.
const NonceSize = 12

// Suite names an AEAD construction.
type Suite string

const (
	// SuiteAESGCM is AES-256-GCM.
	SuiteAESGCM Suite = "aes-256-gcm"
	// SuiteChaCha20Poly1305 is ChaCha20-Poly1305 (IETF, 96-bit nonce).
	SuiteChaCha20Poly1305 Suite = "chacha20-poly1305"
)

// ParseSuite maps a config value to a Suite. Empty means the default.
func ParseSuite(s string) (Suite, error) {
	switch Suite(s) {
	case "", SuiteAESGCM:
		return SuiteAESGCM, nil
	case SuiteChaCha20Poly1305:
		return SuiteChaCha20Poly1305, nil
	}
	return "", fmt.Errorf("unknown cipher suite %q", s)
}

// Key is an AEAD derived from a shared secret.
type Key struct {
	aead  cipher.AEAD
	suite Suite
}

// Suite returns the construction the key was derived for.
func (k *Key) Suite() Suite { return k.suite }

// DeriveKey derives an AES-256-GCM key from the SHA-256 digest of secret.
func DeriveKey(secret string) (*Key, error) {
	return DeriveKeyWithSuite(secret, SuiteAESGCM)
}

// DeriveKeyWithSuite derives a key for the given suite. The same secret
// always yields the same key.
func DeriveKeyWithSuite(secret string, suite Suite) (*Key, error) {
	if secret == "" {
		return nil, errors.New("derive key: empty secret")
	}
	sum := sha256.Sum256([]byte(secret))

	var (
		aead cipher.AEAD
		err  error
	)
	switch suite {
	case SuiteAESGCM:
		var block cipher.Block
		block, err = aes.NewCipher(sum[:])
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		aead, err = cipher.NewGCM(block)
	case SuiteChaCha20Poly1305:
		aead, err = chacha20poly1305.New(sum[:])
	default:
		return nil, fmt.Errorf("unknown cipher suite %q", suite)
	}
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return &Key{aead: aead, suite: suite}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func Encrypt(key *Key, plaintext string) (models.EncryptedBlob, error) {
	if key == nil {
		return models.EncryptedBlob{}, fmt.Errorf("%w: nil key", ErrCrypto)
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return models.EncryptedBlob{}, fmt.Errorf("%w: generate nonce: %v", ErrCrypto, err)
	}
	ct := key.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return models.EncryptedBlob{
		IV:         base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// Decrypt opens blob. It never returns partial plaintext.
func Decrypt(key *Key, blob models.EncryptedBlob) (string, error) {
	if key == nil {
		return "", fmt.Errorf("%w: nil key", ErrCrypto)
	}
	nonce, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil {
		return "", fmt.Errorf("%w: decode iv: %v", ErrCrypto, err)
	}
	if len(nonce) != NonceSize {
		return "", fmt.Errorf("%w: iv is %d bytes, want %d", ErrCrypto, len(nonce), NonceSize)
	}
	ct, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", ErrCrypto, err)
	}
	plain, err := key.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: open: %v", ErrCrypto, err)
	}
	return string(plain), nil
}
