// Package pii provides the encryption-at-rest and document-hashing
// primitives for a loan's document_number and full_name fields (spec
// §4.A, §8 Security). The AES-GCM + base64url envelope follows the
// teacher's crypto package; key derivation differs — a single key is
// derived once from a configured master secret via PBKDF2-SHA256,
// rather than a fresh per-subject HMAC-derived key, since the domain
// has no per-subject key rotation requirement.
package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 100000
	kdfSalt       = "loan_pii_salt_v1"
	keyLen        = 32
	envelopeV1    = "v1:"
)

// Codec encrypts and decrypts PII fields with a key derived once at
// construction time.
type Codec struct {
	key []byte
}

// NewCodec derives the AES-256 key from masterSecret.
func NewCodec(masterSecret string) *Codec {
	key := pbkdf2.Key([]byte(masterSecret), []byte(kdfSalt), kdfIterations, keyLen, sha256.New)
	return &Codec{key: key}
}

// Encrypt returns the base64url envelope "v1:<nonce><ciphertext>" for
// plaintext. An empty string encrypts to an empty string.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("pii: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("pii: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("pii: read nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopeV1 + base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Per §4.A, callers on the read path must
// treat a decrypt failure as "this row predates encryption" rather than
// a fatal error — IsLegacyPlaintext helps distinguish that case.
func (c *Codec) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}
	if !strings.HasPrefix(envelope, envelopeV1) {
		return "", errors.New("pii: not a recognized envelope")
	}
	raw, err := base64.URLEncoding.DecodeString(strings.TrimPrefix(envelope, envelopeV1))
	if err != nil {
		return "", fmt.Errorf("pii: decode envelope: %w", err)
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("pii: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("pii: new gcm: %w", err)
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("pii: envelope too short")
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("pii: decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsLegacyPlaintext reports whether value looks like a row stored
// before encryption was introduced, rather than a malformed envelope.
func IsLegacyPlaintext(value string) bool {
	return value != "" && !strings.HasPrefix(value, envelopeV1)
}

// HashDocument returns the deterministic lookup hash for a (country,
// document) pair, used for document_hash and duplicate-active lookups
// without decrypting stored rows (spec §4.A, §4.G step 6).
func HashDocument(countryCode, document string) string {
	normalized := strings.ToUpper(strings.TrimSpace(countryCode)) + ":" + strings.ToUpper(strings.TrimSpace(document))
	sum := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", sum)
}
