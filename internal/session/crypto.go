// Package session implements the Session Core: an opaque, tamper-evident,
// TTL-managed session store, built around a server-side encrypted session
// model rather than a stateless JWT. The AES-256-GCM envelope follows
// janhq-server's crypto.EncryptString/DecryptString
// (services/llm-api/internal/utils/crypto/crypto.go).
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"doccatalog-go/internal/apperr"
)

// deriveKey hashes secret with SHA-256, giving the 32-byte key AES-256
// requires.
func deriveKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

func encrypt(secret, plaintext string) (string, error) {
	if secret == "" {
		return "", apperr.New(apperr.KindInternal, "session encryption secret is empty")
	}
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to initialize session cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to initialize session gcm", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to generate session nonce", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func decrypt(secret, ciphertext string) (string, error) {
	if secret == "" {
		return "", apperr.New(apperr.KindInternal, "session encryption secret is empty")
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuth, "session envelope is not valid base64", err)
	}
	block, err := aes.NewCipher(deriveKey(secret))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to initialize session cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to initialize session gcm", err)
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", apperr.New(apperr.KindAuth, "session envelope too short")
	}
	nonce, body := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", apperr.Wrap(apperr.KindAuth, "failed to decrypt session envelope", err)
	}
	return string(plaintext), nil
}

// newSessionID generates a cryptographically random 256-bit, URL-safe
// base64-encoded session id, the same primitive shape as a
// GenerateRandomString refresh-token helper would produce.
func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "failed to generate session id", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
