// Package vault provides the credential-at-rest seal/unseal pair spec.md §9
// says the core needs and nothing more: the key-management layer that
// produces the 32-byte key is out of scope.
package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/reddit-fleet/scraper-control/internal/models"
)

// ErrShortCiphertext is returned by Unseal when the blob is too small to
// contain a nonce.
var ErrShortCiphertext = errors.New("vault: ciphertext shorter than nonce")

// Sealer seals and unseals credential blobs with a single symmetric key.
// One Sealer is shared process-wide; it holds no per-scraper state.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte key. Key derivation and rotation
// are the out-of-scope key-management layer's job.
func NewSealer(key []byte) (*Sealer, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("vault: invalid key: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// OAuthSecrets is the plaintext structure sealed inside Credentials.Sealed.
type OAuthSecrets struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	UserAgent    string `json:"user_agent"`
}

// Seal encrypts plaintext bytes into an opaque blob.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: nonce generation failed: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Unseal decrypts a blob produced by Seal.
func (s *Sealer) Unseal(sealed []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrShortCiphertext
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: decryption failed: %w", err)
	}
	return plaintext, nil
}

// SealSecrets is a convenience wrapper: JSON-encode then Seal.
func (s *Sealer) SealSecrets(secrets OAuthSecrets) (models.Credentials, error) {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("vault: marshal secrets: %w", err)
	}
	sealed, err := s.Seal(plaintext)
	if err != nil {
		return models.Credentials{}, err
	}
	return models.Credentials{Sealed: sealed}, nil
}

// UnsealSecrets is the inverse of SealSecrets.
func (s *Sealer) UnsealSecrets(creds models.Credentials) (OAuthSecrets, error) {
	plaintext, err := s.Unseal(creds.Sealed)
	if err != nil {
		return OAuthSecrets{}, err
	}
	var secrets OAuthSecrets
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return OAuthSecrets{}, fmt.Errorf("vault: unmarshal secrets: %w", err)
	}
	return secrets, nil
}
