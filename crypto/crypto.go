// Package crypto seals account credentials at rest with AES-256-GCM. Sealed
// values carry a version prefix so plain values written before a key was
// configured still load.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/onnwee/chatter/chat"
)

// SealedPrefix marks a sealed value.
const SealedPrefix = "enc:v1:"

// ErrNoKey is returned when a sealed value is opened without a Sealer.
var ErrNoKey = errors.New("value is sealed but no encryption key is configured")

// Sealer encrypts and decrypts credential strings.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer creates a Sealer from a base64-encoded 32-byte key, as produced
// by `openssl rand -base64 32`.
func NewSealer(base64Key string) (*Sealer, error) {
	if base64Key == "" {
		return nil, fmt.Errorf("encryption key is empty")
	}
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key: must be 32 bytes (256 bits), got %d bytes", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// IsSealed reports whether v was produced by Seal.
func IsSealed(v string) bool {
	return strings.HasPrefix(v, SealedPrefix)
}

// Seal returns SealedPrefix + base64(nonce || ciphertext || tag). Empty,
// placeholder and already sealed values are returned unchanged.
func (s *Sealer) Seal(plain string) (string, error) {
	if chat.IsPlaceholder(plain) || IsSealed(plain) {
		return plain, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(plain), nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the prefix are returned as they are.
func (s *Sealer) Open(v string) (string, error) {
	if !IsSealed(v) {
		return v, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(v, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode failed: %w", err)
	}
	n := s.aead.NonceSize()
	if len(raw) < n {
		return "", fmt.Errorf("ciphertext too short: expected at least %d bytes, got %d", n, len(raw))
	}
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		// no detail: it could leak information
		return "", fmt.Errorf("decryption failed: authentication or integrity check failed")
	}
	return string(plain), nil
}

// SealSnapshot returns a copy of snap with every credential sealed.
func (s *Sealer) SealSnapshot(snap chat.Snapshot) (chat.Snapshot, error) {
	return mapCredentials(snap, s.Seal)
}

// OpenSnapshot returns a copy of snap with every credential opened. A nil
// Sealer passes plain values through and fails on sealed ones.
func (s *Sealer) OpenSnapshot(snap chat.Snapshot) (chat.Snapshot, error) {
	if s == nil {
		return mapCredentials(snap, func(v string) (string, error) {
			if IsSealed(v) {
				return "", ErrNoKey
			}
			return v, nil
		})
	}
	return mapCredentials(snap, s.Open)
}

func mapCredentials(snap chat.Snapshot, fn func(string) (string, error)) (chat.Snapshot, error) {
	out := snap.Clone()
	for p, accts := range out {
		for i := range accts {
			v, err := fn(accts[i].Credential)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", chat.Key(p, i), err)
			}
			accts[i].Credential = v
		}
	}
	return out, nil
}
