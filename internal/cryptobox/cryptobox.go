// Package cryptobox implements the two encryption providers the gossip
// transport can use: a cleartext identity provider for tests, and an
// AEAD-256 provider (ChaCha20-Poly1305) for production traffic, with
// support for key rotation on the decrypt path.
package cryptobox

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrTooShort is returned when a ciphertext is too small to contain a nonce.
var ErrTooShort = errors.New("cryptobox: ciphertext too short")

// ErrAuthFailed is returned when no candidate key could authenticate a
// ciphertext. Callers should treat this as a soft error: drop the packet and
// count it as malformed, never panic.
var ErrAuthFailed = errors.New("cryptobox: authentication failed")

// Key is a 256-bit symmetric key.
type Key [chacha20poly1305.KeySize]byte

// Provider encrypts and decrypts opaque byte payloads.
type Provider interface {
	Encrypt(key Key, plaintext []byte) ([]byte, error)
	Decrypt(key Key, ciphertext []byte) ([]byte, error)
}

// Cleartext is the identity provider: Encrypt and Decrypt are no-ops. Used
// only in tests, per the wire format's "bare encoded Message" fallback.
type Cleartext struct{}

func (Cleartext) Encrypt(_ Key, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (Cleartext) Decrypt(_ Key, ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

// AEAD256 seals and opens messages with ChaCha20-Poly1305 using a random
// 96-bit nonce per message. Wire format is nonce(12) || sealed_bytes.
type AEAD256 struct{}

func (AEAD256) Encrypt(key Key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptobox: building aead: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptobox: generating nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

func (AEAD256) Decrypt(key Key, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptobox: building aead: %w", err)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrTooShort
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// KeyProvider supplies the current encryption key and the ordered list of
// keys acceptable for decryption, to permit zero-downtime key rotation: roll
// out a provider with [old, new] for decrypting, switch encryption to new,
// then later drop old once every peer has rotated.
type KeyProvider struct {
	Current    Key
	Acceptable []Key
}

// NewKeyProvider builds a KeyProvider that encrypts with current and accepts
// decryption with any key in acceptable (current should normally be included
// in acceptable too).
func NewKeyProvider(current Key, acceptable ...Key) KeyProvider {
	return KeyProvider{Current: current, Acceptable: acceptable}
}

// Encrypt seals plaintext with the provider's current key.
func (kp KeyProvider) Encrypt(p Provider, plaintext []byte) ([]byte, error) {
	return p.Encrypt(kp.Current, plaintext)
}

// Decrypt tries every acceptable key in order, returning the plaintext from
// the first that authenticates. Returns ErrAuthFailed if none succeed.
func (kp KeyProvider) Decrypt(p Provider, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 12 {
		return nil, ErrTooShort
	}
	for _, key := range kp.Acceptable {
		plaintext, err := p.Decrypt(key, ciphertext)
		if err == nil {
			return plaintext, nil
		}
		if errors.Is(err, ErrTooShort) {
			return nil, err
		}
	}
	return nil, ErrAuthFailed
}
