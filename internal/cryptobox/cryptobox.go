// Package cryptobox implements the symmetric sealed box used for the
// client-held session cookie: AES-256-GCM with a random 96-bit nonce per
// seal, transported as base64(nonce ‖ tag ‖ ciphertext).
package cryptobox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Params
const (
	KeyLen   = 32
	nonceLen = 12
	tagLen   = 16
)

// ErrBadKey indicates a master or derived key of the wrong length.
var ErrBadKey = errors.New("key must be exactly 32 bytes")

// Box seals and opens opaque blobs under a process-lifetime key.
type Box struct {
	aead cipher.AEAD
}

// New constructs a Box. The key must be exactly 32 bytes.
func New(key []byte) (*Box, error) {
	if len(key) != KeyLen {
		return nil, ErrBadKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// ParseMasterKey decodes a 64-char hex master key into raw bytes.
func ParseMasterKey(hexKey string) ([]byte, error) {
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, err
	}
	if len(b) != KeyLen {
		return nil, ErrBadKey
	}
	return b, nil
}

// DeriveKey derives a purpose-scoped subkey from the master key via
// HKDF-SHA256, so the sealing key and the CSRF signing key never coincide.
func DeriveKey(master []byte, purpose string) ([]byte, error) {
	if len(master) != KeyLen {
		return nil, ErrBadKey
	}
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	key := make([]byte, KeyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Seal encrypts plaintext under a fresh random nonce and returns
// base64(nonce ‖ tag ‖ ciphertext).
func (b *Box) Seal(plaintext []byte) (string, error) {
	nonce, err := Rand(nonceLen)
	if err != nil {
		return "", err
	}
	// AEAD output is ciphertext‖tag; the wire layout wants the tag first.
	sealed := b.aead.Seal(nil, nonce, plaintext, nil)
	ct := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	out := make([]byte, 0, nonceLen+len(sealed))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open authenticates and decrypts a blob produced by Seal. It returns nil on
// any malformed input, wrong key or tag mismatch, so callers treat every
// corrupt session the same way: as no session.
func (b *Box) Open(blob string) []byte {
	if blob == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil
	}
	if len(raw) < nonceLen+tagLen {
		return nil
	}
	nonce := raw[:nonceLen]
	tag := raw[nonceLen : nonceLen+tagLen]
	ct := raw[nonceLen+tagLen:]

	sealed := make([]byte, 0, len(ct)+tagLen)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil
	}
	if plain == nil {
		// a sealed empty plaintext opens to empty, not to the failure nil
		plain = []byte{}
	}
	return plain
}
