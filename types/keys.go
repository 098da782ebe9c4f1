package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the expected size of a hash in bytes
const HashSize = 32

// SignatureSize is the expected size of an Ed25519 signature in bytes
const SignatureSize = 64

// PublicKeySize is the expected size of an Ed25519 public key in bytes
const PublicKeySize = 32

// Hash is a SHA-256 digest
type Hash struct {
	Data []byte
}

// Signature is a raw Ed25519 signature
type Signature struct {
	Data []byte
}

// PublicKey is a raw Ed25519 public key
type PublicKey struct {
	Data []byte
}

// NewHash creates a Hash from bytes, returning error if invalid.
// Use for untrusted input (network, files).
// Copies input data to prevent caller from modifying internal state.
func NewHash(data []byte) (Hash, error) {
	if len(data) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(data))
	}
	copied := make([]byte, HashSize)
	copy(copied, data)
	return Hash{Data: copied}, nil
}

// MustNewHash creates a Hash, panicking if invalid.
// Use only for trusted internal data.
func MustNewHash(data []byte) Hash {
	h, err := NewHash(data)
	if err != nil {
		panic(err)
	}
	return h
}

// HashBytes computes the SHA-256 hash of data
func HashBytes(data []byte) Hash {
	h := sha256.Sum256(data)
	return Hash{Data: h[:]}
}

// HashEqual compares two hashes
func HashEqual(a, b Hash) bool {
	return bytes.Equal(a.Data, b.Data)
}

// HashString returns the hex-encoded hash
func HashString(h Hash) string {
	return hex.EncodeToString(h.Data)
}

// NewSignature creates a Signature from bytes, returning error if invalid.
// Use for untrusted input (network, files).
func NewSignature(data []byte) (Signature, error) {
	if len(data) != SignatureSize {
		return Signature{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureSize, len(data))
	}
	copied := make([]byte, SignatureSize)
	copy(copied, data)
	return Signature{Data: copied}, nil
}

// MustNewSignature creates a Signature, panicking if invalid.
// Use only for trusted internal data (e.g., crypto library output).
func MustNewSignature(data []byte) Signature {
	s, err := NewSignature(data)
	if err != nil {
		panic(err)
	}
	return s
}

// NewPublicKey creates a PublicKey from bytes, returning error if invalid.
// Use for untrusted input (network, files).
func NewPublicKey(data []byte) (PublicKey, error) {
	if len(data) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(data))
	}
	copied := make([]byte, PublicKeySize)
	copy(copied, data)
	return PublicKey{Data: copied}, nil
}

// MustNewPublicKey creates a PublicKey, panicking if invalid.
// Use only for trusted internal data.
func MustNewPublicKey(data []byte) PublicKey {
	p, err := NewPublicKey(data)
	if err != nil {
		panic(err)
	}
	return p
}

// PublicKeyEqual compares two public keys
func PublicKeyEqual(a, b PublicKey) bool {
	return bytes.Equal(a.Data, b.Data)
}
