package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Signer signs arbitrary messages with an Ed25519 private key.
type Signer interface {
	// Sign produces a signature over an arbitrary-length message.
	Sign(message []byte) ([]byte, error)
	// PublicKey returns the raw 32-byte public key.
	PublicKey() []byte
}

// Verifier verifies Ed25519 signatures.
type Verifier interface {
	// Verify checks a signature against a message and a raw 32-byte public key.
	Verify(message, signature, publicKey []byte) bool
}

// PrivateKey wraps an Ed25519 private key.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// GenerateKey creates a new random Ed25519 private key.
func GenerateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte or 64-byte seed/key.
// A 32-byte input is treated as a seed (ed25519.NewKeyFromSeed); a 64-byte
// input is treated as an already-expanded private key.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	switch len(b) {
	case ed25519.SeedSize:
		return &PrivateKey{key: ed25519.NewKeyFromSeed(b)}, nil
	case ed25519.PrivateKeySize:
		key := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
		copy(key, b)
		return &PrivateKey{key: key}, nil
	default:
		return nil, fmt.Errorf("private key must be %d (seed) or %d (expanded) bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(b))
	}
}

// Sign produces an Ed25519 signature over an arbitrary-length message.
func (pk *PrivateKey) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(pk.key, message), nil
}

// PublicKey returns the raw 32-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	pub := pk.key.Public().(ed25519.PublicKey)
	out := make([]byte, len(pub))
	copy(out, pub)
	return out
}

// Seed returns the 32-byte seed the private key was derived from.
func (pk *PrivateKey) Seed() []byte {
	return pk.key.Seed()
}

// Serialize returns the 64-byte expanded private key.
func (pk *PrivateKey) Serialize() []byte {
	out := make([]byte, len(pk.key))
	copy(out, pk.key)
	return out
}

// Zero overwrites the private key bytes. Ed25519 keys are plain byte
// slices (no external scalar-clearing API), so zeroing is a simple overwrite.
func (pk *PrivateKey) Zero() {
	for i := range pk.key {
		pk.key[i] = 0
	}
}

// VerifySignature checks an Ed25519 signature against a message and a raw
// 32-byte public key. Returns false on any malformed input.
func VerifySignature(message, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// Ed25519Verifier implements the Verifier interface.
type Ed25519Verifier struct{}

// Verify checks an Ed25519 signature against a message and public key.
func (v Ed25519Verifier) Verify(message, signature, publicKey []byte) bool {
	return VerifySignature(message, signature, publicKey)
}
