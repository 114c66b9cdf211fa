package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
)

// identityKeyFile is the filename the node's persistent Ed25519 identity key
// is stored under, hex-encoded, inside the node's identity directory.
const identityKeyFile = "node_identity.key"

// Identity is the node's persistent network identity: an Ed25519 keypair
// (Sign signs with it; the P2P handshake does not call it), and the
// node_id derived from its public key.
// node_id is the first 40 hex characters of SHA-256(pubkey); it is computed
// with the standard library's SHA-256 rather than the chain's BLAKE3 hash
// since the wire handshake in the original spec fixes SHA-256 for identity
// derivation, independent of the block-hashing algorithm.
type Identity struct {
	key         *crypto.PrivateKey
	NodeID      string
	Fingerprint string
}

// LoadOrCreateIdentity loads the node's Ed25519 identity key from dir,
// hex-encoded in identityKeyFile, creating one on first run. Identity
// persists across restarts; there are no ephemeral node IDs.
func LoadOrCreateIdentity(dir string) (*Identity, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	path := filepath.Join(dir, identityKeyFile)

	data, err := os.ReadFile(path)
	var key *crypto.PrivateKey
	switch {
	case err == nil:
		keyBytes, decErr := hex.DecodeString(strings.TrimSpace(string(data)))
		if decErr != nil {
			return nil, fmt.Errorf("decode identity key: %w", decErr)
		}
		key, err = crypto.PrivateKeyFromBytes(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse identity key: %w", err)
		}
	case os.IsNotExist(err):
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate identity key: %w", err)
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Serialize())), 0o600); err != nil {
			return nil, fmt.Errorf("write identity key: %w", err)
		}
	default:
		return nil, fmt.Errorf("read identity key: %w", err)
	}

	pub := key.PublicKey()
	sum := sha256.Sum256(pub)
	return &Identity{
		key:         key,
		NodeID:      hex.EncodeToString(sum[:])[:40],
		Fingerprint: hex.EncodeToString(pub)[:16],
	}, nil
}

// Sign signs message with the node's identity key.
func (id *Identity) Sign(message []byte) ([]byte, error) {
	return id.key.Sign(message)
}

// PublicKey returns the node's raw 32-byte Ed25519 public key.
func (id *Identity) PublicKey() []byte {
	return id.key.PublicKey()
}
