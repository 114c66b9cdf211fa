package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// AddressSize is the length of an address in bytes: a raw Ed25519 public key.
const AddressSize = 32

// Address is a raw 32-byte Ed25519 public key. The external representation
// is always exactly 64 lowercase hex characters; any other form is rejected.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the lowercase hex-encoded address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Hex is an alias for String, kept for call sites ported from the
// bech32-address era that distinguished a "raw hex" accessor.
func (a Address) Hex() string {
	return a.String()
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a 64-char hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a 64-char hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a strict 64-lowercase-hex-character address string.
// Any other form (mixed case, prefixed, wrong length) is rejected: any API
// that takes an address rejects input that is not exactly 64 hex chars.
func ParseAddress(s string) (Address, error) {
	if len(s) != AddressSize*2 {
		return Address{}, fmt.Errorf("address must be exactly %d hex chars, got %d", AddressSize*2, len(s))
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return Address{}, fmt.Errorf("address must be lowercase hex")
		}
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address: %w", err)
	}
	var a Address
	copy(a[:], decoded)
	return a, nil
}

// HexToAddress parses a raw hex string into an Address. Equivalent to
// ParseAddress; kept as a separate name for genesis/internal call sites
// that historically used this accessor.
func HexToAddress(s string) (Address, error) {
	return ParseAddress(s)
}
