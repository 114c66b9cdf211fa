package types

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// U128Size is the fixed width of a U128's internal encoding in bytes.
const U128Size = 16

// U128 is an unsigned 128-bit integer used for every value quantity in the
// ledger (balances, amounts, fees, supply). Internally it is stored as a
// fixed-width little-endian 16-byte value; externally it marshals to a
// decimal string so it survives JSON's float64 precision limits.
type U128 struct {
	// Lo holds the low 64 bits, Hi the high 64 bits.
	Lo uint64
	Hi uint64
}

// Zero is the additive identity.
var Zero = U128{}

// U128FromUint64 builds a U128 from a plain uint64.
func U128FromUint64(v uint64) U128 {
	return U128{Lo: v}
}

// IsZero reports whether the value is zero.
func (u U128) IsZero() bool {
	return u.Lo == 0 && u.Hi == 0
}

// big returns the value as a *big.Int.
func (u U128) big() *big.Int {
	hi := new(big.Int).SetUint64(u.Hi)
	hi.Lsh(hi, 64)
	lo := new(big.Int).SetUint64(u.Lo)
	return hi.Add(hi, lo)
}

// u128FromBig converts a non-negative big.Int of at most 128 bits into a U128.
// Values that don't fit are rejected by the caller (ParseU128) rather than here.
func u128FromBig(b *big.Int) U128 {
	mask := new(big.Int).SetUint64(^uint64(0))
	lo := new(big.Int).And(b, mask)
	hi := new(big.Int).Rsh(b, 64)
	hi.And(hi, mask)
	return U128{Lo: lo.Uint64(), Hi: hi.Uint64()}
}

// String renders the value as a base-10 string.
func (u U128) String() string {
	return u.big().String()
}

// ParseU128 parses a non-negative base-10 decimal string into a U128.
// Returns an error if the string is not a valid non-negative integer or
// overflows 128 bits.
func ParseU128(s string) (U128, error) {
	if s == "" {
		return U128{}, fmt.Errorf("empty u128 string")
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return U128{}, fmt.Errorf("invalid u128 decimal string %q", s)
	}
	if b.Sign() < 0 {
		return U128{}, fmt.Errorf("u128 must be non-negative")
	}
	if b.BitLen() > 128 {
		return U128{}, fmt.Errorf("u128 overflow")
	}
	return u128FromBig(b), nil
}

// Add returns u+v. Panics on overflow past 128 bits, which should never
// happen for conserved ledger quantities validated before being summed.
func (u U128) Add(v U128) U128 {
	sum := new(big.Int).Add(u.big(), v.big())
	if sum.BitLen() > 128 {
		panic("types: u128 addition overflow")
	}
	return u128FromBig(sum)
}

// Sub returns u-v and a bool reporting whether the subtraction underflowed
// (u < v). On underflow the returned value is the zero value.
func (u U128) Sub(v U128) (U128, bool) {
	if u.Cmp(v) < 0 {
		return U128{}, false
	}
	return u128FromBig(new(big.Int).Sub(u.big(), v.big())), true
}

// Cmp compares u and v, returning -1, 0, or 1.
func (u U128) Cmp(v U128) int {
	if u.Hi != v.Hi {
		if u.Hi < v.Hi {
			return -1
		}
		return 1
	}
	if u.Lo != v.Lo {
		if u.Lo < v.Lo {
			return -1
		}
		return 1
	}
	return 0
}

// LessThan is a readability helper over Cmp.
func (u U128) LessThan(v U128) bool { return u.Cmp(v) < 0 }

// GreaterThan is a readability helper over Cmp.
func (u U128) GreaterThan(v U128) bool { return u.Cmp(v) > 0 }

// Bytes encodes u as a fixed-width 16-byte little-endian slice, the format
// used for state-store values.
func (u U128) Bytes() []byte {
	b := make([]byte, U128Size)
	for i := 0; i < 8; i++ {
		b[i] = byte(u.Lo >> (8 * i))
		b[8+i] = byte(u.Hi >> (8 * i))
	}
	return b
}

// U128FromBytes decodes a fixed-width 16-byte little-endian slice. Missing
// or short input decodes to zero, matching the state store's convention
// that absent keys read back as zero.
func U128FromBytes(b []byte) U128 {
	var u U128
	for i := 0; i < 8 && i < len(b); i++ {
		u.Lo |= uint64(b[i]) << (8 * i)
	}
	for i := 0; i < 8 && 8+i < len(b); i++ {
		u.Hi |= uint64(b[8+i]) << (8 * i)
	}
	return u
}

// MarshalJSON encodes the value as a quoted decimal string.
func (u U128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON decodes a quoted decimal string (or a bare JSON number, for
// leniency) into a U128.
func (u *U128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, perr := ParseU128(s)
		if perr != nil {
			return perr
		}
		*u = v
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid u128 value: %w", err)
	}
	v, perr := ParseU128(n.String())
	if perr != nil {
		return perr
	}
	*u = v
	return nil
}
