package tx

import (
	"errors"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Validation errors.
var (
	ErrSameSenderRecipient = errors.New("from and to must differ")
	ErrZeroAmount          = errors.New("amount must be greater than zero")
	ErrMissingSignature    = errors.New("transaction missing signature")
	ErrMissingPublicKey    = errors.New("transaction missing public key")
	ErrBadPublicKeyLength  = errors.New("public key must be 32 bytes")
	ErrBadSignatureLength  = errors.New("signature must be 64 bytes")
	ErrPublicKeyMismatch   = errors.New("public key does not match from address")
	ErrInvalidSignature    = errors.New("signature verification failed")
	ErrMemoTooLarge        = errors.New("memo exceeds maximum size")
)

// MaxMemoBytes bounds the memo field to keep transaction size predictable.
const MaxMemoBytes = 256

// Validate checks structural rules that do not require chain state:
// address distinctness, non-zero amount, key/signature shape, memo size.
// It does not check the account nonce or balance (those require state).
func (t *Transaction) Validate() error {
	if t.From == t.To {
		return ErrSameSenderRecipient
	}
	if t.Amount.IsZero() {
		return ErrZeroAmount
	}
	if len(t.Memo) > MaxMemoBytes {
		return ErrMemoTooLarge
	}
	if len(t.PublicKey) == 0 {
		return ErrMissingPublicKey
	}
	if len(t.PublicKey) != types.AddressSize {
		return ErrBadPublicKeyLength
	}
	if len(t.Signature) == 0 {
		return ErrMissingSignature
	}
	if len(t.Signature) != 64 {
		return ErrBadSignatureLength
	}

	derived := crypto.AddressFromPubKey(t.PublicKey)
	if derived != t.From {
		return ErrPublicKeyMismatch
	}

	return nil
}

// VerifySignature checks the Ed25519 signature over the canonical message.
func (t *Transaction) VerifySignature() error {
	if !crypto.VerifySignature(t.SigningBytes(), t.Signature, t.PublicKey) {
		return ErrInvalidSignature
	}
	return nil
}
