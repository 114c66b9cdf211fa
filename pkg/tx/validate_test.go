package tx

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func TestValidate_MissingSignature(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	txn.Signature = nil
	if err := txn.Validate(); err != ErrMissingSignature {
		t.Errorf("Validate() error = %v, want %v", err, ErrMissingSignature)
	}
}

func TestValidate_BadSignatureLength(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	txn.Signature = txn.Signature[:32]
	if err := txn.Validate(); err != ErrBadSignatureLength {
		t.Errorf("Validate() error = %v, want %v", err, ErrBadSignatureLength)
	}
}

func TestValidate_MissingPublicKey(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	txn.PublicKey = nil
	if err := txn.Validate(); err != ErrMissingPublicKey {
		t.Errorf("Validate() error = %v, want %v", err, ErrMissingPublicKey)
	}
}

func TestValidate_BadPublicKeyLength(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	txn.PublicKey = txn.PublicKey[:16]
	if err := txn.Validate(); err != ErrBadPublicKeyLength {
		t.Errorf("Validate() error = %v, want %v", err, ErrBadPublicKeyLength)
	}
}

func TestValidate_MemoTooLarge(t *testing.T) {
	big := make([]byte, MaxMemoBytes+1)
	txn := signedTx(t, 1000, 10, 1, string(big))
	if err := txn.Validate(); err != ErrMemoTooLarge {
		t.Errorf("Validate() error = %v, want %v", err, ErrMemoTooLarge)
	}
}

func TestValidate_MemoAtLimit(t *testing.T) {
	ok := make([]byte, MaxMemoBytes)
	txn := signedTx(t, 1000, 10, 1, string(ok))
	if err := txn.Validate(); err != nil {
		t.Errorf("memo at the size limit should validate: %v", err)
	}
}

func TestValidate_Valid(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "hi")
	if err := txn.Validate(); err != nil {
		t.Errorf("well-formed transaction should validate: %v", err)
	}
}

func TestVerifySignature_CorruptedSignature(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	txn.Signature[0] ^= 0xFF
	if err := txn.VerifySignature(); err != ErrInvalidSignature {
		t.Errorf("VerifySignature() error = %v, want %v", err, ErrInvalidSignature)
	}
}

func TestVerifySignature_WrongKey(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	sig, err := other.Sign(txn.SigningBytes())
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	txn.Signature = sig
	if err := txn.VerifySignature(); err != ErrInvalidSignature {
		t.Errorf("VerifySignature() with a foreign signature should fail")
	}
}

func TestValidate_AddressEqualityUsesRawBytes(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	var same types.Address
	copy(same[:], txn.From[:])
	txn.To = same
	if err := txn.Validate(); err != ErrSameSenderRecipient {
		t.Errorf("Validate() error = %v, want %v", err, ErrSameSenderRecipient)
	}
}
