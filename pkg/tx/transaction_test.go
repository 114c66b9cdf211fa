package tx

import (
	"encoding/json"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func signedTx(t *testing.T, amount, fee uint64, nonce uint64, memo string) *Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	from := crypto.AddressFromPubKey(key.PublicKey())
	var to types.Address
	to[0] = 0xAB

	txn := &Transaction{
		From:      from,
		To:        to,
		Amount:    types.U128FromUint64(amount),
		Fee:       types.U128FromUint64(fee),
		Nonce:     nonce,
		Memo:      memo,
		PublicKey: key.PublicKey(),
	}
	sig, err := key.Sign(txn.SigningBytes())
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	txn.Signature = sig
	return txn
}

func TestTransaction_SigningBytesLayout(t *testing.T) {
	txn := signedTx(t, 5000, 50, 1, "pay")
	want := 32 + 32 + 16 + 16 + 8 + len("pay")
	if got := len(txn.SigningBytes()); got != want {
		t.Errorf("SigningBytes length = %d, want %d", got, want)
	}
}

func TestTransaction_HashDeterministic(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	h1 := txn.Hash()
	h2 := txn.Hash()
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}
}

func TestTransaction_VerifySignature(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "hello")
	if err := txn.VerifySignature(); err != nil {
		t.Errorf("VerifySignature() error: %v", err)
	}
}

func TestTransaction_VerifySignature_TamperedNonce(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "hello")
	txn.Nonce = 2
	if err := txn.VerifySignature(); err == nil {
		t.Error("VerifySignature should fail after the signed nonce changes")
	}
}

func TestTransaction_Validate_PublicKeyMismatch(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	other, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	txn.PublicKey = other.PublicKey()
	if err := txn.Validate(); err != ErrPublicKeyMismatch {
		t.Errorf("Validate() error = %v, want %v", err, ErrPublicKeyMismatch)
	}
}

func TestTransaction_Validate_SameSenderRecipient(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	txn.To = txn.From
	if err := txn.Validate(); err != ErrSameSenderRecipient {
		t.Errorf("Validate() error = %v, want %v", err, ErrSameSenderRecipient)
	}
}

func TestTransaction_Validate_ZeroAmount(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "")
	txn.Amount = types.Zero
	if err := txn.Validate(); err != ErrZeroAmount {
		t.Errorf("Validate() error = %v, want %v", err, ErrZeroAmount)
	}
}

func TestTransaction_JSONRoundTrip(t *testing.T) {
	txn := signedTx(t, 1000, 10, 1, "round trip")
	data, err := json.Marshal(txn)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var decoded Transaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	if decoded.Hash() != txn.Hash() {
		t.Error("round-tripped transaction hash should match")
	}
	if err := decoded.VerifySignature(); err != nil {
		t.Errorf("round-tripped signature should verify: %v", err)
	}
}

func TestTransaction_IsCoinbase(t *testing.T) {
	coinbase := &Transaction{To: types.Address{1}, Amount: types.U128FromUint64(1)}
	if !coinbase.IsCoinbase() {
		t.Error("zero From + no signature should be coinbase")
	}

	txn := signedTx(t, 1000, 10, 1, "")
	if txn.IsCoinbase() {
		t.Error("signed transfer should not be coinbase")
	}
}
