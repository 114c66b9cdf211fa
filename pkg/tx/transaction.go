// Package tx defines the account-based transfer transaction and its
// canonical signing encoding.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Transaction is a signed transfer from one address to another.
type Transaction struct {
	From      types.Address `json:"from"`
	To        types.Address `json:"to"`
	Amount    types.U128    `json:"amount"`
	Fee       types.U128    `json:"fee"`
	Nonce     uint64        `json:"nonce"`
	Memo      string        `json:"memo,omitempty"`
	Signature []byte        `json:"signature"`
	PublicKey []byte        `json:"public_key"`
}

// txJSON mirrors Transaction but hex-encodes the byte-slice fields, matching
// the rest of the codebase's hex-over-the-wire convention for raw bytes.
type txJSON struct {
	From      types.Address `json:"from"`
	To        types.Address `json:"to"`
	Amount    types.U128    `json:"amount"`
	Fee       types.U128    `json:"fee"`
	Nonce     uint64        `json:"nonce"`
	Memo      string        `json:"memo,omitempty"`
	Signature string        `json:"signature"`
	PublicKey string        `json:"public_key"`
}

// MarshalJSON encodes the transaction with hex-encoded signature and public key.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(txJSON{
		From:      t.From,
		To:        t.To,
		Amount:    t.Amount,
		Fee:       t.Fee,
		Nonce:     t.Nonce,
		Memo:      t.Memo,
		Signature: hex.EncodeToString(t.Signature),
		PublicKey: hex.EncodeToString(t.PublicKey),
	})
}

// UnmarshalJSON decodes a transaction with hex-encoded signature and public key.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var j txJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	t.From, t.To, t.Amount, t.Fee, t.Nonce, t.Memo = j.From, j.To, j.Amount, j.Fee, j.Nonce, j.Memo
	if j.Signature != "" {
		sig, err := hex.DecodeString(j.Signature)
		if err != nil {
			return err
		}
		t.Signature = sig
	}
	if j.PublicKey != "" {
		pub, err := hex.DecodeString(j.PublicKey)
		if err != nil {
			return err
		}
		t.PublicKey = pub
	}
	return nil
}

// Hash computes the transaction ID: BLAKE3 of the canonical signing bytes.
// Two transactions with identical (from, to, amount, fee, nonce, memo) but
// different signatures hash identically, matching the spec's definition
// that the signed payload — not the signature — identifies the transfer.
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// SigningBytes returns the canonical message a sender signs:
// from_bytes(32) || to_bytes(32) || amount_le(16) || fee_le(16) || nonce_le(8) || memo_utf8(variable)
func (t *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 32+32+16+16+8+len(t.Memo))
	buf = append(buf, t.From[:]...)
	buf = append(buf, t.To[:]...)
	buf = append(buf, t.Amount.Bytes()...)
	buf = append(buf, t.Fee.Bytes()...)
	buf = binary.LittleEndian.AppendUint64(buf, t.Nonce)
	buf = append(buf, []byte(t.Memo)...)
	return buf
}

// Tip is the fee offered above zero, used by the mempool for lane placement,
// replace-by-fee and capacity eviction. Vision Node has no
// separate base-fee concept, so Tip is simply the transaction's Fee.
func (t *Transaction) Tip() types.U128 {
	return t.Fee
}

// IsCoinbase reports whether this transaction is the block's emission
// pseudo-transaction (crediting the miner and treasury splits). Coinbase
// transactions carry the zero address as From and an empty signature.
func (t *Transaction) IsCoinbase() bool {
	return t.From.IsZero() && len(t.Signature) == 0
}
