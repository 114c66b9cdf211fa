// Package block defines block types and validation.
package block

import "github.com/Klingon-tech/klingnet-chain/pkg/tx"

// Block represents a block in the chain.
type Block struct {
	Header       *Header           `json:"header"`
	Transactions []*tx.Transaction `json:"transactions"`
}

// NewBlock creates a new block with the given header and transactions.
func NewBlock(header *Header, txs []*tx.Transaction) *Block {
	return &Block{
		Header:       header,
		Transactions: txs,
	}
}

// Clone returns a deep copy of the header (so sealing one copy's Nonce does
// not mutate another) with a copied transaction slice whose elements are the
// same *tx.Transaction pointers, since transactions are never mutated once
// selected into a template.
func (b *Block) Clone() *Block {
	header := *b.Header
	txs := make([]*tx.Transaction, len(b.Transactions))
	copy(txs, b.Transactions)
	return &Block{
		Header:       &header,
		Transactions: txs,
	}
}
