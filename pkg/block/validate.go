package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Validation errors.
var (
	ErrNilHeader      = errors.New("block has nil header")
	ErrNoTransactions = errors.New("block has no transactions")
	ErrBadTxRoot      = errors.New("transactions root mismatch")
	ErrBadVersion     = errors.New("unsupported block version")
	ErrZeroTimestamp  = errors.New("block timestamp is zero")
	ErrNoCoinbase     = errors.New("first transaction must be coinbase")
	ErrTooManyTxs     = errors.New("too many transactions in block")
	ErrBlockTooLarge  = errors.New("block too large")
	ErrExtraCoinbase  = errors.New("coinbase transaction outside the emission prefix")
)

// MaxCoinbaseTxs bounds how many coinbase-shaped transactions may open a
// block: at most one crediting the miner (index 0) and one crediting the
// treasury split (index 1). Any coinbase-shaped transaction beyond that is
// rejected as ErrExtraCoinbase.
const MaxCoinbaseTxs = 2

// Block version constants.
const (
	CurrentVersion = 1 // The current block version produced by this software.
	MaxVersion     = 1 // Bump when a fork introduces a new block version.
)

// Validate checks block structure and internal consistency. It does NOT
// verify consensus rules (PoW, guardian, signatures, balances): those are
// chain-level checks performed by internal/chain against live state.
func (b *Block) Validate() error {
	if b.Header == nil {
		return ErrNilHeader
	}
	if b.Header.Version < 1 || b.Header.Version > MaxVersion {
		return fmt.Errorf("%w: got %d, want 1..%d", ErrBadVersion, b.Header.Version, MaxVersion)
	}
	if b.Header.Timestamp == 0 {
		return ErrZeroTimestamp
	}
	if len(b.Transactions) == 0 {
		return ErrNoTransactions
	}
	if len(b.Transactions) > config.MaxBlockTxs {
		return fmt.Errorf("%w: %d txs, max %d", ErrTooManyTxs, len(b.Transactions), config.MaxBlockTxs)
	}

	blockSize := len(b.Header.SigningBytes())
	for _, t := range b.Transactions {
		blockSize += len(t.SigningBytes())
	}
	if blockSize > config.MaxBlockSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrBlockTooLarge, blockSize, config.MaxBlockSize)
	}

	if !b.Transactions[0].IsCoinbase() {
		return ErrNoCoinbase
	}
	if len(b.Transactions) > MaxCoinbaseTxs {
		for i, t := range b.Transactions[MaxCoinbaseTxs:] {
			if t.IsCoinbase() {
				return fmt.Errorf("tx %d: %w", i+MaxCoinbaseTxs, ErrExtraCoinbase)
			}
		}
	}

	txHashes := make([]types.Hash, len(b.Transactions))
	for i, t := range b.Transactions {
		txHashes[i] = t.Hash()
	}
	expectedRoot := ComputeMerkleRoot(txHashes)
	if b.Header.TransactionsRoot != expectedRoot {
		return fmt.Errorf("%w: header=%s computed=%s", ErrBadTxRoot, b.Header.TransactionsRoot, expectedRoot)
	}

	for i, t := range b.Transactions {
		if t.IsCoinbase() {
			continue
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("tx %d: %w", i, err)
		}
	}

	return nil
}

// Hash returns the block header hash.
func (b *Block) Hash() types.Hash {
	if b.Header == nil {
		return types.Hash{}
	}
	return b.Header.Hash()
}
