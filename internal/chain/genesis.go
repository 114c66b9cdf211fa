package chain

import (
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// CreateGenesisBlock builds the genesis block from the genesis configuration.
// The genesis block has height 0, a zero PrevHash, and one coinbase-shaped
// transaction per allocation entry with a nonzero amount (From is the zero
// address, no signature — see tx.Transaction.IsCoinbase), or a single
// zero-value one when no entry has an amount. A regular mined block may
// carry only one coinbase at index 0; genesis is the one exception, applied
// directly by Chain.InitFromGenesis without going through block.Validate.
func CreateGenesisBlock(gen *config.Genesis) (*block.Block, error) {
	if gen == nil {
		return nil, fmt.Errorf("genesis config is nil")
	}

	txs, err := buildAllocTxs(gen.Alloc)
	if err != nil {
		return nil, fmt.Errorf("build genesis allocations: %w", err)
	}

	txHashes := make([]types.Hash, len(txs))
	for i, t := range txs {
		txHashes[i] = t.Hash()
	}
	root := block.ComputeMerkleRoot(txHashes)

	header := &block.Header{
		Version:          block.CurrentVersion,
		Height:           0,
		PrevHash:         types.Hash{},
		Timestamp:        gen.Timestamp,
		Difficulty:       gen.Protocol.Consensus.InitialDifficulty,
		TransactionsRoot: root,
	}

	return block.NewBlock(header, txs), nil
}

// buildAllocTxs builds one coinbase-shaped transaction per genesis
// allocation, sorted by address for deterministic ordering (and therefore a
// deterministic transactions root / genesis hash).
func buildAllocTxs(alloc map[string]string) ([]*tx.Transaction, error) {
	addrs := make([]string, 0, len(alloc))
	for addr := range alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	var txs []*tx.Transaction
	for _, addrStr := range addrs {
		addr, err := types.ParseAddress(addrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		amount, err := types.ParseU128(alloc[addrStr])
		if err != nil {
			return nil, fmt.Errorf("invalid alloc amount for %q: %w", addrStr, err)
		}
		if amount.IsZero() {
			continue
		}
		txs = append(txs, &tx.Transaction{
			To:     addr,
			Amount: amount,
			Memo:   "genesis",
		})
	}

	if len(txs) == 0 {
		// Every genesis needs at least one transaction for a valid
		// transactions root; emit a zero-value credit to the zero address.
		txs = append(txs, &tx.Transaction{Memo: "genesis"})
	}

	return txs, nil
}
