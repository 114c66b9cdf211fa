package chain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ErrReorgTooDeep is returned when a reorg would revert more than
// config.MaxReorgDepth blocks.
var ErrReorgTooDeep = fmt.Errorf("reorg too deep")

// ErrGenesisReorg is returned when a candidate branch never rejoins the
// active chain before reaching height 0 — it forked from a different
// genesis entirely and cannot be a valid reorg target.
var ErrGenesisReorg = fmt.Errorf("reorg would replace genesis block")

// Reorg compares the branch ending at newTipHash against the current active
// chain and, if the new branch carries more cumulative proof-of-work (or
// equal work and a lexicographically lower tip hash), switches to it:
// reverts the old branch back to the common ancestor, then replays the new
// branch through the normal block-extension path so every consensus and
// ledger check runs exactly as it would for a freshly received block.
// Otherwise newTipHash stays stored but inactive and this is a no-op.
func (c *Chain) Reorg(newTipHash types.Hash) error {
	newBranchNewestFirst, ancestorHash, ancestorHeight, err := c.collectBranch(newTipHash)
	if err != nil {
		return err
	}
	newBranch := reverseBlocks(newBranchNewestFirst)

	if c.state.Height < ancestorHeight {
		return fmt.Errorf("ancestor height %d exceeds current tip height %d", ancestorHeight, c.state.Height)
	}
	depth := c.state.Height - ancestorHeight
	if depth > uint64(config.MaxReorgDepth) {
		return fmt.Errorf("%w: %d blocks", ErrReorgTooDeep, depth)
	}

	oldBranch := make([]*block.Block, 0, depth)
	for h := c.state.Height; h > ancestorHeight; h-- {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("load active block at height %d: %w", h, err)
		}
		oldBranch = append(oldBranch, blk)
	}

	oldWork := new(big.Int)
	for _, blk := range oldBranch {
		oldWork.Add(oldWork, consensus.Work(blk.Header.Difficulty))
	}
	newWork := new(big.Int)
	for _, blk := range newBranch {
		newWork.Add(newWork, consensus.Work(blk.Header.Difficulty))
	}

	if cmp := newWork.Cmp(oldWork); cmp < 0 || (cmp == 0 && bytes.Compare(newTipHash[:], c.state.TipHash[:]) >= 0) {
		return nil // Lighter, or equal work without a lower tip hash: keep the current chain.
	}

	if len(oldBranch) == 0 {
		// The new branch extends straight past the current tip (a pure
		// fork-choice tie broken by arriving later); no revert needed.
		for _, blk := range newBranch {
			if err := c.extendTip(blk); err != nil {
				return fmt.Errorf("reorg: extend with block %s: %w", blk.Hash(), err)
			}
		}
		return nil
	}

	if err := c.blocks.PutReorgCheckpoint(ancestorHeight); err != nil {
		return fmt.Errorf("write reorg checkpoint: %w", err)
	}

	var revertedTxs []*tx.Transaction
	mintedReverted := types.U128{}
	for _, blk := range oldBranch {
		undoBytes, err := c.blocks.GetUndo(blk.Hash())
		if err != nil {
			return fmt.Errorf("load undo for %s: %w", blk.Hash(), err)
		}
		var undo UndoData
		if err := json.Unmarshal(undoBytes, &undo); err != nil {
			return fmt.Errorf("unmarshal undo for %s: %w", blk.Hash(), err)
		}
		if err := c.revertBlock(&undo); err != nil {
			return fmt.Errorf("revert block %s: %w", blk.Hash(), err)
		}
		mintedReverted = mintedReverted.Add(undo.Minted)
		revertedTxs = append(revertedTxs, nonCoinbaseTxs(blk)...)
	}

	ancestorBlk, err := c.blocks.GetBlock(ancestorHash)
	if err != nil {
		return fmt.Errorf("load ancestor block: %w", err)
	}
	ancestorSupply, ok := c.state.Supply.Sub(mintedReverted)
	if !ok {
		return fmt.Errorf("reorg: reverted mint %s exceeds tracked supply %s", mintedReverted, c.state.Supply)
	}
	ancestorCumDiff := new(big.Int).Sub(c.state.CumulativeDifficulty, oldWork)

	c.state.TipHash = ancestorHash
	c.state.Height = ancestorHeight
	c.state.TipTimestamp = ancestorBlk.Header.Timestamp
	c.state.Supply = ancestorSupply
	c.state.CumulativeDifficulty = ancestorCumDiff

	for _, blk := range newBranch {
		if err := c.extendTip(blk); err != nil {
			return fmt.Errorf("reorg: replay block %s: %w", blk.Hash(), err)
		}
	}

	if err := c.blocks.DeleteReorgCheckpoint(); err != nil {
		return fmt.Errorf("clear reorg checkpoint: %w", err)
	}

	if c.revertedTxHandler != nil && len(revertedTxs) > 0 {
		c.revertedTxHandler(revertedTxs)
	}

	return nil
}

// collectBranch walks backward from tipHash via PrevHash links until it
// reaches a block that is also on the currently active chain (the common
// ancestor), returning every block strictly above the ancestor in
// newest-first order.
func (c *Chain) collectBranch(tipHash types.Hash) (newestFirst []*block.Block, ancestorHash types.Hash, ancestorHeight uint64, err error) {
	cur := tipHash
	for {
		blk, err := c.blocks.GetBlock(cur)
		if err != nil {
			return nil, types.Hash{}, 0, fmt.Errorf("load branch block %s: %w", cur, err)
		}
		if c.onActiveChain(blk) {
			return newestFirst, blk.Hash(), blk.Header.Height, nil
		}
		newestFirst = append(newestFirst, blk)
		if blk.Header.Height == 0 {
			return nil, types.Hash{}, 0, ErrGenesisReorg
		}
		cur = blk.Header.PrevHash
	}
}

// onActiveChain reports whether blk is the canonical block at its height.
func (c *Chain) onActiveChain(blk *block.Block) bool {
	canon, err := c.blocks.GetBlockByHeight(blk.Header.Height)
	if err != nil {
		return false
	}
	return canon.Hash() == blk.Hash()
}

// nonCoinbaseTxs returns blk's transfer transactions, excluding its leading
// coinbase-shaped emission transaction(s).
func nonCoinbaseTxs(blk *block.Block) []*tx.Transaction {
	return blk.Transactions[coinbaseCount(blk):]
}

func reverseBlocks(in []*block.Block) []*block.Block {
	out := make([]*block.Block, len(in))
	for i, b := range in {
		out[len(in)-1-i] = b
	}
	return out
}
