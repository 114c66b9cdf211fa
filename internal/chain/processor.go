package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Block processing errors.
var (
	ErrBlockKnown               = errors.New("block already known")
	ErrGenesisViaProcessBlock   = errors.New("genesis block must be applied via InitFromGenesis")
	ErrPrevNotFound             = errors.New("previous block not found")
	ErrBadHeight                = errors.New("block height does not follow parent")
	ErrTimestampTooFuture       = errors.New("block timestamp too far in the future")
	ErrTimestampBeforeParent    = errors.New("block timestamp before parent")
	ErrGuardianViolation        = errors.New("block mined outside the guardian-approved address during the guardian window")
	ErrNonceMismatch            = errors.New("transaction nonce does not match account's next nonce")
	ErrBadCoinbaseTx            = errors.New("invalid coinbase transaction")
	ErrBadCoinbaseAmount        = errors.New("coinbase amount does not match the miner's block reward share")
	ErrBadTreasuryCredit        = errors.New("treasury coinbase credit does not match the configured split")
	ErrMissingTreasuryCredit    = errors.New("treasury split is configured but block has no treasury credit")
	ErrUnexpectedTreasuryCredit = errors.New("block credits a treasury split but none is configured")
	ErrMaxSupplyExceeded        = errors.New("block would mint past the configured max supply")
)

// maxFutureDrift bounds how far into the future a block's timestamp may sit
// relative to the processing node's clock before it is rejected outright.
const maxFutureDrift = 2 * time.Minute

// UndoData records what a block changed in the ledger and block-tx index so
// a reorg can revert it exactly: for every address touched, the
// balance/nonce it had immediately before the block was applied.
type UndoData struct {
	TxHashes      []types.Hash          `json:"tx_hashes"`
	BalanceBefore map[string]types.U128 `json:"balance_before"`
	NonceBefore   map[string]uint64     `json:"nonce_before"`

	// Minted is the net new supply this block created (miner + treasury
	// coinbase shares, excluding recycled fees), so a reorg can roll back
	// Chain.State.Supply without re-deriving it from the block's contents.
	Minted types.U128 `json:"minted"`
}

// ProcessBlock validates a block and applies it to the chain: structural
// checks, consensus checks (PoW, difficulty, guardian), then either extends
// the current tip directly or — if the block continues a different branch —
// stores it and lets Reorg decide whether the new branch should become
// canonical.
func (c *Chain) ProcessBlock(blk *block.Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}

	hash := blk.Hash()
	known, err := c.blocks.HasBlock(hash)
	if err != nil {
		return fmt.Errorf("check known block: %w", err)
	}
	if known {
		return ErrBlockKnown
	}

	if err := blk.Validate(); err != nil {
		return fmt.Errorf("structural validation: %w", err)
	}

	forked, err := c.checkParentLink(blk)
	if err != nil {
		return err
	}

	if forked {
		if err := c.blocks.StoreBlock(blk); err != nil {
			return fmt.Errorf("store forked block: %w", err)
		}
		return c.Reorg(hash)
	}

	return c.extendTip(blk)
}

// checkParentLink reports whether blk continues the current tip (forked ==
// false) or a different, already-known branch (forked == true). It does not
// accept orphans: the parent must already be on the chain in either case.
func (c *Chain) checkParentLink(blk *block.Block) (forked bool, err error) {
	if blk.Header.Height == 0 {
		return false, ErrGenesisViaProcessBlock
	}

	if blk.Header.PrevHash == c.state.TipHash {
		if blk.Header.Height != c.state.Height+1 {
			return false, fmt.Errorf("%w: height %d does not follow tip height %d", ErrBadHeight, blk.Header.Height, c.state.Height)
		}
		return false, nil
	}

	parent, err := c.blocks.GetBlock(blk.Header.PrevHash)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrPrevNotFound, blk.Header.PrevHash)
	}
	if blk.Header.Height != parent.Header.Height+1 {
		return false, fmt.Errorf("%w: height %d does not follow parent height %d", ErrBadHeight, blk.Header.Height, parent.Header.Height)
	}
	return true, nil
}

// extendTip verifies and applies a block that directly follows the current
// tip, then advances in-memory state. Reorg also calls this, once per block
// of the replacement branch, after rolling state back to the fork point —
// from there a branch replay is indistinguishable from normal extension.
func (c *Chain) extendTip(blk *block.Block) error {
	if err := c.verifyConsensus(blk); err != nil {
		return err
	}

	now := uint64(time.Now().Unix())
	if blk.Header.Timestamp > now+uint64(maxFutureDrift.Seconds()) {
		return ErrTimestampTooFuture
	}
	if blk.Header.Timestamp <= c.state.TipTimestamp {
		return ErrTimestampBeforeParent
	}

	newSupply, newCumDiff, err := c.applyBlock(blk)
	if err != nil {
		return err
	}

	c.state.TipHash = blk.Hash()
	c.state.Height = blk.Header.Height
	c.state.TipTimestamp = blk.Header.Timestamp
	c.state.Supply = newSupply
	c.state.CumulativeDifficulty = newCumDiff
	return nil
}

// verifyConsensus checks the guardian rule, the LWMA difficulty retarget,
// and the proof of work itself.
func (c *Chain) verifyConsensus(blk *block.Block) error {
	if err := c.checkGuardian(blk); err != nil {
		return err
	}

	window, err := c.headerWindow(blk.Header.Height)
	if err != nil {
		return fmt.Errorf("load difficulty window: %w", err)
	}
	if pow, ok := c.engine.(*consensus.PoW); ok {
		if err := pow.VerifyDifficulty(blk.Header, window); err != nil {
			return err
		}
	}
	return c.engine.VerifyHeader(blk.Header)
}

// checkGuardian enforces that blocks 1..UntilHeight are mined by the
// configured guardian address, a launch-time safeguard against a silent
// fork before the network has enough independent hashpower to self-police.
func (c *Chain) checkGuardian(blk *block.Block) error {
	if !c.guardianEnabled {
		return nil
	}
	if blk.Header.Height > c.guardianUntilHeight {
		return nil
	}
	if blk.Header.MinerAddress != c.guardianAddress {
		return fmt.Errorf("%w: height %d mined by %s, want %s",
			ErrGuardianViolation, blk.Header.Height, blk.Header.MinerAddress, c.guardianAddress)
	}
	return nil
}

// headerWindow returns up to config.LWMAWindow+1 headers immediately
// preceding height, oldest first, for LWMA retarget calculation.
func (c *Chain) headerWindow(height uint64) ([]*block.Header, error) {
	if height == 0 {
		return nil, nil
	}
	span := uint64(config.LWMAWindow + 1)
	start := uint64(0)
	if height > span {
		start = height - span
	}

	window := make([]*block.Header, 0, height-start)
	for h := start; h < height; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return nil, fmt.Errorf("height %d: %w", h, err)
		}
		window = append(window, blk.Header)
	}
	return window, nil
}

// applyBlock performs the full account-state transition for blk — nonce and
// balance updates for every transfer, coinbase emission verification and
// crediting, and the block/tip/cumulative-difficulty commit — as one atomic
// storage transaction. It returns the resulting supply and cumulative work.
func (c *Chain) applyBlock(blk *block.Block) (types.U128, *big.Int, error) {
	reward, err := c.blockRewardAt(blk.Header.Height)
	if err != nil {
		return types.U128{}, nil, err
	}
	minerShare, treasuryShare := splitReward(reward, c.minerShareBps)

	cbCount := coinbaseCount(blk)
	transfers := blk.Transactions[cbCount:]

	var totalFees types.U128
	for _, t := range transfers {
		if err := t.VerifySignature(); err != nil {
			return types.U128{}, nil, fmt.Errorf("tx %s: %w", t.Hash(), err)
		}
		totalFees = totalFees.Add(t.Fee)
	}

	if err := c.verifyCoinbase(blk, cbCount, minerShare, treasuryShare, totalFees); err != nil {
		return types.U128{}, nil, err
	}

	minted := minerShare.Add(treasuryShare)
	newSupply := c.state.Supply.Add(minted)
	if !c.maxSupply.IsZero() && newSupply.GreaterThan(c.maxSupply) {
		return types.U128{}, nil, fmt.Errorf("%w: supply %s + %s exceeds max %s",
			ErrMaxSupplyExceeded, c.state.Supply, minted, c.maxSupply)
	}
	newCumDiff := new(big.Int).Add(c.state.CumulativeDifficulty, consensus.Work(blk.Header.Difficulty))

	undo := &UndoData{
		TxHashes:      make([]types.Hash, 0, len(blk.Transactions)),
		BalanceBefore: map[string]types.U128{},
		NonceBefore:   map[string]uint64{},
		Minted:        minted,
	}

	hash := blk.Hash()
	err = c.db.Update(func(txn storage.Txn) error {
		for _, t := range blk.Transactions[:cbCount] {
			if err := recordBefore(txn, undo, t.To); err != nil {
				return err
			}
			if err := LedgerCredit(txn, t.To, t.Amount); err != nil {
				return err
			}
			undo.TxHashes = append(undo.TxHashes, t.Hash())
		}

		for _, t := range transfers {
			if err := applyTransfer(txn, t, undo, c.feeCollectorAddress); err != nil {
				return err
			}
			undo.TxHashes = append(undo.TxHashes, t.Hash())
		}

		undoBytes, err := json.Marshal(undo)
		if err != nil {
			return fmt.Errorf("marshal undo: %w", err)
		}
		if err := putBlockTxn(txn, blk, hash); err != nil {
			return err
		}
		if err := txn.Put(undoKey(hash), undoBytes); err != nil {
			return fmt.Errorf("put undo: %w", err)
		}
		if err := setTipTxn(txn, hash, blk.Header.Height, newSupply); err != nil {
			return err
		}
		return txn.Put(keyCumDifficulty, []byte(newCumDiff.String()))
	})
	if err != nil {
		return types.U128{}, nil, err
	}

	return newSupply, newCumDiff, nil
}

// applyTransfer checks a non-coinbase transaction's nonce and balance
// against live state, then debits the sender, credits the recipient, and
// credits feeCollector with the fee — independent of the miner's coinbase,
// so fee accounting never touches the emission schedule. It commits a
// transfer receipt in the same storage transaction, since a transfer's
// receipt is part of the critical ledger-updating path (C6), not a
// best-effort side write.
func applyTransfer(txn storage.Txn, t *tx.Transaction, undo *UndoData, feeCollector types.Address) error {
	if err := recordBefore(txn, undo, t.From); err != nil {
		return err
	}
	if err := recordBefore(txn, undo, t.To); err != nil {
		return err
	}
	if err := recordBefore(txn, undo, feeCollector); err != nil {
		return err
	}

	nonce, err := LedgerNonce(txn, t.From)
	if err != nil {
		return err
	}
	if t.Nonce != nonce {
		return fmt.Errorf("%w: tx %s from %s has nonce %d, want %d",
			ErrNonceMismatch, t.Hash(), t.From, t.Nonce, nonce)
	}

	total := t.Amount.Add(t.Fee)
	if err := LedgerDebit(txn, t.From, total); err != nil {
		return fmt.Errorf("tx %s: %w", t.Hash(), err)
	}
	if err := LedgerCredit(txn, t.To, t.Amount); err != nil {
		return err
	}
	if !t.Fee.IsZero() {
		if err := LedgerCredit(txn, feeCollector, t.Fee); err != nil {
			return err
		}
	}
	if err := LedgerSetNonce(txn, t.From, nonce+1); err != nil {
		return err
	}

	receipt := NewTransferReceipt(t.From, t.To, t.Amount, t.Fee, t.Memo, t.Hash(), true)
	return putReceiptTxn(txn, receipt)
}

// recordBefore snapshots addr's balance and nonce into undo the first time
// addr is touched by the block, so a later revert can restore it exactly.
func recordBefore(txn storage.Txn, undo *UndoData, addr types.Address) error {
	key := addr.String()
	if _, ok := undo.BalanceBefore[key]; ok {
		return nil
	}
	bal, err := LedgerBalance(txn, addr)
	if err != nil {
		return err
	}
	nonce, err := LedgerNonce(txn, addr)
	if err != nil {
		return err
	}
	undo.BalanceBefore[key] = bal
	undo.NonceBefore[key] = nonce
	return nil
}

// revertBlock restores every address undo touched to its pre-block
// balance/nonce and removes the block's transaction-index entries. Used by
// Reorg when rolling the old branch back to the fork point.
func (c *Chain) revertBlock(undo *UndoData) error {
	return c.db.Update(func(txn storage.Txn) error {
		for addrHex, bal := range undo.BalanceBefore {
			addr, err := types.ParseAddress(addrHex)
			if err != nil {
				return fmt.Errorf("corrupt undo address %q: %w", addrHex, err)
			}
			if err := LedgerSetBalance(txn, addr, bal); err != nil {
				return err
			}
		}
		for addrHex, nonce := range undo.NonceBefore {
			addr, err := types.ParseAddress(addrHex)
			if err != nil {
				return fmt.Errorf("corrupt undo address %q: %w", addrHex, err)
			}
			if err := LedgerSetNonce(txn, addr, nonce); err != nil {
				return err
			}
		}
		for _, txHash := range undo.TxHashes {
			if err := txn.Delete(txKey(txHash)); err != nil {
				return err
			}
		}
		return nil
	})
}

// coinbaseCount returns how many leading transactions in blk are
// coinbase-shaped: always at least 1 (block.Validate already guarantees
// index 0 is coinbase), 2 if index 1 is also coinbase (the treasury split).
func coinbaseCount(blk *block.Block) int {
	if len(blk.Transactions) > 1 && blk.Transactions[1].IsCoinbase() {
		return 2
	}
	return 1
}

// verifyCoinbase checks that the block's coinbase transaction(s) credit
// exactly the miner's emission share (index 0, to the header's
// miner_address) and, if a treasury split is configured, exactly the
// treasury's share (index 1, to the configured treasury address). Collected
// fees are not part of this check: they are credited straight to the fee
// collector address by applyTransfer, never re-minted through the coinbase.
func (c *Chain) verifyCoinbase(blk *block.Block, cbCount int, minerShare, treasuryShare, totalFees types.U128) error {
	miner := blk.Transactions[0]
	if miner.To != blk.Header.MinerAddress {
		return fmt.Errorf("%w: coinbase credits %s, header miner_address is %s",
			ErrBadCoinbaseTx, miner.To, blk.Header.MinerAddress)
	}
	if miner.Amount.Cmp(minerShare) != 0 {
		return fmt.Errorf("%w: miner coinbase is %s, want %s",
			ErrBadCoinbaseAmount, miner.Amount, minerShare)
	}

	hasTreasury := !treasuryShare.IsZero() && !c.treasuryAddress.IsZero()
	if hasTreasury {
		if cbCount < 2 {
			return ErrMissingTreasuryCredit
		}
		treasuryTx := blk.Transactions[1]
		if treasuryTx.To != c.treasuryAddress {
			return fmt.Errorf("%w: credits %s, want %s", ErrBadTreasuryCredit, treasuryTx.To, c.treasuryAddress)
		}
		if treasuryTx.Amount.Cmp(treasuryShare) != 0 {
			return fmt.Errorf("%w: treasury coinbase is %s, want %s", ErrBadTreasuryCredit, treasuryTx.Amount, treasuryShare)
		}
	} else if cbCount > 1 {
		return ErrUnexpectedTreasuryCredit
	}

	return nil
}

// blockRewardAt returns the block reward for height, applying halving and
// capping the result so cumulative supply never exceeds maxSupply.
func (c *Chain) blockRewardAt(height uint64) (types.U128, error) {
	reward := c.blockReward0
	if c.halvingInterval > 0 {
		reward = halveU128(reward, height/c.halvingInterval)
	}
	if c.maxSupply.IsZero() {
		return reward, nil
	}
	remaining, ok := c.maxSupply.Sub(c.state.Supply)
	if !ok {
		return types.U128{}, fmt.Errorf("%w: supply %s already exceeds max %s", ErrMaxSupplyExceeded, c.state.Supply, c.maxSupply)
	}
	if reward.GreaterThan(remaining) {
		reward = remaining
	}
	return reward, nil
}

// halveU128 halves v, `halvings` times, saturating to zero instead of
// underflowing for a pathologically large halving count.
func halveU128(v types.U128, halvings uint64) types.U128 {
	if halvings == 0 {
		return v
	}
	if halvings >= 128 {
		return types.U128{}
	}
	b, ok := new(big.Int).SetString(v.String(), 10)
	if !ok {
		return types.U128{}
	}
	b.Rsh(b, uint(halvings))
	out, err := types.ParseU128(b.String())
	if err != nil {
		return types.U128{}
	}
	return out
}

// splitReward divides reward between the miner and the treasury according
// to minerShareBps (basis points of 10000); the remainder, after integer
// division, goes to the treasury so the two shares always sum to reward.
func splitReward(reward types.U128, minerShareBps uint64) (miner, treasury types.U128) {
	if minerShareBps >= 10000 {
		return reward, types.U128{}
	}
	b, ok := new(big.Int).SetString(reward.String(), 10)
	if !ok {
		return reward, types.U128{}
	}
	minerBig := new(big.Int).Mul(b, new(big.Int).SetUint64(minerShareBps))
	minerBig.Div(minerBig, big.NewInt(10000))
	minerU, err := types.ParseU128(minerBig.String())
	if err != nil {
		return reward, types.U128{}
	}
	treasuryU, ok := reward.Sub(minerU)
	if !ok {
		treasuryU = types.U128{}
	}
	return minerU, treasuryU
}
