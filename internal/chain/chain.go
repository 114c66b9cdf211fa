// Package chain implements the blockchain state machine.
package chain

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// RevertedTxHandler is called after a reorg with transactions from reverted
// blocks that are not present in the new branch, so the mempool can
// reconsider them for inclusion in a future block.
type RevertedTxHandler func(txs []*tx.Transaction)

// Chain represents a blockchain instance with state, storage, and consensus.
type Chain struct {
	mu       sync.Mutex // Protects all state mutations (ProcessBlock, Reorg).
	ID       types.ChainID
	state    *State
	blocks   *BlockStore
	ledger   *Ledger
	receipts *ReceiptStore
	db       storage.DB
	engine   consensus.Engine

	genesisHash types.Hash // Hash of the genesis block (immutable).

	maxSupply       types.U128    // Total coin cap (zero value = unlimited).
	blockReward0    types.U128    // Base block subsidy before halving.
	halvingInterval uint64        // Blocks between reward halvings (0 = no halving).
	minerShareBps   uint64        // Miner's share of the block reward, basis points of 10000.
	treasuryAddress types.Address // Recipient of the remaining share, if any.

	feeCollectorAddress types.Address // Recipient of every transfer's fee, independent of coinbase.

	guardianEnabled     bool
	guardianAddress     types.Address
	guardianUntilHeight uint64

	revertedTxHandler RevertedTxHandler
}

// New creates a new chain with the given components, recovering in-memory
// state (tip, height, supply, cumulative difficulty) from db.
func New(id types.ChainID, db storage.DB, engine consensus.Engine) (*Chain, error) {
	if db == nil {
		return nil, fmt.Errorf("storage db is nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("consensus engine is nil")
	}

	blocks := NewBlockStore(db)

	tipHash, height, supply, err := blocks.GetTip()
	if err != nil {
		return nil, fmt.Errorf("recover tip: %w", err)
	}
	cumDiff := blocks.GetCumulativeDifficulty()

	var tipTimestamp uint64
	if !tipHash.IsZero() {
		if tipBlk, err := blocks.GetBlock(tipHash); err == nil {
			tipTimestamp = tipBlk.Header.Timestamp
		}
	}

	var genesisHash types.Hash
	if genBlk, err := blocks.GetBlockByHeight(0); err == nil {
		genesisHash = genBlk.Hash()
	}

	ch := &Chain{
		ID: id,
		state: &State{
			TipHash:              tipHash,
			Height:               height,
			Supply:               supply,
			TipTimestamp:         tipTimestamp,
			CumulativeDifficulty: cumDiff,
		},
		blocks:      blocks,
		ledger:      NewLedger(db),
		receipts:    NewReceiptStore(db),
		db:          db,
		engine:      engine,
		genesisHash: genesisHash,
	}

	// If the node crashed mid-reorg, the ledger may be inconsistent with the
	// persisted tip. Rebuild it from the stored block history.
	if _, found := blocks.GetReorgCheckpoint(); found {
		if err := ch.RebuildLedger(); err != nil {
			return nil, fmt.Errorf("recover from interrupted reorg: %w", err)
		}
	}

	return ch, nil
}

// InitFromGenesis initializes a fresh chain from genesis configuration.
// Returns an error if the chain already has blocks.
func (c *Chain) InitFromGenesis(gen *config.Genesis) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.IsGenesis() {
		return fmt.Errorf("chain already initialized at height %d", c.state.Height)
	}
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}
	if err := c.applyConsensusRules(gen); err != nil {
		return err
	}

	blk, err := CreateGenesisBlock(gen)
	if err != nil {
		return fmt.Errorf("create genesis block: %w", err)
	}

	// Genesis bypasses block.Validate and the miner/treasury coinbase split
	// checks entirely: every genesis transaction is a plain credit, applied
	// directly as one atomic transaction.
	var supply types.U128
	hash := blk.Hash()
	err = c.db.Update(func(txn storage.Txn) error {
		for _, t := range blk.Transactions {
			if err := LedgerCredit(txn, t.To, t.Amount); err != nil {
				return err
			}
			supply = supply.Add(t.Amount)
		}
		if err := putBlockTxn(txn, blk, hash); err != nil {
			return err
		}
		if err := setTipTxn(txn, hash, 0, supply); err != nil {
			return err
		}
		return txn.Put(keyCumDifficulty, []byte(new(big.Int).String()))
	})
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}

	c.state.TipHash = hash
	c.state.Height = 0
	c.state.Supply = supply
	c.state.TipTimestamp = gen.Timestamp
	c.state.CumulativeDifficulty = new(big.Int)
	c.genesisHash = hash

	return nil
}

// ApplyGenesisRules loads the economic and guardian parameters from gen into
// the chain without touching ledger state. Call this on startup for a
// resumed chain (InitFromGenesis already calls it for a fresh one), since
// these parameters are not themselves persisted block-by-block.
func (c *Chain) ApplyGenesisRules(gen *config.Genesis) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyConsensusRules(gen)
}

func (c *Chain) applyConsensusRules(gen *config.Genesis) error {
	r := gen.Protocol.Consensus

	reward, err := types.ParseU128(r.BlockReward)
	if err != nil {
		return fmt.Errorf("block_reward: %w", err)
	}
	c.blockReward0 = reward
	c.halvingInterval = r.HalvingInterval
	c.minerShareBps = r.MinerShareBps

	var maxSupply types.U128
	if r.MaxSupply != "" {
		maxSupply, err = types.ParseU128(r.MaxSupply)
		if err != nil {
			return fmt.Errorf("max_supply: %w", err)
		}
	}
	c.maxSupply = maxSupply

	c.treasuryAddress = types.Address{}
	if r.TreasuryAddress != "" {
		addr, err := types.ParseAddress(r.TreasuryAddress)
		if err != nil {
			return fmt.Errorf("treasury_address: %w", err)
		}
		c.treasuryAddress = addr
	}

	feeCollector, err := types.ParseAddress(r.FeeCollectorAddress)
	if err != nil {
		return fmt.Errorf("fee_collector_address: %w", err)
	}
	c.feeCollectorAddress = feeCollector

	g := gen.Protocol.Guardian
	c.guardianEnabled = g.Enabled
	c.guardianUntilHeight = g.UntilHeight
	c.guardianAddress = types.Address{}
	if g.Enabled {
		addr, err := types.ParseAddress(g.Address)
		if err != nil {
			return fmt.Errorf("guardian address: %w", err)
		}
		c.guardianAddress = addr
	}

	return nil
}

// State returns a copy of the current chain state.
func (c *Chain) State() State {
	return *c.state
}

// Ledger returns the chain's account balance/nonce store.
func (c *Chain) Ledger() *Ledger {
	return c.ledger
}

// Receipts returns the chain's append-only receipt log.
func (c *Chain) Receipts() *ReceiptStore {
	return c.receipts
}

// GetBlock retrieves a block by its hash.
func (c *Chain) GetBlock(hash types.Hash) (*block.Block, error) {
	return c.blocks.GetBlock(hash)
}

// GetBlockByHeight retrieves a block by its height.
func (c *Chain) GetBlockByHeight(height uint64) (*block.Block, error) {
	return c.blocks.GetBlockByHeight(height)
}

// Height returns the current chain height.
func (c *Chain) Height() uint64 {
	return c.state.Height
}

// TipHash returns the hash of the current chain tip.
func (c *Chain) TipHash() types.Hash {
	return c.state.TipHash
}

// TipTimestamp returns the timestamp of the current chain tip.
func (c *Chain) TipTimestamp() uint64 {
	return c.state.TipTimestamp
}

// TreasuryAddress returns the configured treasury split recipient, or the
// zero address if no treasury split is configured.
func (c *Chain) TreasuryAddress() types.Address {
	return c.treasuryAddress
}

// FeeCollectorAddress returns the address credited with every transfer's fee.
func (c *Chain) FeeCollectorAddress() types.Address {
	return c.feeCollectorAddress
}

// HeaderWindow returns up to config.LWMAWindow+1 prior headers ending at
// height-1, for difficulty retarget and for Engine.Prepare.
func (c *Chain) HeaderWindow(height uint64) ([]*block.Header, error) {
	return c.headerWindow(height)
}

// NextReward computes the miner and treasury shares of the block reward a
// block at height = Height()+1 would mint, before transaction fees. It does
// not include collected fees, since those depend on which transactions the
// caller selects for the block.
func (c *Chain) NextReward() (minerShare, treasuryShare types.U128, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reward, err := c.blockRewardAt(c.state.Height + 1)
	if err != nil {
		return types.U128{}, types.U128{}, err
	}
	minerShare, treasuryShare = splitReward(reward, c.minerShareBps)
	return minerShare, treasuryShare, nil
}

// Supply returns the total coins in circulation.
func (c *Chain) Supply() types.U128 {
	return c.state.Supply
}

// SetRevertedTxHandler sets the callback for transactions reverted during a
// reorg. These transactions should be re-added to the mempool if they are
// still valid against the new branch's state.
func (c *Chain) SetRevertedTxHandler(fn RevertedTxHandler) {
	c.revertedTxHandler = fn
}

// RebuildLedger clears the balance/nonce keyspace and replays every block
// from genesis to the current tip, reconstructing account state. Used to
// recover from a crash during reorg where the ledger may be inconsistent
// with the persisted tip.
func (c *Chain) RebuildLedger() error {
	var keys [][]byte
	collect := func(prefix []byte) error {
		return c.db.ForEach(prefix, func(key, _ []byte) error {
			keys = append(keys, append([]byte(nil), key...))
			return nil
		})
	}
	if err := collect([]byte(balancePrefix)); err != nil {
		return fmt.Errorf("scan balances: %w", err)
	}
	if err := collect([]byte(noncePrefix)); err != nil {
		return fmt.Errorf("scan nonces: %w", err)
	}
	if err := c.db.Update(func(txn storage.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}

	savedHeight := c.state.Height
	savedTip := c.state.TipHash
	c.state.Supply = types.U128{}
	c.state.CumulativeDifficulty = new(big.Int)

	for h := uint64(0); h <= savedHeight; h++ {
		blk, err := c.blocks.GetBlockByHeight(h)
		if err != nil {
			return fmt.Errorf("load block at height %d: %w", h, err)
		}

		if h == 0 {
			var supply types.U128
			if err := c.db.Update(func(txn storage.Txn) error {
				for _, t := range blk.Transactions {
					if err := LedgerCredit(txn, t.To, t.Amount); err != nil {
						return err
					}
					supply = supply.Add(t.Amount)
				}
				return nil
			}); err != nil {
				return fmt.Errorf("replay genesis: %w", err)
			}
			c.state.Supply = supply
			continue
		}

		newSupply, newCumDiff, err := c.applyBlock(blk)
		if err != nil {
			return fmt.Errorf("replay block at height %d: %w", h, err)
		}
		c.state.Supply = newSupply
		c.state.CumulativeDifficulty = newCumDiff
	}

	c.state.TipHash = savedTip
	c.state.Height = savedHeight

	if err := c.blocks.SetTip(savedTip, savedHeight, c.state.Supply); err != nil {
		return fmt.Errorf("set tip after rebuild: %w", err)
	}
	if err := c.blocks.SetCumulativeDifficulty(c.state.CumulativeDifficulty); err != nil {
		return fmt.Errorf("set cumulative difficulty after rebuild: %w", err)
	}
	if err := c.blocks.DeleteReorgCheckpoint(); err != nil {
		return fmt.Errorf("delete reorg checkpoint: %w", err)
	}

	return nil
}

// GetTransaction looks up a confirmed transaction by hash via the tx index.
func (c *Chain) GetTransaction(hash types.Hash) (*tx.Transaction, error) {
	_, blockHash, err := c.blocks.GetTxLocation(hash)
	if err != nil {
		return nil, err
	}
	blk, err := c.blocks.GetBlock(blockHash)
	if err != nil {
		return nil, fmt.Errorf("load block for tx: %w", err)
	}
	for _, t := range blk.Transactions {
		if t.Hash() == hash {
			return t, nil
		}
	}
	return nil, fmt.Errorf("tx %s not found in block %s (index corrupt)", hash, blockHash)
}

// GetTransactionLocation looks up a confirmed transaction's containing
// height, block hash, and the transaction itself, for API callers that need
// to report where a transaction confirmed rather than just its contents.
func (c *Chain) GetTransactionLocation(hash types.Hash) (height uint64, blockHash types.Hash, transaction *tx.Transaction, err error) {
	height, blockHash, err = c.blocks.GetTxLocation(hash)
	if err != nil {
		return 0, types.Hash{}, nil, err
	}
	blk, err := c.blocks.GetBlock(blockHash)
	if err != nil {
		return 0, types.Hash{}, nil, fmt.Errorf("load block for tx: %w", err)
	}
	for _, t := range blk.Transactions {
		if t.Hash() == hash {
			return height, blockHash, t, nil
		}
	}
	return 0, types.Hash{}, nil, fmt.Errorf("tx %s not found in block %s (index corrupt)", hash, blockHash)
}
