// Package miner implements block production for Vision Node.
package miner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// templateTTL bounds how long a cached mining template may be reused before
// a fresh one is built, so repeated work requests within the window don't
// re-run transaction selection and merkle-root computation.
const templateTTL = 500 * time.Millisecond

// ChainState provides the read-only chain access the miner needs to build a
// template: the tip to extend, the difficulty window, and the reward this
// block would mint.
type ChainState interface {
	Height() uint64
	TipHash() types.Hash
	TipTimestamp() uint64
	TreasuryAddress() types.Address
	HeaderWindow(height uint64) ([]*block.Header, error)
	NextReward() (minerShare, treasuryShare types.U128, err error)
}

// MempoolSelector selects transactions for block inclusion. Transactions are
// returned in the order the pool wants them mined (the mempool's own
// implementation: Critical lane before Bulk, FIFO within a lane, each
// sender's nonces ascending); the miner keeps that order in the block.
type MempoolSelector interface {
	SelectForBlock(limit int) []*tx.Transaction
}

// ReadinessChecker reports whether this node should be actively searching
// for a block solution right now. A nil checker means always eligible,
// useful for tests and for running a miner detached from a live network.
type ReadinessChecker interface {
	IsMiningEligible() bool
}

// Miner produces new block templates and seals them via proof-of-work.
type Miner struct {
	chain       ChainState
	engine      consensus.Engine
	pool        MempoolSelector
	readiness   ReadinessChecker
	minerAddr   types.Address
	maxBlockTxs int

	mu       sync.Mutex
	cached   *block.Block
	cachedAt time.Time
}

// New creates a new block producer. minerAddr receives the miner's emission
// share of each block's coinbase; the chain's configured treasury address,
// if any, receives the remaining share automatically. Transfer fees are
// credited straight to the chain's fee collector address when the block is
// applied, not folded into this coinbase.
func New(chain ChainState, engine consensus.Engine, pool MempoolSelector, minerAddr types.Address) *Miner {
	return &Miner{
		chain:       chain,
		engine:      engine,
		pool:        pool,
		minerAddr:   minerAddr,
		maxBlockTxs: config.MaxBlockTxs,
	}
}

// SetReadinessChecker installs the eligibility gate consulted by Mine.
func (m *Miner) SetReadinessChecker(r ReadinessChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readiness = r
}

// InvalidateTemplate discards the cached mining template. Called on block
// acceptance and on reorg so the next template reflects the new tip.
func (m *Miner) InvalidateTemplate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cached = nil
}

// Template returns the current mining template (an unsealed block: header
// fields set except Nonce, transactions selected and merkle root computed),
// reusing the cached one if it is younger than templateTTL.
func (m *Miner) Template() (*block.Block, error) {
	m.mu.Lock()
	if m.cached != nil && time.Since(m.cachedAt) < templateTTL {
		cached := m.cached
		m.mu.Unlock()
		return cached, nil
	}
	m.mu.Unlock()

	blk, err := m.buildTemplate(uint64(time.Now().Unix()))
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cached = blk
	m.cachedAt = time.Now()
	m.mu.Unlock()
	return blk, nil
}

// Mine runs the cooperative per-worker mining loop described for C8: while
// eligible, it fetches a template, searches for a solution, and on success
// invokes onSolved with the sealed block. onSolved is responsible for
// applying the block to the chain and broadcasting it; a non-nil return
// leaves the template cache untouched so the same template can be retried
// (e.g. the block lost a race with another miner and was rejected as
// already known). Mine returns when ctx is cancelled.
func (m *Miner) Mine(ctx context.Context, onSolved func(*block.Block) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if m.readiness != nil && !m.readiness.IsMiningEligible() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}

		template, err := m.Template()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}

		sealed := template.Clone()
		if err := m.seal(ctx, sealed); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if err := onSolved(sealed); err != nil {
			continue
		}
		m.InvalidateTemplate()
	}
}

// ProduceBlock builds, seals, and returns a new block using the current time.
// The block is NOT applied to the chain — the caller must call ProcessBlock.
func (m *Miner) ProduceBlock() (*block.Block, error) {
	return m.produceBlock(context.Background(), uint64(time.Now().Unix()))
}

// ProduceBlockAt builds and seals a block with the given timestamp, bumped
// to at least parentTimestamp+1 to guarantee monotonicity.
func (m *Miner) ProduceBlockAt(timestamp uint64) (*block.Block, error) {
	return m.produceBlock(context.Background(), timestamp)
}

// ProduceBlockCtx builds and seals a block with cancellation support. When
// the context is cancelled, PoW sealing stops immediately.
func (m *Miner) ProduceBlockCtx(ctx context.Context) (*block.Block, error) {
	return m.produceBlock(ctx, uint64(time.Now().Unix()))
}

func (m *Miner) produceBlock(ctx context.Context, timestamp uint64) (*block.Block, error) {
	blk, err := m.buildTemplate(timestamp)
	if err != nil {
		return nil, err
	}
	if err := m.seal(ctx, blk); err != nil {
		return nil, err
	}
	return blk, nil
}

// buildTemplate selects transactions, assembles the coinbase set, and
// prepares an unsealed header (Nonce left at zero). It does not run the
// proof-of-work search.
func (m *Miner) buildTemplate(timestamp uint64) (*block.Block, error) {
	if parentTS := m.chain.TipTimestamp(); timestamp <= parentTS {
		timestamp = parentTS + 1
	}

	height := m.chain.Height() + 1
	reserved := 1 // coinbase
	minerShare, treasuryShare, err := m.chain.NextReward()
	if err != nil {
		return nil, fmt.Errorf("compute block reward: %w", err)
	}
	hasTreasury := !treasuryShare.IsZero() && !m.chain.TreasuryAddress().IsZero()
	if hasTreasury {
		reserved = 2
	}

	var selected []*tx.Transaction
	if m.pool != nil {
		// SelectForBlock already orders its result so that, for every
		// sender with more than one pending transfer, nonces appear
		// ascending and contiguous — that order must be preserved verbatim,
		// since block application debits/credits transfers in array order
		// and requires each sender's nonce to advance by exactly one at a
		// time. Re-sorting here (e.g. by hash) would silently reorder a
		// sender's own transfers and make the block unappliable.
		selected = m.pool.SelectForBlock(m.maxBlockTxs - reserved)
	}
	coinbaseTxs := []*tx.Transaction{BuildCoinbase(m.minerAddr, minerShare)}
	if hasTreasury {
		coinbaseTxs = append(coinbaseTxs, BuildCoinbase(m.chain.TreasuryAddress(), treasuryShare))
	}

	txs := make([]*tx.Transaction, 0, len(coinbaseTxs)+len(selected))
	txs = append(txs, coinbaseTxs...)
	txs = append(txs, selected...)

	txHashes := make([]types.Hash, len(txs))
	for i, t := range txs {
		txHashes[i] = t.Hash()
	}
	merkle := block.ComputeMerkleRoot(txHashes)

	window, err := m.chain.HeaderWindow(height)
	if err != nil {
		return nil, fmt.Errorf("load difficulty window: %w", err)
	}

	header := &block.Header{
		Version:          block.CurrentVersion,
		Height:           height,
		PrevHash:         m.chain.TipHash(),
		Timestamp:        timestamp,
		TransactionsRoot: merkle,
		MinerAddress:     m.minerAddr,
	}
	if err := m.engine.Prepare(header, window); err != nil {
		return nil, fmt.Errorf("prepare header: %w", err)
	}

	return block.NewBlock(header, txs), nil
}

func (m *Miner) seal(ctx context.Context, blk *block.Block) error {
	if pow, ok := m.engine.(*consensus.PoW); ok {
		if err := pow.SealWithCancel(ctx, blk); err != nil {
			return fmt.Errorf("seal block: %w", err)
		}
		return nil
	}
	if err := m.engine.Seal(blk); err != nil {
		return fmt.Errorf("seal block: %w", err)
	}
	return nil
}

// BuildCoinbase creates a coinbase-shaped credit transaction: zero sender
// address, no signature, the full amount credited to addr.
func BuildCoinbase(addr types.Address, amount types.U128) *tx.Transaction {
	return &tx.Transaction{
		To:     addr,
		Amount: amount,
	}
}
