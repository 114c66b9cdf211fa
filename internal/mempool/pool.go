// Package mempool manages pending transfers waiting for block inclusion,
// split into a Critical lane (tip at or above a configurable threshold) and a
// Bulk lane for everything else.
package mempool

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Lane identifies which of the two admission/ordering lanes an entry sits in.
type Lane string

const (
	LaneCritical Lane = "critical"
	LaneBulk     Lane = "bulk"
)

// Admission errors.
var (
	ErrBadSignature    = errors.New("transaction signature verification failed")
	ErrFeeTooLow       = errors.New("transaction fee below minimum")
	ErrMempoolFull     = errors.New("mempool is full")
	ErrRbfTipNotHigher = errors.New("replacement transaction does not pay a strictly higher tip")
)

// ErrNonceNotSequential reports the nonce a sender's next accepted transfer
// must carry, given the sender's current on-chain nonce plus any already
// pending transfers chained ahead of it.
type ErrNonceNotSequential struct {
	Expected uint64
	Got      uint64
}

func (e *ErrNonceNotSequential) Error() string {
	return fmt.Sprintf("nonce not sequential: expected %d, got %d", e.Expected, e.Got)
}

// NonceSource reports an address's next-expected nonce from confirmed
// chain state. *chain.Ledger satisfies this directly.
type NonceSource interface {
	Nonce(addr types.Address) (uint64, error)
}

// Entry is a pending transaction tracked by the pool.
type Entry struct {
	TxHash      types.Hash
	Tx          *tx.Transaction
	Lane        Lane
	EntryTSMs   int64
	EntryHeight uint64
}

// Stats summarizes pool occupancy for the RPC mempool listing endpoint.
type Stats struct {
	CriticalCount int
	BulkCount     int
	TotalCount    int
}

// maxSelectPasses bounds the number of scans SelectForBlock makes over its
// candidate list to pick up nonce chains that span both lanes, so a
// pathological mempool can't make block building scan quadratically without
// bound.
const maxSelectPasses = 8

// Pool holds unconfirmed transfers, indexed by hash and by (sender, nonce)
// for replace-by-fee lookups.
type Pool struct {
	mu                   sync.Mutex
	entries              map[types.Hash]*Entry
	bySenderNonce        map[types.Address]map[uint64]types.Hash
	maxSize              int
	criticalTipThreshold types.U128
	ttl                  time.Duration
	nonces               NonceSource
	policy               *Policy
}

// New creates an empty pool. maxSize <= 0 defaults to 10,000 entries, the
// mempool_max named in the admission policy.
func New(maxSize int, criticalTipThreshold uint64, ttl time.Duration, nonces NonceSource) *Pool {
	if maxSize <= 0 {
		maxSize = 10_000
	}
	if ttl <= 0 {
		ttl = 3600 * time.Second
	}
	return &Pool{
		entries:              make(map[types.Hash]*Entry),
		bySenderNonce:        make(map[types.Address]map[uint64]types.Hash),
		maxSize:              maxSize,
		criticalTipThreshold: types.U128FromUint64(criticalTipThreshold),
		ttl:                  ttl,
		nonces:               nonces,
		policy:               DefaultPolicy(),
	}
}

// SetPolicy replaces the pool's node-local acceptance policy.
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

func laneFor(t *tx.Transaction, threshold types.U128) Lane {
	if t.Tip().Cmp(threshold) >= 0 {
		return LaneCritical
	}
	return LaneBulk
}

// Submit validates and admits a transaction, returning its hash. Resubmitting
// an identical transaction already present is idempotent and returns the
// same hash with no error, matching the mempool's idempotence guarantee.
func (p *Pool) Submit(t *tx.Transaction, currentHeight uint64) (types.Hash, error) {
	if err := t.Validate(); err != nil {
		return types.Hash{}, err
	}
	if err := t.VerifySignature(); err != nil {
		return types.Hash{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.policy != nil {
		if err := p.policy.Check(t); err != nil {
			return types.Hash{}, err
		}
	}

	txHash := t.Hash()
	if _, exists := p.entries[txHash]; exists {
		return txHash, nil
	}

	expected, err := p.nextExpectedNonceLocked(t.From)
	if err != nil {
		return types.Hash{}, fmt.Errorf("read sender nonce: %w", err)
	}

	senderSlots := p.bySenderNonce[t.From]
	if existingHash, replacing := senderSlots[t.Nonce]; replacing {
		existing := p.entries[existingHash]
		if t.Tip().Cmp(existing.Tx.Tip()) <= 0 {
			return types.Hash{}, ErrRbfTipNotHigher
		}
		p.removeLocked(existingHash)
	} else if t.Nonce != expected {
		return types.Hash{}, &ErrNonceNotSequential{Expected: expected, Got: t.Nonce}
	}

	lane := laneFor(t, p.criticalTipThreshold)

	if len(p.entries) >= p.maxSize {
		lowestHash, lowestTip, found := p.lowestTipInLaneLocked(lane)
		if !found || t.Tip().Cmp(lowestTip) <= 0 {
			return types.Hash{}, ErrMempoolFull
		}
		p.removeLocked(lowestHash)
	}

	e := &Entry{
		TxHash:      txHash,
		Tx:          t,
		Lane:        lane,
		EntryTSMs:   time.Now().UnixMilli(),
		EntryHeight: currentHeight,
	}
	p.entries[txHash] = e
	if p.bySenderNonce[t.From] == nil {
		p.bySenderNonce[t.From] = make(map[uint64]types.Hash)
	}
	p.bySenderNonce[t.From][t.Nonce] = txHash

	return txHash, nil
}

// nextExpectedNonceLocked returns the nonce a new transfer from addr must
// carry: the chain's current nonce for addr, advanced by however many
// already-pending transfers form an unbroken chain ahead of it. Must be
// called with p.mu held.
func (p *Pool) nextExpectedNonceLocked(addr types.Address) (uint64, error) {
	base, err := p.nonces.Nonce(addr)
	if err != nil {
		return 0, err
	}
	for {
		if _, pending := p.bySenderNonce[addr][base]; !pending {
			return base, nil
		}
		base++
	}
}

// lowestTipInLaneLocked finds the entry with the lowest tip in lane, for
// capacity-eviction comparisons. Must be called with p.mu held.
func (p *Pool) lowestTipInLaneLocked(lane Lane) (hash types.Hash, tip types.U128, found bool) {
	for h, e := range p.entries {
		if e.Lane != lane {
			continue
		}
		if !found || e.Tx.Tip().Cmp(tip) < 0 {
			hash, tip, found = h, e.Tx.Tip(), true
		}
	}
	return hash, tip, found
}

// Remove drops a transaction from the pool by hash.
func (p *Pool) Remove(txHash types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txHash)
}

func (p *Pool) removeLocked(txHash types.Hash) {
	e, exists := p.entries[txHash]
	if !exists {
		return
	}
	delete(p.entries, txHash)
	if slots := p.bySenderNonce[e.Tx.From]; slots != nil {
		delete(slots, e.Tx.Nonce)
		if len(slots) == 0 {
			delete(p.bySenderNonce, e.Tx.From)
		}
	}
}

// RemoveConfirmed drops every transaction that was just included in an
// applied block.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.Hash())
	}
}

// SweepTTL removes entries older than the pool's configured TTL, relative to
// now. It returns the number of entries removed.
func (p *Pool) SweepTTL(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := now.Add(-p.ttl).UnixMilli()
	var stale []types.Hash
	for h, e := range p.entries {
		if e.EntryTSMs < cutoff {
			stale = append(stale, h)
		}
	}
	for _, h := range stale {
		p.removeLocked(h)
	}
	return len(stale)
}

// Get returns the pool entry for txHash, if present.
func (p *Pool) Get(txHash types.Hash) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[txHash]
	return e, ok
}

// Has reports whether txHash is currently pending.
func (p *Pool) Has(txHash types.Hash) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[txHash]
	return ok
}

// Count returns the total number of pending transactions.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Stats summarizes current lane occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var s Stats
	for _, e := range p.entries {
		if e.Lane == LaneCritical {
			s.CriticalCount++
		} else {
			s.BulkCount++
		}
	}
	s.TotalCount = s.CriticalCount + s.BulkCount
	return s
}

// List returns up to limit entries from the requested lane ("all", "critical",
// or "bulk"), ordered FIFO (entry timestamp, then hash) within each lane.
func (p *Pool) List(laneFilter string, limit int) (Stats, []*Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{}
	var out []*Entry
	for _, lane := range []Lane{LaneCritical, LaneBulk} {
		ordered := p.orderedLaneLocked(lane)
		if lane == LaneCritical {
			stats.CriticalCount = len(ordered)
		} else {
			stats.BulkCount = len(ordered)
		}
		if laneFilter == "all" || laneFilter == "" || Lane(laneFilter) == lane {
			for _, e := range ordered {
				out = append(out, e)
			}
		}
	}
	stats.TotalCount = stats.CriticalCount + stats.BulkCount

	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return stats, out
}

// orderedLaneLocked returns lane's entries sorted FIFO by (entry_ts_ms,
// tx_hash). Must be called with p.mu held.
func (p *Pool) orderedLaneLocked(lane Lane) []*Entry {
	var entries []*Entry
	for _, e := range p.entries {
		if e.Lane == lane {
			entries = append(entries, e)
		}
	}
	sortEntries(entries)
	return entries
}

func sortEntries(entries []*Entry) {
	// Simple insertion sort: lane sizes are bounded by mempool_max and this
	// runs only on listing/selection, not on the hot Submit path.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entryLess(entries[j], entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func entryLess(a, b *Entry) bool {
	if a.EntryTSMs != b.EntryTSMs {
		return a.EntryTSMs < b.EntryTSMs
	}
	return bytes.Compare(a.TxHash[:], b.TxHash[:]) < 0
}

// SelectForBlock returns up to maxTxs pending transactions for the miner to
// include, drawing Critical entries before Bulk, FIFO within each lane, and
// never returning a sender's transaction out of nonce order: a higher-nonce
// transfer is only selected once every lower pending nonce for that sender
// has already been selected in this same call.
func (p *Pool) SelectForBlock(maxTxs int) []*tx.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if maxTxs <= 0 {
		return nil
	}

	candidates := append(p.orderedLaneLocked(LaneCritical), p.orderedLaneLocked(LaneBulk)...)

	nextNonce := map[types.Address]uint64{}
	included := map[types.Hash]bool{}
	selected := make([]*tx.Transaction, 0, maxTxs)

	for pass := 0; pass < maxSelectPasses && len(selected) < maxTxs; pass++ {
		progressed := false
		for _, e := range candidates {
			if len(selected) >= maxTxs {
				break
			}
			if included[e.TxHash] {
				continue
			}
			expected, ok := nextNonce[e.Tx.From]
			if !ok {
				n, err := p.nonces.Nonce(e.Tx.From)
				if err != nil {
					continue
				}
				expected = n
			}
			if e.Tx.Nonce != expected {
				continue
			}
			selected = append(selected, e.Tx)
			included[e.TxHash] = true
			nextNonce[e.Tx.From] = expected + 1
			progressed = true
		}
		if !progressed {
			break
		}
	}

	return selected
}
