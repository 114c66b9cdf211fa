package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrZeroDifficulty   = errors.New("difficulty must be > 0")
	ErrBadDifficulty    = errors.New("block difficulty does not match expected")
)

// maxUint256 is 2^256 - 1.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// PoW implements proof-of-work consensus with an LWMA (linearly weighted
// moving average) difficulty retarget, recomputed every block from the
// last config.LWMAWindow headers.
type PoW struct {
	InitialDifficulty uint64 // Genesis difficulty, used until enough history accrues.
	TargetBlockTime   int    // Target seconds between blocks.

	// Threads controls the number of parallel mining goroutines.
	// 0 or 1 = single-threaded (default). Each goroutine searches a
	// strided partition of the nonce space.
	Threads int
}

// NewPoW creates a new PoW engine.
func NewPoW(difficulty uint64, targetBlockTime int) (*PoW, error) {
	if difficulty == 0 {
		return nil, ErrZeroDifficulty
	}
	return &PoW{
		InitialDifficulty: difficulty,
		TargetBlockTime:   targetBlockTime,
	}, nil
}

// target returns maxUint256 / difficulty as a 256-bit big.Int.
func target(difficulty uint64) *big.Int {
	d := new(big.Int).SetUint64(difficulty)
	return new(big.Int).Div(maxUint256, d)
}

// work returns floor(2^256 / (target(difficulty)+1)), the standard
// inverse-of-target measure of the expected hashes needed to find a
// block at the given difficulty. Used to sum cumulative chain work.
func work(difficulty uint64) *big.Int {
	t := target(difficulty)
	denom := new(big.Int).Add(t, big.NewInt(1))
	return new(big.Int).Div(new(big.Int).Lsh(big.NewInt(1), 256), denom)
}

// Work is the exported form of work, used by chain/reorg fork-choice.
func Work(difficulty uint64) *big.Int {
	return work(difficulty)
}

// VerifyHeader checks that the block header hash meets the stated difficulty.
func (p *PoW) VerifyHeader(header *block.Header) error {
	if header.Difficulty == 0 {
		return ErrZeroDifficulty
	}
	t := target(header.Difficulty)
	hash := header.Hash()
	hashInt := new(big.Int).SetBytes(hash[:])
	if hashInt.Cmp(t) > 0 {
		return ErrInsufficientWork
	}
	return nil
}

// Prepare sets the header's difficulty for mining, computed via LWMA from
// the supplied window of prior headers (oldest first, newest last; fewer
// near genesis). Only the last config.LWMAWindow entries are used.
func (p *PoW) Prepare(header *block.Header, window []*block.Header) error {
	header.Difficulty = p.ExpectedDifficulty(header.Height, window)
	return nil
}

// Seal mines the block by iterating the nonce until the header hash meets the target.
func (p *PoW) Seal(blk *block.Block) error {
	return p.SealWithCancel(context.Background(), blk)
}

// SealWithCancel mines the block with cancellation support. If Threads > 1,
// mining runs in parallel goroutines with strided nonce partitioning.
func (p *PoW) SealWithCancel(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if blk.Header.Difficulty == 0 {
		return ErrZeroDifficulty
	}

	threads := p.Threads
	if threads <= 1 {
		return p.sealSingle(ctx, blk)
	}
	return p.sealParallel(ctx, blk, threads)
}

// headerParts splits the header signing bytes (version,height,prev_hash,
// timestamp,difficulty | nonce | transactions_root) into the portion before
// the nonce and the portion after it, so mining goroutines can hold the
// fixed parts constant and only rewrite the 8 nonce bytes per iteration.
func headerParts(h *block.Header) (prefix, suffix []byte) {
	prefix = make([]byte, 0, 60)
	prefix = binary.BigEndian.AppendUint32(prefix, h.Version)
	prefix = binary.BigEndian.AppendUint64(prefix, h.Height)
	prefix = append(prefix, h.PrevHash[:]...)
	prefix = binary.BigEndian.AppendUint64(prefix, h.Timestamp)
	prefix = binary.BigEndian.AppendUint64(prefix, h.Difficulty)
	suffix = append([]byte(nil), h.TransactionsRoot[:]...)
	return prefix, suffix
}

func (p *PoW) sealSingle(ctx context.Context, blk *block.Block) error {
	t := target(blk.Header.Difficulty)
	prefix, suffix := headerParts(blk.Header)
	buf := make([]byte, len(prefix)+8+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix)+8:], suffix)
	hashInt := new(big.Int)

	for nonce := uint64(0); ; nonce++ {
		if nonce&0xFFFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		binary.BigEndian.PutUint64(buf[len(prefix):], nonce)
		hash := crypto.Hash(buf)
		hashInt.SetBytes(hash[:])
		if hashInt.Cmp(t) <= 0 {
			blk.Header.Nonce = nonce
			return nil
		}
		if nonce == ^uint64(0) {
			return fmt.Errorf("nonce space exhausted")
		}
	}
}

func (p *PoW) sealParallel(ctx context.Context, blk *block.Block, threads int) error {
	t := target(blk.Header.Difficulty)
	prefix, suffix := headerParts(blk.Header)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		nonce uint64
		err   error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		startNonce := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			buf := make([]byte, len(prefix)+8+len(suffix))
			copy(buf, prefix)
			copy(buf[len(prefix)+8:], suffix)
			hashInt := new(big.Int)

			for nonce := startNonce; ; nonce += stride {
				if (nonce/stride)&0xFFFF == 0 && nonce > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				binary.BigEndian.PutUint64(buf[len(prefix):], nonce)
				hash := crypto.Hash(buf)
				hashInt.SetBytes(hash[:])
				if hashInt.Cmp(t) <= 0 {
					select {
					case found <- result{nonce: nonce}:
					default:
					}
					cancel()
					return
				}

				if nonce > ^uint64(0)-stride {
					select {
					case found <- result{err: fmt.Errorf("nonce space exhausted")}:
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return fmt.Errorf("nonce space exhausted")
		}
		if r.err != nil {
			return r.err
		}
		blk.Header.Nonce = r.nonce
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpectedDifficulty computes the next block's difficulty via LWMA
// (linearly weighted moving average of solve times) over window, the most
// recent up-to-config.LWMAWindow headers in ascending height order.
//
// LWMA weights recent solve times more heavily than older ones: solve time
// i (1-indexed from oldest=1 to newest=N) is weighted by i, so a recent
// spike in block time moves difficulty faster than an old one. This is the
// standard Zawy LWMA-1 formula:
//
//	nextDifficulty = (sum(difficulty_i) * targetBlockTime * (N+1)/2) / sum(i * solveTime_i)
//
// with solveTime_i clamped to [1, 6*targetBlockTime] to bound the influence
// of any single outlier (e.g. a clock jump or a long network partition).
func (p *PoW) ExpectedDifficulty(height uint64, window []*block.Header) uint64 {
	if height == 0 {
		return p.InitialDifficulty
	}
	n := len(window)
	if n < 2 {
		return p.InitialDifficulty
	}
	if n > config.LWMAWindow {
		window = window[n-config.LWMAWindow:]
		n = config.LWMAWindow
	}

	target := int64(p.TargetBlockTime)
	if target <= 0 {
		target = 1
	}
	maxSolve := 6 * target

	weightedSolveSum := new(big.Int)
	difficultySum := new(big.Int)

	for i := 1; i < n; i++ {
		solve := int64(window[i].Timestamp) - int64(window[i-1].Timestamp)
		if solve < 1 {
			solve = 1
		}
		if solve > maxSolve {
			solve = maxSolve
		}
		weight := int64(i) // 1-indexed weight within the window.
		weightedSolveSum.Add(weightedSolveSum, big.NewInt(weight*solve))
		difficultySum.Add(difficultySum, new(big.Int).SetUint64(window[i].Difficulty))
	}
	if weightedSolveSum.Sign() <= 0 {
		weightedSolveSum.SetInt64(1)
	}

	k := int64(n-1) * (int64(n-1) + 1) / 2 // Sum of weights 1..(n-1).

	// next = difficultySum * target * k / weightedSolveSum / (n-1)
	// Rearranged to minimize precision loss: (difficultySum * target * k) / (weightedSolveSum)
	numerator := new(big.Int).Mul(difficultySum, big.NewInt(target))
	numerator.Mul(numerator, big.NewInt(k))
	numerator.Div(numerator, big.NewInt(int64(n-1)))

	result := new(big.Int).Div(numerator, weightedSolveSum)

	if result.Sign() <= 0 || !result.IsUint64() {
		return 1
	}
	d := result.Uint64()
	if d < 1 {
		d = 1
	}
	return d
}

// VerifyDifficulty checks that a block header's stated difficulty matches
// the expected difficulty computed from the preceding window of headers.
func (p *PoW) VerifyDifficulty(header *block.Header, window []*block.Header) error {
	expected := p.ExpectedDifficulty(header.Height, window)
	if header.Difficulty != expected {
		return fmt.Errorf("%w: height %d has difficulty %d, want %d",
			ErrBadDifficulty, header.Height, header.Difficulty, expected)
	}
	return nil
}
