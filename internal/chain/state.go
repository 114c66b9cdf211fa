package chain

import (
	"math/big"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// State holds the chain's current tip summary, kept in memory and mirrored
// to the store after every block application so it can be recovered on
// restart without replaying the whole chain.
type State struct {
	Height       uint64
	TipHash      types.Hash
	Supply       types.U128
	TipTimestamp uint64

	// CumulativeDifficulty is the sum of work(header.Difficulty) for every
	// block from genesis to the tip, used for fork-choice. It is a *big.Int
	// because a long PoW chain's cumulative work exceeds 128 bits.
	CumulativeDifficulty *big.Int
}

// NewState returns a zeroed State ready for genesis.
func NewState() *State {
	return &State{CumulativeDifficulty: new(big.Int)}
}

// IsGenesis reports whether the chain has not yet applied any block.
func (s *State) IsGenesis() bool {
	return s.Height == 0 && s.TipHash.IsZero()
}
