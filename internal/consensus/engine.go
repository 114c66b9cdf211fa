// Package consensus defines consensus engine interfaces.
package consensus

import "github.com/Klingon-tech/klingnet-chain/pkg/block"

// Engine is the interface for consensus implementations. Prepare takes the
// window of prior headers (oldest first) that the retarget algorithm needs;
// PoW uses up to config.LWMAWindow of them.
type Engine interface {
	VerifyHeader(header *block.Header) error
	Prepare(header *block.Header, window []*block.Header) error
	Seal(blk *block.Block) error
}
