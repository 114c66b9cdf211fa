package mempool

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// DefaultMaxTxSize is the maximum transaction size in bytes (signing bytes),
// the per-tx size cap the admission policy leaves configurable.
const DefaultMaxTxSize = 16_384

// Policy defines transaction acceptance rules layered on top of the
// structural and signature checks in tx.Transaction.Validate, tunable
// per node independent of consensus.
type Policy struct {
	MaxTxSize int        // Maximum signing-byte size (0 disables the check).
	MinFee    types.U128 // Minimum fee accepted regardless of lane (zero value disables).
}

// DefaultPolicy returns a policy with sensible defaults: a size cap and no
// minimum fee beyond what lane placement already implies.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize: DefaultMaxTxSize,
	}
}

// Check validates a transaction against policy rules not already covered by
// tx.Transaction.Validate.
func (p *Policy) Check(transaction *tx.Transaction) error {
	if p.MaxTxSize > 0 {
		if size := len(transaction.SigningBytes()); size > p.MaxTxSize {
			return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
		}
	}
	if !p.MinFee.IsZero() && transaction.Fee.Cmp(p.MinFee) < 0 {
		return fmt.Errorf("%w: fee %s below minimum %s", ErrFeeTooLow, transaction.Fee, p.MinFee)
	}
	return nil
}
