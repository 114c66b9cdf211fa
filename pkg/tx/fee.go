package tx

import "github.com/Klingon-tech/klingnet-chain/pkg/types"

// CriticalTipThreshold is a Critical-lane tip cutoff of 1000 for use with
// IsCritical. The mempool does not read it: its threshold is
// config.Mempool.CriticalTipThreshold (key mempool.critical_tip, default
// 5*MicroCoin), and no environment variable sets it.
const CriticalTipThreshold = 1000

// IsCritical reports whether a fee qualifies a transaction for the
// Critical mempool lane under the given threshold.
func IsCritical(fee types.U128, threshold uint64) bool {
	return fee.Cmp(types.U128FromUint64(threshold)) >= 0
}
