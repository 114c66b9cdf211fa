package tx

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func TestIsCritical(t *testing.T) {
	cases := []struct {
		fee       uint64
		threshold uint64
		want      bool
	}{
		{999, 1000, false},
		{1000, 1000, true},
		{1001, 1000, true},
		{0, 0, true},
	}
	for _, c := range cases {
		got := IsCritical(types.U128FromUint64(c.fee), c.threshold)
		if got != c.want {
			t.Errorf("IsCritical(%d, %d) = %v, want %v", c.fee, c.threshold, got, c.want)
		}
	}
}

func TestTip_EqualsFee(t *testing.T) {
	txn := signedTx(t, 1000, 42, 1, "")
	if txn.Tip() != txn.Fee {
		t.Errorf("Tip() = %+v, want Fee %+v", txn.Tip(), txn.Fee)
	}
}
