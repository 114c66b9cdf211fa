package chain

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// ReceiptKind tags the state change a Receipt records. The set is open —
// any string is valid on the wire — but the common kinds get named
// constants so callers in this tree don't repeat string literals.
type ReceiptKind string

// Well-known receipt kinds. Producers outside this package (vault payouts,
// market settlement, airdrops) may mint receipts with any other kind
// string; nothing here enumerates a closed set.
const (
	ReceiptKindTransfer      ReceiptKind = "transfer"
	ReceiptKindMint          ReceiptKind = "mint"
	ReceiptKindBurn          ReceiptKind = "burn"
	ReceiptKindMarketSettle  ReceiptKind = "market_settle"
	ReceiptKindVaultPayout   ReceiptKind = "vault_payout"
	ReceiptKindAirdrop       ReceiptKind = "airdrop"
)

// Receipt is an append-only audit record of an applied state change.
type Receipt struct {
	ID     string        `json:"id"`
	TSMs   int64         `json:"ts_ms"`
	Kind   ReceiptKind   `json:"kind"`
	From   types.Address `json:"from"`
	To     types.Address `json:"to"`
	Amount types.U128    `json:"amount"`
	Fee    types.U128    `json:"fee"`
	Memo   string        `json:"memo,omitempty"`
	TxID   string        `json:"txid,omitempty"`
	OK     bool          `json:"ok"`
	Note   string        `json:"note,omitempty"`
}

// receiptPrefix keys the receipts subtree: <unix_nanos>-<counter6> sorts
// lexicographically in arrival order, matching the id's own ordering.
var receiptPrefix = []byte("rcpt/")

// receiptSeq is a per-process counter mixed into every receipt id so that
// two receipts minted within the same nanosecond still sort uniquely.
var receiptSeq uint32

// newReceiptID returns a monotonic id of the form <unix_nanos>-<counter6>
// and the millisecond timestamp to store alongside it.
func newReceiptID() (id string, tsMs int64) {
	now := time.Now()
	seq := atomic.AddUint32(&receiptSeq, 1) % 1_000_000
	return fmt.Sprintf("%019d-%06d", now.UnixNano(), seq), now.UnixMilli()
}

// NewTransferReceipt builds a transfer receipt for an applied transfer,
// stamping it with a fresh monotonic id and the current wall clock time.
func NewTransferReceipt(from, to types.Address, amount, fee types.U128, memo string, txID types.Hash, ok bool) *Receipt {
	id, tsMs := newReceiptID()
	return &Receipt{
		ID:     id,
		TSMs:   tsMs,
		Kind:   ReceiptKindTransfer,
		From:   from,
		To:     to,
		Amount: amount,
		Fee:    fee,
		Memo:   memo,
		TxID:   txID.String(),
		OK:     ok,
	}
}

func receiptKey(id string) []byte {
	return append(append([]byte(nil), receiptPrefix...), id...)
}

// putReceiptTxn stores r within an existing storage transaction, the path
// used for transfer receipts so they commit atomically with the balance
// and nonce updates they describe.
func putReceiptTxn(txn storage.Txn, r *Receipt) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	return txn.Put(receiptKey(r.ID), data)
}

// ReceiptStore provides read access to the receipts subtree. Writes go
// through putReceiptTxn (block-application path, same transaction as the
// balance update) or PutBestEffort (non-critical kinds, own transaction,
// failure does not roll back the state change it describes).
type ReceiptStore struct {
	db storage.DB
}

// NewReceiptStore creates a receipt store backed by the given database.
func NewReceiptStore(db storage.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

// PutBestEffort stores r in its own transaction. Intended for receipt kinds
// that are not part of the account-ledger critical path (vault payouts,
// market settlement): a storage failure here is logged by the caller, not
// propagated as a reason to abort the operation the receipt describes.
func (rs *ReceiptStore) PutBestEffort(r *Receipt) error {
	return rs.db.Update(func(txn storage.Txn) error {
		return putReceiptTxn(txn, r)
	})
}

// Latest returns up to limit most recent receipts, most recent first. A
// limit of 0 or less selects 50; limit is capped at 1000.
func (rs *ReceiptStore) Latest(limit int) ([]*Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	var all []*Receipt
	err := rs.db.ForEach(receiptPrefix, func(_, value []byte) error {
		var r Receipt
		if err := json.Unmarshal(value, &r); err != nil {
			return fmt.Errorf("unmarshal receipt: %w", err)
		}
		all = append(all, &r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan receipts: %w", err)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}
