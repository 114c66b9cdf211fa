package mempool

import (
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// mockNonces implements NonceSource over a plain map, standing in for a
// confirmed-chain ledger in tests.
type mockNonces struct {
	n map[types.Address]uint64
}

func newMockNonces() *mockNonces {
	return &mockNonces{n: make(map[types.Address]uint64)}
}

func (m *mockNonces) Nonce(addr types.Address) (uint64, error) {
	return m.n[addr], nil
}

func newKeyAndAddr(t *testing.T) (*crypto.PrivateKey, types.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, crypto.AddressFromPubKey(key.PublicKey())
}

func signedTransfer(t *testing.T, key *crypto.PrivateKey, to types.Address, amount, fee types.U128, nonce uint64) *tx.Transaction {
	t.Helper()
	from := crypto.AddressFromPubKey(key.PublicKey())
	txn := &tx.Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		Nonce:     nonce,
		PublicKey: key.PublicKey(),
	}
	sig, err := key.Sign(txn.SigningBytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	txn.Signature = sig
	return txn
}

const criticalThreshold = 1000

func TestPool_Submit_AcceptsSequentialNonce(t *testing.T) {
	nonces := newMockNonces()
	p := New(100, criticalThreshold, time.Hour, nonces)
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	txn := signedTransfer(t, key, recipient, types.U128FromUint64(500), types.U128FromUint64(10), 0)
	hash, err := p.Submit(txn, 10)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if hash != txn.Hash() {
		t.Error("Submit should return the transaction's own hash")
	}
	if p.Count() != 1 {
		t.Errorf("Count() = %d, want 1", p.Count())
	}
}

func TestPool_Submit_RejectsNonSequentialNonce(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	txn := signedTransfer(t, key, recipient, types.U128FromUint64(500), types.U128FromUint64(10), 3)
	_, err := p.Submit(txn, 10)
	var nonceErr *ErrNonceNotSequential
	if err == nil {
		t.Fatal("expected a nonce-not-sequential error")
	}
	if !assertAs(err, &nonceErr) {
		t.Errorf("expected *ErrNonceNotSequential, got %T: %v", err, err)
	} else if nonceErr.Expected != 0 {
		t.Errorf("Expected = %d, want 0", nonceErr.Expected)
	}
}

func TestPool_Submit_ChainsSequentialNoncesFromSameSender(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	tx0 := signedTransfer(t, key, recipient, types.U128FromUint64(100), types.U128FromUint64(5), 0)
	tx1 := signedTransfer(t, key, recipient, types.U128FromUint64(100), types.U128FromUint64(5), 1)

	if _, err := p.Submit(tx0, 10); err != nil {
		t.Fatalf("Submit tx0: %v", err)
	}
	if _, err := p.Submit(tx1, 10); err != nil {
		t.Fatalf("Submit tx1 (chained): %v", err)
	}
	if p.Count() != 2 {
		t.Errorf("Count() = %d, want 2", p.Count())
	}
}

func TestPool_Submit_IdempotentResubmit(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}
	txn := signedTransfer(t, key, recipient, types.U128FromUint64(500), types.U128FromUint64(10), 0)

	if _, err := p.Submit(txn, 10); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if _, err := p.Submit(txn, 10); err != nil {
		t.Errorf("resubmitting an identical pending tx should be idempotent, got error: %v", err)
	}
	if p.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (no duplicate entry)", p.Count())
	}
}

func TestPool_Submit_RBFReplacesOnHigherTip(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	t1 := signedTransfer(t, key, recipient, types.U128FromUint64(1000), types.U128FromUint64(500), 0)
	t2 := signedTransfer(t, key, recipient, types.U128FromUint64(1000), types.U128FromUint64(1500), 0)

	if _, err := p.Submit(t1, 10); err != nil {
		t.Fatalf("Submit t1: %v", err)
	}
	if _, err := p.Submit(t2, 10); err != nil {
		t.Fatalf("Submit t2 (RBF): %v", err)
	}
	if p.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 after replacement", p.Count())
	}
	if !p.Has(t2.Hash()) || p.Has(t1.Hash()) {
		t.Error("pool should contain only the replacement transaction")
	}
}

func TestPool_Submit_RBFRejectsEqualOrLowerTip(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	t1 := signedTransfer(t, key, recipient, types.U128FromUint64(1000), types.U128FromUint64(1500), 0)
	t3 := signedTransfer(t, key, recipient, types.U128FromUint64(2000), types.U128FromUint64(1500), 0)

	if _, err := p.Submit(t1, 10); err != nil {
		t.Fatalf("Submit t1: %v", err)
	}
	if _, err := p.Submit(t3, 10); err != ErrRbfTipNotHigher {
		t.Errorf("expected ErrRbfTipNotHigher, got %v", err)
	}
}

func TestPool_Submit_LaneAssignment(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	critical := signedTransfer(t, key, recipient, types.U128FromUint64(100), types.U128FromUint64(1000), 0)
	if _, err := p.Submit(critical, 10); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	e, ok := p.Get(critical.Hash())
	if !ok || e.Lane != LaneCritical {
		t.Errorf("tip == threshold should land in the critical lane, got %+v", e)
	}

	key2, _ := newKeyAndAddr(t)
	bulk := signedTransfer(t, key2, recipient, types.U128FromUint64(100), types.U128FromUint64(999), 0)
	if _, err := p.Submit(bulk, 10); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	e2, ok := p.Get(bulk.Hash())
	if !ok || e2.Lane != LaneBulk {
		t.Errorf("tip below threshold should land in the bulk lane, got %+v", e2)
	}
}

func TestPool_Submit_FullRejectsUnlessTipHigher(t *testing.T) {
	p := New(1, criticalThreshold, time.Hour, newMockNonces())
	key1, _ := newKeyAndAddr(t)
	key2, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	low := signedTransfer(t, key1, recipient, types.U128FromUint64(100), types.U128FromUint64(10), 0)
	if _, err := p.Submit(low, 10); err != nil {
		t.Fatalf("Submit low: %v", err)
	}

	lower := signedTransfer(t, key2, recipient, types.U128FromUint64(100), types.U128FromUint64(5), 0)
	if _, err := p.Submit(lower, 10); err != ErrMempoolFull {
		t.Errorf("expected ErrMempoolFull for a non-higher tip at capacity, got %v", err)
	}

	higher := signedTransfer(t, key2, recipient, types.U128FromUint64(100), types.U128FromUint64(50), 0)
	if _, err := p.Submit(higher, 10); err != nil {
		t.Fatalf("higher-tip tx should evict the lowest and be admitted: %v", err)
	}
	if p.Has(low.Hash()) {
		t.Error("the lowest-tip entry should have been evicted")
	}
}

func TestPool_RemoveConfirmed(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}
	txn := signedTransfer(t, key, recipient, types.U128FromUint64(500), types.U128FromUint64(10), 0)

	if _, err := p.Submit(txn, 10); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	p.RemoveConfirmed([]*tx.Transaction{txn})
	if p.Has(txn.Hash()) {
		t.Error("confirmed transaction should be removed from the pool")
	}
}

func TestPool_SweepTTL(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}
	txn := signedTransfer(t, key, recipient, types.U128FromUint64(500), types.U128FromUint64(10), 0)

	if _, err := p.Submit(txn, 10); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	removed := p.SweepTTL(time.Now())
	if removed != 0 {
		t.Errorf("fresh entry should not be swept, removed %d", removed)
	}

	removed = p.SweepTTL(time.Now().Add(2 * time.Hour))
	if removed != 1 {
		t.Errorf("entry past TTL should be swept, removed %d", removed)
	}
	if p.Has(txn.Hash()) {
		t.Error("swept entry should no longer be in the pool")
	}
}

func TestPool_SelectForBlock_CriticalBeforeBulk(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key1, _ := newKeyAndAddr(t)
	key2, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	bulk := signedTransfer(t, key1, recipient, types.U128FromUint64(100), types.U128FromUint64(1), 0)
	critical := signedTransfer(t, key2, recipient, types.U128FromUint64(100), types.U128FromUint64(5000), 0)

	if _, err := p.Submit(bulk, 10); err != nil {
		t.Fatalf("Submit bulk: %v", err)
	}
	if _, err := p.Submit(critical, 10); err != nil {
		t.Fatalf("Submit critical: %v", err)
	}

	selected := p.SelectForBlock(1)
	if len(selected) != 1 || selected[0].Hash() != critical.Hash() {
		t.Errorf("expected the critical-lane tx selected first, got %v", selected)
	}
}

func TestPool_SelectForBlock_PreservesSenderNonceOrder(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	tx0 := signedTransfer(t, key, recipient, types.U128FromUint64(100), types.U128FromUint64(10), 0)
	tx1 := signedTransfer(t, key, recipient, types.U128FromUint64(100), types.U128FromUint64(20), 1)
	tx2 := signedTransfer(t, key, recipient, types.U128FromUint64(100), types.U128FromUint64(30), 2)

	if _, err := p.Submit(tx0, 10); err != nil {
		t.Fatalf("Submit tx0: %v", err)
	}
	if _, err := p.Submit(tx1, 10); err != nil {
		t.Fatalf("Submit tx1: %v", err)
	}
	if _, err := p.Submit(tx2, 10); err != nil {
		t.Fatalf("Submit tx2: %v", err)
	}

	selected := p.SelectForBlock(10)
	if len(selected) != 3 {
		t.Fatalf("expected all 3 chained txs selected, got %d", len(selected))
	}
	for i, want := range []uint64{0, 1, 2} {
		if selected[i].Nonce != want {
			t.Errorf("selected[%d].Nonce = %d, want %d", i, selected[i].Nonce, want)
		}
	}
}

func TestPool_SelectForBlock_MaxTxsZeroSelectsNothing(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	tx0 := signedTransfer(t, key, recipient, types.U128FromUint64(100), types.U128FromUint64(10), 0)
	if _, err := p.Submit(tx0, 10); err != nil {
		t.Fatalf("Submit tx0: %v", err)
	}
	if selected := p.SelectForBlock(0); len(selected) != 0 {
		t.Errorf("maxTxs=0 should select nothing, got %d", len(selected))
	}
}

func TestPool_SelectForBlock_SkipsEntryBelowConfirmedNonce(t *testing.T) {
	nonces := newMockNonces()
	p := New(100, criticalThreshold, time.Hour, nonces)
	key, addr := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	tx0 := signedTransfer(t, key, recipient, types.U128FromUint64(100), types.U128FromUint64(10), 0)
	tx1 := signedTransfer(t, key, recipient, types.U128FromUint64(100), types.U128FromUint64(20), 1)
	if _, err := p.Submit(tx0, 10); err != nil {
		t.Fatalf("Submit tx0: %v", err)
	}
	if _, err := p.Submit(tx1, 10); err != nil {
		t.Fatalf("Submit tx1: %v", err)
	}

	// Simulate tx0 having already been confirmed by another block before
	// RemoveConfirmed ran: the ledger's nonce has advanced past it, so it is
	// now a stale, unselectable entry for this sender.
	nonces.n[addr] = 1

	selected := p.SelectForBlock(10)
	if len(selected) != 1 || selected[0].Hash() != tx1.Hash() {
		t.Errorf("expected only the already-next-expected tx1 selected, got %v", selected)
	}
}

func TestPool_List_FiltersByLane(t *testing.T) {
	p := New(100, criticalThreshold, time.Hour, newMockNonces())
	key1, _ := newKeyAndAddr(t)
	key2, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	bulk := signedTransfer(t, key1, recipient, types.U128FromUint64(100), types.U128FromUint64(1), 0)
	critical := signedTransfer(t, key2, recipient, types.U128FromUint64(100), types.U128FromUint64(5000), 0)
	if _, err := p.Submit(bulk, 10); err != nil {
		t.Fatalf("Submit bulk: %v", err)
	}
	if _, err := p.Submit(critical, 10); err != nil {
		t.Fatalf("Submit critical: %v", err)
	}

	stats, entries := p.List("critical", 10)
	if stats.TotalCount != 2 || stats.CriticalCount != 1 || stats.BulkCount != 1 {
		t.Errorf("stats = %+v, want total 2, critical 1, bulk 1", stats)
	}
	if len(entries) != 1 || entries[0].TxHash != critical.Hash() {
		t.Errorf("expected only the critical entry returned, got %v", entries)
	}
}

func TestPool_Evict_TrimsToMaxSize(t *testing.T) {
	p := New(3, criticalThreshold, time.Hour, newMockNonces())
	key1, _ := newKeyAndAddr(t)
	key2, _ := newKeyAndAddr(t)
	recipient := types.Address{0x02}

	low := signedTransfer(t, key1, recipient, types.U128FromUint64(100), types.U128FromUint64(1), 0)
	high := signedTransfer(t, key2, recipient, types.U128FromUint64(100), types.U128FromUint64(9000), 0)
	if _, err := p.Submit(low, 10); err != nil {
		t.Fatalf("Submit low: %v", err)
	}
	if _, err := p.Submit(high, 10); err != nil {
		t.Fatalf("Submit high: %v", err)
	}

	p.maxSize = 1
	if evicted := p.Evict(); evicted != 1 {
		t.Errorf("Evict() = %d, want 1", evicted)
	}
	if !p.Has(high.Hash()) || p.Has(low.Hash()) {
		t.Error("Evict should keep the higher-tip entry and drop the lower")
	}
}

// assertAs is a small errors.As wrapper kept local to avoid importing
// "errors" just for this one call pattern across the suite.
func assertAs(err error, target **ErrNonceNotSequential) bool {
	nonceErr, ok := err.(*ErrNonceNotSequential)
	if ok {
		*target = nonceErr
	}
	return ok
}
