package block

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// testCoinbase returns a minimal coinbase transaction crediting addr.
func testCoinbase(addr types.Address) *tx.Transaction {
	return &tx.Transaction{
		To:     addr,
		Amount: types.U128FromUint64(5_000_000_000),
	}
}

// signedTransfer builds and signs a transfer from a fresh keypair.
func signedTransfer(t *testing.T, to types.Address, amount, fee, nonce uint64) *tx.Transaction {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	from := crypto.AddressFromPubKey(key.PublicKey())
	txn := &tx.Transaction{
		From:      from,
		To:        to,
		Amount:    types.U128FromUint64(amount),
		Fee:       types.U128FromUint64(fee),
		Nonce:     nonce,
		PublicKey: key.PublicKey(),
	}
	sig, err := key.Sign(txn.SigningBytes())
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	txn.Signature = sig
	return txn
}

// validBlock creates a minimal valid block with correct transactions root.
func validBlock(t *testing.T) *Block {
	t.Helper()

	miner := types.Address{0x01}
	coinbase := testCoinbase(miner)
	txHashes := []types.Hash{coinbase.Hash()}
	root := ComputeMerkleRoot(txHashes)

	header := &Header{
		Version:          CurrentVersion,
		Height:           1,
		PrevHash:         types.Hash{0xaa},
		Timestamp:        1700000000,
		Difficulty:       1,
		TransactionsRoot: root,
		MinerAddress:     miner,
	}

	return NewBlock(header, []*tx.Transaction{coinbase})
}

func TestBlock_Validate_Valid(t *testing.T) {
	blk := validBlock(t)
	if err := blk.Validate(); err != nil {
		t.Errorf("valid block should pass: %v", err)
	}
}

func TestBlock_Validate_NilHeader(t *testing.T) {
	blk := &Block{Header: nil}
	if err := blk.Validate(); !errors.Is(err, ErrNilHeader) {
		t.Errorf("expected ErrNilHeader, got: %v", err)
	}
}

func TestBlock_Validate_BadVersion(t *testing.T) {
	blk := validBlock(t)
	blk.Header.Version = 99
	if err := blk.Validate(); !errors.Is(err, ErrBadVersion) {
		t.Errorf("expected ErrBadVersion, got: %v", err)
	}
}

func TestBlock_Validate_VersionZero(t *testing.T) {
	blk := validBlock(t)
	blk.Header.Version = 0
	if err := blk.Validate(); !errors.Is(err, ErrBadVersion) {
		t.Errorf("expected ErrBadVersion for version 0, got: %v", err)
	}
}

func TestBlock_Validate_ZeroTimestamp(t *testing.T) {
	blk := validBlock(t)
	blk.Header.Timestamp = 0
	if err := blk.Validate(); !errors.Is(err, ErrZeroTimestamp) {
		t.Errorf("expected ErrZeroTimestamp, got: %v", err)
	}
}

func TestBlock_Validate_NoTransactions(t *testing.T) {
	blk := &Block{
		Header: &Header{
			Version:   CurrentVersion,
			Timestamp: 1700000000,
		},
		Transactions: nil,
	}
	if err := blk.Validate(); !errors.Is(err, ErrNoTransactions) {
		t.Errorf("expected ErrNoTransactions, got: %v", err)
	}
}

func TestBlock_Validate_BadTxRoot(t *testing.T) {
	blk := validBlock(t)
	blk.Header.TransactionsRoot = types.Hash{0xde, 0xad}
	if err := blk.Validate(); !errors.Is(err, ErrBadTxRoot) {
		t.Errorf("expected ErrBadTxRoot, got: %v", err)
	}
}

func TestBlock_Validate_NoCoinbase(t *testing.T) {
	to := types.Address{0x02}
	transfer := signedTransfer(t, to, 1000, 10, 1)

	root := ComputeMerkleRoot([]types.Hash{transfer.Hash()})
	blk := NewBlock(&Header{
		Version:          CurrentVersion,
		Height:           1,
		Timestamp:        1700000000,
		TransactionsRoot: root,
	}, []*tx.Transaction{transfer})

	if err := blk.Validate(); !errors.Is(err, ErrNoCoinbase) {
		t.Errorf("expected ErrNoCoinbase, got: %v", err)
	}
}

func TestBlock_Validate_TreasuryCoinbaseAllowedAtIndex1(t *testing.T) {
	miner := types.Address{0x01}
	treasury := types.Address{0x09}
	coinbase := testCoinbase(miner)
	treasuryCredit := testCoinbase(treasury)

	txs := []*tx.Transaction{coinbase, treasuryCredit}
	hashes := []types.Hash{txs[0].Hash(), txs[1].Hash()}
	root := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Version:          CurrentVersion,
		Height:           1,
		Timestamp:        1700000000,
		TransactionsRoot: root,
		MinerAddress:     miner,
	}, txs)

	if err := blk.Validate(); err != nil {
		t.Errorf("coinbase + treasury credit at index 1 should validate: %v", err)
	}
}

func TestBlock_Validate_ExtraCoinbase(t *testing.T) {
	miner := types.Address{0x01}
	coinbase1 := testCoinbase(miner)
	coinbase2 := testCoinbase(miner)
	coinbase3 := testCoinbase(miner)

	txs := []*tx.Transaction{coinbase1, coinbase2, coinbase3}
	hashes := []types.Hash{txs[0].Hash(), txs[1].Hash(), txs[2].Hash()}
	root := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Version:          CurrentVersion,
		Height:           1,
		Timestamp:        1700000000,
		TransactionsRoot: root,
		MinerAddress:     miner,
	}, txs)

	if err := blk.Validate(); !errors.Is(err, ErrExtraCoinbase) {
		t.Errorf("expected ErrExtraCoinbase, got: %v", err)
	}
}

func TestBlock_Validate_InvalidTransaction(t *testing.T) {
	miner := types.Address{0x01}
	coinbase := testCoinbase(miner)

	// A transfer with a mismatched public key fails structural validation.
	key, _ := crypto.GenerateKey()
	other, _ := crypto.GenerateKey()
	badTx := &tx.Transaction{
		From:      crypto.AddressFromPubKey(key.PublicKey()),
		To:        types.Address{0x03},
		Amount:    types.U128FromUint64(1000),
		Fee:       types.U128FromUint64(10),
		Nonce:     1,
		PublicKey: other.PublicKey(),
		Signature: make([]byte, 64),
	}

	txs := []*tx.Transaction{coinbase, badTx}
	hashes := []types.Hash{txs[0].Hash(), txs[1].Hash()}
	root := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Version:          CurrentVersion,
		Height:           1,
		Timestamp:        1700000000,
		TransactionsRoot: root,
		MinerAddress:     miner,
	}, txs)

	if err := blk.Validate(); err == nil {
		t.Error("block with invalid tx should fail validation")
	}
}

func TestBlock_Validate_MultipleTxs(t *testing.T) {
	miner := types.Address{0x01}
	coinbase := testCoinbase(miner)

	t1 := signedTransfer(t, types.Address{0x02}, 1000, 10, 1)
	t2 := signedTransfer(t, types.Address{0x03}, 2000, 20, 1)

	txs := []*tx.Transaction{coinbase, t1, t2}
	hashes := make([]types.Hash, len(txs))
	for i, x := range txs {
		hashes[i] = x.Hash()
	}
	root := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Version:          CurrentVersion,
		Height:           5,
		Timestamp:        1700000000,
		TransactionsRoot: root,
		MinerAddress:     miner,
	}, txs)

	if err := blk.Validate(); err != nil {
		t.Errorf("multi-tx block should validate: %v", err)
	}
}

func TestBlock_Validate_TooManyTxs(t *testing.T) {
	miner := types.Address{0x01}
	coinbase := testCoinbase(miner)

	txs := make([]*tx.Transaction, 0, config.MaxBlockTxs+1)
	txs = append(txs, coinbase)

	for i := 0; i < config.MaxBlockTxs; i++ {
		var to types.Address
		to[0] = byte(i)
		to[1] = byte(i >> 8)
		txs = append(txs, signedTransfer(t, to, 1000, 10, uint64(i+1)))
	}

	hashes := make([]types.Hash, len(txs))
	for i, x := range txs {
		hashes[i] = x.Hash()
	}
	root := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Version:          CurrentVersion,
		Height:           1,
		Timestamp:        1700000000,
		TransactionsRoot: root,
		MinerAddress:     miner,
	}, txs)

	if err := blk.Validate(); !errors.Is(err, ErrTooManyTxs) {
		t.Errorf("expected ErrTooManyTxs, got: %v", err)
	}
}

func TestBlock_Validate_BlockTooLarge(t *testing.T) {
	miner := types.Address{0x01}
	coinbase := testCoinbase(miner)

	// A single transfer without a memo stays well under the cap.
	small := signedTransfer(t, types.Address{0x02}, 1000, 10, 1)

	txs := []*tx.Transaction{coinbase, small}
	hashes := []types.Hash{txs[0].Hash(), txs[1].Hash()}
	root := ComputeMerkleRoot(hashes)

	blk := NewBlock(&Header{
		Version:          CurrentVersion,
		Height:           1,
		Timestamp:        1700000000,
		TransactionsRoot: root,
		MinerAddress:     miner,
	}, txs)

	if err := blk.Validate(); err != nil {
		t.Errorf("small block incorrectly flagged: %v", err)
	}

	// config.MaxBlockSize must be large enough to hold a full MaxBlockTxs
	// block of minimal transfers; this guards the constants stay sane
	// relative to each other as either is tuned.
	perTxSize := len(small.SigningBytes()) + 64 + 32 // signature + pubkey overhead, rough upper bound
	if perTxSize*config.MaxBlockTxs > config.MaxBlockSize {
		t.Errorf("MaxBlockSize (%d) looks too small for MaxBlockTxs (%d) at ~%d bytes/tx", config.MaxBlockSize, config.MaxBlockTxs, perTxSize)
	}

	// A coinbase memo of MaxBlockSize bytes alone pushes the block over the cap.
	huge := testCoinbase(miner)
	huge.Memo = string(make([]byte, config.MaxBlockSize))
	bigBlk := NewBlock(&Header{
		Version:          CurrentVersion,
		Height:           1,
		Timestamp:        1700000000,
		TransactionsRoot: ComputeMerkleRoot([]types.Hash{huge.Hash()}),
		MinerAddress:     miner,
	}, []*tx.Transaction{huge})
	if err := bigBlk.Validate(); !errors.Is(err, ErrBlockTooLarge) {
		t.Errorf("expected ErrBlockTooLarge, got: %v", err)
	}
}

func TestBlock_Hash(t *testing.T) {
	blk := validBlock(t)
	h := blk.Hash()
	if h.IsZero() {
		t.Error("Block.Hash() should not be zero")
	}

	blk2 := &Block{}
	if !blk2.Hash().IsZero() {
		t.Error("Block.Hash() with nil header should be zero")
	}
}
