package chain

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// buildFork builds n blocks extending from (hash, height), independent of
// whatever the chain's current in-memory tip is, by directly constructing
// headers rather than going through mineBlock (which always reads
// ch.State()). Each block's only transaction is a coinbase reward to
// minerAddr. Used to construct a competing branch for reorg tests.
func buildFork(t *testing.T, ch *Chain, startHash types.Hash, startHeight, startTimestamp uint64, minerAddr types.Address, n int, rewardPerBlock types.U128) []*block.Block {
	t.Helper()
	blocks := make([]*block.Block, 0, n)
	prevHash := startHash
	ts := startTimestamp
	window, err := ch.headerWindow(startHeight + 1)
	if err != nil {
		t.Fatalf("headerWindow(%d): %v", startHeight+1, err)
	}
	for i := 0; i < n; i++ {
		height := startHeight + uint64(i) + 1
		ts += 100
		header := &block.Header{
			Version:      block.CurrentVersion,
			Height:       height,
			PrevHash:     prevHash,
			Timestamp:    ts,
			MinerAddress: minerAddr,
		}
		if err := ch.engine.Prepare(header, window); err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		cb := coinbaseTx(minerAddr, rewardPerBlock)
		header.TransactionsRoot = block.ComputeMerkleRoot([]types.Hash{cb.Hash()})
		blk := block.NewBlock(header, []*tx.Transaction{cb})
		if err := ch.engine.Seal(blk); err != nil {
			t.Fatalf("Seal: %v", err)
		}
		blocks = append(blocks, blk)
		prevHash = blk.Hash()
		window = append(window, blk.Header)
	}
	return blocks
}

func TestChain_Reorg_SwitchesToHeavierBranch(t *testing.T) {
	_, minerAddr := testKeyAndAddr(t)
	gen := buildGenesis(genesisOpts{alloc: map[types.Address]types.U128{minerAddr: types.U128FromUint64(0)}})
	ch, _ := newTestChain(t, gen)

	genState := ch.State()

	// Extend the active chain by two blocks.
	mainline := buildFork(t, ch, genState.TipHash, genState.Height, genState.TipTimestamp, minerAddr, 2, types.U128FromUint64(1000))
	for _, blk := range mainline {
		if err := ch.ProcessBlock(blk); err != nil {
			t.Fatalf("ProcessBlock(mainline): %v", err)
		}
	}
	if ch.Height() != 2 {
		t.Fatalf("height = %d, want 2", ch.Height())
	}

	// Build a competing 3-block branch off genesis, its timestamps offset by
	// one second so its blocks differ from the mainline's: more cumulative
	// work at the same (low, fixed) difficulty, so it must become canonical.
	altBranch := buildFork(t, ch, genState.TipHash, genState.Height, genState.TipTimestamp+1, minerAddr, 3, types.U128FromUint64(1000))

	// The first alt block forks off the active chain (its parent is genesis,
	// not the current tip); ProcessBlock stores it and triggers Reorg, which
	// is a no-op while the branch is lighter. At equal work the lower tip
	// hash wins, so the height is 2 after the second alt block either way.
	if err := ch.ProcessBlock(altBranch[0]); err != nil {
		t.Fatalf("ProcessBlock(alt[0]): %v", err)
	}
	if ch.Height() != 2 {
		t.Errorf("height = %d after shorter alt branch, want still 2 (mainline)", ch.Height())
	}

	if err := ch.ProcessBlock(altBranch[1]); err != nil {
		t.Fatalf("ProcessBlock(alt[1]): %v", err)
	}
	if ch.Height() != 2 {
		t.Errorf("height = %d after equal-work alt branch, want 2", ch.Height())
	}

	if err := ch.ProcessBlock(altBranch[2]); err != nil {
		t.Fatalf("ProcessBlock(alt[2]): %v", err)
	}
	if ch.Height() != 3 {
		t.Errorf("height = %d after heavier alt branch, want 3", ch.Height())
	}
	if ch.TipHash() != altBranch[2].Hash() {
		t.Error("tip did not switch to the heavier alt branch")
	}

	minerBal, err := ch.Ledger().Balance(minerAddr)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if want := types.U128FromUint64(3000); minerBal.Cmp(want) != 0 {
		t.Errorf("miner balance after reorg = %s, want %s (3 blocks of 1000, mainline rewards reverted)", minerBal, want)
	}
}

func TestChain_Reorg_RevertsBalancesAndNonces(t *testing.T) {
	senderKey, senderAddr := testKeyAndAddr(t)
	_, minerAddr := testKeyAndAddr(t)
	_, recipientAddr := testKeyAndAddr(t)

	gen := buildGenesis(genesisOpts{alloc: map[types.Address]types.U128{senderAddr: types.U128FromUint64(10_000)}})
	ch, engine := newTestChain(t, gen)

	transfer := signedTransfer(t, senderKey, recipientAddr, types.U128FromUint64(1000), types.U128FromUint64(10), 0)
	mainBlk := mineBlock(t, ch, engine, minerAddr, []*tx.Transaction{
		coinbaseTx(minerAddr, types.U128FromUint64(1000)),
		transfer,
	})
	if err := ch.ProcessBlock(mainBlk); err != nil {
		t.Fatalf("ProcessBlock(main): %v", err)
	}

	nonceBefore, _ := ch.Ledger().Nonce(senderAddr)
	if nonceBefore != 1 {
		t.Fatalf("nonce before reorg = %d, want 1", nonceBefore)
	}

	genBlk, err := ch.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("GetBlockByHeight(0): %v", err)
	}

	altBranch := buildFork(t, ch, genBlk.Hash(), 0, genBlk.Header.Timestamp, minerAddr, 2, types.U128FromUint64(1000))
	if err := ch.ProcessBlock(altBranch[0]); err != nil {
		t.Fatalf("ProcessBlock(alt[0]): %v", err)
	}
	if err := ch.ProcessBlock(altBranch[1]); err != nil {
		t.Fatalf("ProcessBlock(alt[1]): %v", err)
	}
	if ch.Height() != 2 {
		t.Fatalf("height = %d, want 2 after heavier alt branch", ch.Height())
	}

	senderBalAfter, _ := ch.Ledger().Balance(senderAddr)
	if senderBalAfter.Cmp(types.U128FromUint64(10_000)) != 0 {
		t.Errorf("sender balance after revert = %s, want original 10000", senderBalAfter)
	}
	nonceAfter, _ := ch.Ledger().Nonce(senderAddr)
	if nonceAfter != 0 {
		t.Errorf("sender nonce after revert = %d, want 0", nonceAfter)
	}
	recipientBal, _ := ch.Ledger().Balance(recipientAddr)
	if !recipientBal.IsZero() {
		t.Errorf("recipient balance after revert = %s, want 0", recipientBal)
	}
}

func TestChain_Reorg_FiresRevertedTxHandler(t *testing.T) {
	senderKey, senderAddr := testKeyAndAddr(t)
	_, minerAddr := testKeyAndAddr(t)
	_, recipientAddr := testKeyAndAddr(t)

	gen := buildGenesis(genesisOpts{alloc: map[types.Address]types.U128{senderAddr: types.U128FromUint64(10_000)}})
	ch, engine := newTestChain(t, gen)

	transfer := signedTransfer(t, senderKey, recipientAddr, types.U128FromUint64(1000), types.U128FromUint64(10), 0)
	mainBlk := mineBlock(t, ch, engine, minerAddr, []*tx.Transaction{
		coinbaseTx(minerAddr, types.U128FromUint64(1000)),
		transfer,
	})
	if err := ch.ProcessBlock(mainBlk); err != nil {
		t.Fatalf("ProcessBlock(main): %v", err)
	}

	var reverted []*tx.Transaction
	ch.SetRevertedTxHandler(func(txs []*tx.Transaction) {
		reverted = append(reverted, txs...)
	})

	genBlk, err := ch.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("GetBlockByHeight(0): %v", err)
	}
	altBranch := buildFork(t, ch, genBlk.Hash(), 0, genBlk.Header.Timestamp, minerAddr, 2, types.U128FromUint64(1000))
	for _, blk := range altBranch {
		if err := ch.ProcessBlock(blk); err != nil {
			t.Fatalf("ProcessBlock(alt): %v", err)
		}
	}

	if len(reverted) != 1 || reverted[0].Hash() != transfer.Hash() {
		t.Errorf("reverted txs = %v, want [%s]", reverted, transfer.Hash())
	}
}

func TestChain_CollectBranch_GenesisReorgRejected(t *testing.T) {
	_, minerAddr := testKeyAndAddr(t)
	gen := buildGenesis(genesisOpts{alloc: map[types.Address]types.U128{minerAddr: types.U128FromUint64(0)}})
	ch, _ := newTestChain(t, gen)

	// A block whose PrevHash is an unknown hash can never resolve to a
	// common ancestor; collectBranch must surface that as an error rather
	// than looping. GetBlock on the bogus hash fails immediately.
	if _, _, _, err := ch.collectBranch(types.Hash{0xff}); err == nil {
		t.Error("expected error collecting branch from an unknown tip hash")
	}
}
