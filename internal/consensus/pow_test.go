package consensus

import (
	"math/big"
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/block"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func TestNewPoW_ZeroDifficulty(t *testing.T) {
	_, err := NewPoW(0, 3)
	if err != ErrZeroDifficulty {
		t.Fatalf("NewPoW(0) err = %v, want ErrZeroDifficulty", err)
	}
}

func TestPoW_Target(t *testing.T) {
	t1 := target(1)
	if t1.Cmp(maxUint256) != 0 {
		t.Fatalf("target(1) = %s, want maxUint256", t1)
	}

	t2 := target(2)
	halfMax := new(big.Int).Div(maxUint256, big.NewInt(2))
	if t2.Cmp(halfMax) != 0 {
		t.Fatalf("target(2) = %s, want %s", t2, halfMax)
	}
}

func testHeader() *block.Header {
	return &block.Header{
		Version:          1,
		PrevHash:         types.Hash{},
		TransactionsRoot: types.Hash{1, 2, 3},
		Timestamp:        1000,
		Height:           1,
		Difficulty:       1,
	}
}

func TestPoW_SealAndVerify(t *testing.T) {
	pow, err := NewPoW(1, 3)
	if err != nil {
		t.Fatal(err)
	}

	header := testHeader()
	blk := block.NewBlock(header, nil)
	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if err := pow.VerifyHeader(blk.Header); err != nil {
		t.Fatalf("VerifyHeader after Seal: %v", err)
	}
}

func TestPoW_VerifyHeader_Rejects(t *testing.T) {
	pow, err := NewPoW(1, 3)
	if err != nil {
		t.Fatal(err)
	}

	header := testHeader()
	header.Difficulty = ^uint64(0)
	header.Nonce = 42

	err = pow.VerifyHeader(header)
	if err != ErrInsufficientWork {
		t.Fatalf("VerifyHeader with max difficulty = %v, want ErrInsufficientWork", err)
	}
}

func TestPoW_VerifyHeader_ZeroDifficulty(t *testing.T) {
	pow, err := NewPoW(1, 3)
	if err != nil {
		t.Fatal(err)
	}

	header := &block.Header{Version: 1, Height: 1, Difficulty: 0}
	err = pow.VerifyHeader(header)
	if err != ErrZeroDifficulty {
		t.Fatalf("VerifyHeader(difficulty=0) = %v, want ErrZeroDifficulty", err)
	}
}

func TestPoW_SealModerateDifficulty(t *testing.T) {
	pow, err := NewPoW(256, 3)
	if err != nil {
		t.Fatal(err)
	}

	header := testHeader()
	header.TransactionsRoot = types.Hash{0xDE, 0xAD}
	header.Timestamp = 12345
	header.Height = 5
	header.Difficulty = 256
	blk := block.NewBlock(header, nil)

	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if err := pow.VerifyHeader(blk.Header); err != nil {
		t.Fatalf("VerifyHeader: %v", err)
	}

	hash := blk.Header.Hash()
	hashInt := new(big.Int).SetBytes(hash[:])
	tgt := target(256)
	if hashInt.Cmp(tgt) > 0 {
		t.Fatalf("hash %s > target %s", hashInt, tgt)
	}
}

func TestPoW_SealParallel(t *testing.T) {
	pow, err := NewPoW(256, 3)
	if err != nil {
		t.Fatal(err)
	}
	pow.Threads = 4

	header := testHeader()
	header.Difficulty = 256
	blk := block.NewBlock(header, nil)

	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal (parallel): %v", err)
	}
	if err := pow.VerifyHeader(blk.Header); err != nil {
		t.Fatalf("VerifyHeader (parallel): %v", err)
	}
}

func TestPoW_Prepare_GenesisUsesInitial(t *testing.T) {
	pow, _ := NewPoW(42, 3)
	header := &block.Header{Height: 0, Version: 1}
	if err := pow.Prepare(header, nil); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if header.Difficulty != 42 {
		t.Fatalf("Prepare set difficulty = %d, want 42", header.Difficulty)
	}
}

func TestPoW_Prepare_ShortWindowUsesInitial(t *testing.T) {
	pow, _ := NewPoW(42, 3)
	header := &block.Header{Height: 1, Version: 1}
	window := []*block.Header{{Height: 0, Timestamp: 100, Difficulty: 42}}
	if err := pow.Prepare(header, window); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if header.Difficulty != 42 {
		t.Fatalf("Prepare with 1-header window = %d, want 42 (InitialDifficulty)", header.Difficulty)
	}
}

func buildWindow(blockTime int64, difficulty uint64, n int) []*block.Header {
	window := make([]*block.Header, n)
	ts := uint64(1_000_000)
	for i := 0; i < n; i++ {
		window[i] = &block.Header{Height: uint64(i), Timestamp: ts, Difficulty: difficulty}
		ts += uint64(blockTime)
	}
	return window
}

func TestPoW_ExpectedDifficulty_SteadyState(t *testing.T) {
	pow, _ := NewPoW(1000, 15)
	// Blocks arriving exactly on target: difficulty should stay close to 1000.
	window := buildWindow(15, 1000, 10)
	got := pow.ExpectedDifficulty(10, window)
	// Allow a small band around steady-state due to integer division.
	if got < 900 || got > 1100 {
		t.Fatalf("ExpectedDifficulty(steady) = %d, want close to 1000", got)
	}
}

func TestPoW_ExpectedDifficulty_FasterBlocksIncreaseDifficulty(t *testing.T) {
	pow, _ := NewPoW(1000, 15)
	slow := pow.ExpectedDifficulty(10, buildWindow(15, 1000, 10))
	fast := pow.ExpectedDifficulty(10, buildWindow(5, 1000, 10))
	if fast <= slow {
		t.Fatalf("faster blocks should raise difficulty: fast=%d slow=%d", fast, slow)
	}
}

func TestPoW_ExpectedDifficulty_SlowerBlocksDecreaseDifficulty(t *testing.T) {
	pow, _ := NewPoW(1000, 15)
	base := pow.ExpectedDifficulty(10, buildWindow(15, 1000, 10))
	slower := pow.ExpectedDifficulty(10, buildWindow(45, 1000, 10))
	if slower >= base {
		t.Fatalf("slower blocks should lower difficulty: slower=%d base=%d", slower, base)
	}
}

func TestPoW_ExpectedDifficulty_TruncatesToWindow(t *testing.T) {
	pow, _ := NewPoW(1000, 15)
	long := buildWindow(15, 1000, 100)
	short := long[len(long)-25:] // config.LWMAWindow == 25
	gotLong := pow.ExpectedDifficulty(100, long)
	gotShort := pow.ExpectedDifficulty(100, short)
	if gotLong != gotShort {
		t.Fatalf("ExpectedDifficulty should only look at the last LWMAWindow headers: long=%d short=%d", gotLong, gotShort)
	}
}

func TestPoW_VerifyDifficulty(t *testing.T) {
	pow, _ := NewPoW(1000, 15)
	window := buildWindow(15, 1000, 10)
	expected := pow.ExpectedDifficulty(10, window)

	header := &block.Header{Height: 10, Difficulty: expected}
	if err := pow.VerifyDifficulty(header, window); err != nil {
		t.Fatalf("VerifyDifficulty(correct) = %v, want nil", err)
	}

	header2 := &block.Header{Height: 10, Difficulty: expected + 1}
	if err := pow.VerifyDifficulty(header2, window); err == nil {
		t.Fatal("VerifyDifficulty(wrong) = nil, want error")
	}
}

func TestWork_IncreasesWithDifficulty(t *testing.T) {
	w1 := Work(1)
	w2 := Work(1000)
	if w2.Cmp(w1) <= 0 {
		t.Fatalf("Work(1000) should exceed Work(1): w1=%s w2=%s", w1, w2)
	}
}
