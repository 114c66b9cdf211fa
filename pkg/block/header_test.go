package block

import (
	"testing"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func testHeader() *Header {
	return &Header{
		Version:          1,
		Height:           42,
		PrevHash:         types.Hash{0x01},
		Timestamp:        1700000000,
		Difficulty:       7,
		Nonce:            99,
		TransactionsRoot: types.Hash{0x02},
		MinerAddress:     types.Address{0x03},
	}
}

func TestHeader_SigningBytes_Length(t *testing.T) {
	h := testHeader()
	if got := len(h.SigningBytes()); got != HeaderSize {
		t.Errorf("SigningBytes() length = %d, want %d", got, HeaderSize)
	}
}

func TestHeader_SigningBytes_ExcludesMinerAddress(t *testing.T) {
	h := testHeader()
	b1 := h.SigningBytes()

	h.MinerAddress = types.Address{0xff}
	b2 := h.SigningBytes()

	if string(b1) != string(b2) {
		t.Error("SigningBytes() must not depend on MinerAddress")
	}
}

func TestHeader_SigningBytes_BigEndian(t *testing.T) {
	h := testHeader()
	buf := h.SigningBytes()

	// version occupies the first 4 bytes, big-endian.
	if buf[0] != 0 || buf[1] != 0 || buf[2] != 0 || buf[3] != 1 {
		t.Errorf("version not encoded big-endian: % x", buf[:4])
	}
}

func TestHeader_Hash_Deterministic(t *testing.T) {
	h := testHeader()
	h1 := h.Hash()
	h2 := h.Hash()
	if h1 != h2 {
		t.Error("Header.Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Header.Hash() should not be zero")
	}
}

func TestHeader_Hash_ChangesWithNonce(t *testing.T) {
	h := testHeader()
	h1 := h.Hash()
	h.Nonce++
	h2 := h.Hash()
	if h1 == h2 {
		t.Error("changing nonce should change the header hash")
	}
}

func TestHeader_Hash_UnaffectedByMinerAddress(t *testing.T) {
	h := testHeader()
	h1 := h.Hash()
	h.MinerAddress = types.Address{0xaa, 0xbb}
	h2 := h.Hash()
	if h1 != h2 {
		t.Error("Header.Hash() must be invariant to MinerAddress changes")
	}
}
