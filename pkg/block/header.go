package block

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Header contains block metadata. MinerAddress is carried alongside the
// header for convenience but is not itself part of the 100-byte
// hashed/signed encoding: it is covered implicitly by TransactionsRoot,
// since the coinbase transaction (index 0) credits it.
type Header struct {
	Version          uint32        `json:"version"`
	Height           uint64        `json:"height"`
	PrevHash         types.Hash    `json:"prev_hash"`
	Timestamp        uint64        `json:"timestamp"`
	Difficulty       uint64        `json:"difficulty"`
	Nonce            uint64        `json:"nonce"`
	TransactionsRoot types.Hash    `json:"transactions_root"`
	MinerAddress     types.Address `json:"miner_address"`
}

// HeaderSize is the fixed length of the hashed/signed header encoding:
// version(4) + height(8) + prev_hash(32) + timestamp(8) + difficulty(8) + nonce(8) + transactions_root(32).
const HeaderSize = 4 + 8 + 32 + 8 + 8 + 8 + 32

// Hash computes the block header hash: BLAKE3 of the 100-byte serialization.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical 100-byte big-endian serialization:
// version(4) | height(8) | prev_hash(32) | timestamp(8) | difficulty(8) | nonce(8) | transactions_root(32).
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = binary.BigEndian.AppendUint32(buf, h.Version)
	buf = binary.BigEndian.AppendUint64(buf, h.Height)
	buf = append(buf, h.PrevHash[:]...)
	buf = binary.BigEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.BigEndian.AppendUint64(buf, h.Difficulty)
	buf = binary.BigEndian.AppendUint64(buf, h.Nonce)
	buf = append(buf, h.TransactionsRoot[:]...)
	return buf
}
