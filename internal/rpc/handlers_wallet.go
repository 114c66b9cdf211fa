package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"github.com/Klingon-tech/klingnet-chain/internal/mempool"
	"github.com/Klingon-tech/klingnet-chain/internal/storage"
	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/tx"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func (s *Server) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := types.ParseAddress(r.PathValue("addr"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	bal, err := s.chain.Ledger().Balance(addr)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": addr.String(),
		"balance": bal.String(),
	})
}

func (s *Server) handleWalletNonce(w http.ResponseWriter, r *http.Request) {
	addr, err := types.ParseAddress(r.PathValue("addr"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	nonce, err := s.chain.Ledger().Nonce(addr)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": addr.String(),
		"nonce":   nonce,
	})
}

// transferRequest is the wire shape of POST /wallet/transfer, signed
// client-side — the node only ever verifies, never signs transfers itself.
type transferRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
	Fee       string `json:"fee,omitempty"`
	Memo      string `json:"memo,omitempty"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

func (s *Server) handleWalletTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, errBadRequest)
		return
	}

	from, err := types.ParseAddress(req.From)
	if err != nil {
		writeErr(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	to, err := types.ParseAddress(req.To)
	if err != nil || to == from {
		writeErr(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	amount, err := types.ParseU128(req.Amount)
	if err != nil || amount.IsZero() {
		writeErr(w, http.StatusBadRequest, errZeroAmount)
		return
	}
	fee := types.U128FromUint64(0)
	if req.Fee != "" {
		fee, err = types.ParseU128(req.Fee)
		if err != nil {
			writeErr(w, http.StatusBadRequest, errBadRequest)
			return
		}
	}
	sigBytes, err1 := hex.DecodeString(req.Signature)
	pubBytes, err2 := hex.DecodeString(req.PublicKey)
	if err1 != nil || err2 != nil {
		writeErr(w, http.StatusBadRequest, errBadRequest)
		return
	}
	if crypto.AddressFromPubKey(pubBytes) != from {
		writeErr(w, http.StatusUnauthorized, errPublicKeyMismatch)
		return
	}

	t := &tx.Transaction{
		From:      from,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		Nonce:     req.Nonce,
		Memo:      req.Memo,
		Signature: sigBytes,
		PublicKey: pubBytes,
	}
	s.submitTransfer(w, r, t)
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Tx *tx.Transaction `json:"tx"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Tx == nil {
		writeErr(w, http.StatusBadRequest, errBadRequest)
		return
	}
	s.submitTransfer(w, r, body.Tx)
}

// submitTransfer runs the submit_transfer operation shared by
// POST /wallet/transfer and POST /submit_tx: address/amount validation,
// signature verification, nonce and balance checks against live state, then
// mempool admission (C3). The receipt itself is written only once the
// transaction is included in a block, not here.
func (s *Server) submitTransfer(w http.ResponseWriter, r *http.Request, t *tx.Transaction) {
	if t.From.IsZero() || t.To.IsZero() || t.From == t.To {
		writeErr(w, http.StatusBadRequest, errInvalidAddress)
		return
	}
	if t.Amount.IsZero() {
		writeErr(w, http.StatusBadRequest, errZeroAmount)
		return
	}
	if crypto.AddressFromPubKey(t.PublicKey) != t.From {
		writeErr(w, http.StatusUnauthorized, errPublicKeyMismatch)
		return
	}
	if err := t.VerifySignature(); err != nil {
		writeErr(w, http.StatusUnauthorized, errSignatureVerificationFailed)
		return
	}

	expectedNonce, err := s.chain.Ledger().Nonce(t.From)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	if t.Nonce != expectedNonce {
		writeErr(w, http.StatusBadRequest, errInvalidNonce)
		return
	}

	balance, err := s.chain.Ledger().Balance(t.From)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	if balance.Cmp(t.Amount.Add(t.Fee)) < 0 {
		writeErr(w, http.StatusPaymentRequired, errInsufficientFunds)
		return
	}

	if !s.allowSubmit(r) {
		writeErr(w, http.StatusTooManyRequests, errRateLimited)
		return
	}

	hash, err := s.pool.Submit(t, s.chain.Height())
	if err != nil {
		switch {
		case errors.Is(err, mempool.ErrRbfTipNotHigher):
			writeErr(w, http.StatusConflict, errRbfTipNotHigher)
		case errors.Is(err, mempool.ErrMempoolFull):
			writeErr(w, http.StatusServiceUnavailable, errMempoolFull)
		case errors.Is(err, mempool.ErrBadSignature):
			writeErr(w, http.StatusUnauthorized, errSignatureVerificationFailed)
		case errors.Is(err, mempool.ErrFeeTooLow):
			writeErr(w, http.StatusBadRequest, errBadRequest)
		default:
			var nonceErr *mempool.ErrNonceNotSequential
			if errors.As(err, &nonceErr) {
				writeErr(w, http.StatusBadRequest, errInvalidNonce)
				return
			}
			writeErr(w, http.StatusBadRequest, errBadRequest)
		}
		return
	}

	s.metrics.RecordTransfer(u128ToFloat64(t.Amount), u128ToFloat64(t.Fee))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"tx_hash":    hash.String(),
		"receipt_id": hash.String(),
	})
}

// u128ToFloat64 approximates a U128 as a float64 for metrics counters; the
// Prometheus wire format is float64 throughout, so totals beyond its
// exact-integer range lose precision here, which is acceptable for
// observability counters (never for ledger state).
func u128ToFloat64(u types.U128) float64 {
	f, _, err := big.ParseFloat(u.String(), 10, 128, big.ToNearestEven)
	if err != nil {
		return 0
	}
	out, _ := f.Float64()
	return out
}

func (s *Server) handleGetTx(w http.ResponseWriter, r *http.Request) {
	hash, err := types.HexToHash(r.PathValue("hash"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, errBadRequest)
		return
	}

	if entry, ok := s.pool.Get(hash); ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":       "pending",
			"lane":         entry.Lane,
			"tx":           entry.Tx,
			"timestamp":    entry.EntryTSMs,
			"entry_height": entry.EntryHeight,
			"age_blocks":   s.chain.Height() - entry.EntryHeight,
		})
		return
	}

	height, blockHash, t, err := s.chain.GetTransactionLocation(hash)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			writeErr(w, http.StatusNotFound, errNotFound)
			return
		}
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "confirmed",
		"height":     height,
		"block_hash": blockHash.String(),
		"tx":         t,
	})
}

func (s *Server) handleMempool(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 100, 1000)
	lane := r.URL.Query().Get("lane")
	if lane == "" {
		lane = "all"
	}
	stats, entries := s.pool.List(lane, limit)

	txs := make([]*tx.Transaction, 0, len(entries))
	for _, e := range entries {
		txs = append(txs, e.Tx)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats": map[string]interface{}{
			"critical_count": stats.CriticalCount,
			"bulk_count":     stats.BulkCount,
			"total_count":    stats.TotalCount,
			"returned":       len(txs),
			"limit":          limit,
		},
		"transactions": txs,
	})
}

func (s *Server) handleReceiptsLatest(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 1000)
	receipts, err := s.chain.Receipts().Latest(limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, errInternal)
		return
	}
	writeJSON(w, http.StatusOK, receipts)
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n := 0
	for _, c := range raw {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

