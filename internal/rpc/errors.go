package rpc

import (
	"encoding/json"
	"net/http"
)

// Machine-readable error codes returned in the "error" field of a JSON error
// body. These are the closed set of ValidationError/MempoolError strings the
// wallet and submit_tx endpoints can surface.
const (
	errInvalidAddress             = "invalid_address"
	errInvalidNonce               = "invalid_nonce"
	errZeroAmount                 = "zero_amount"
	errSignatureVerificationFailed = "signature_verification_failed"
	errPublicKeyMismatch          = "public_key_mismatch"
	errInsufficientFunds          = "insufficient_funds"
	errRbfTipNotHigher            = "rbf_tip_not_higher"
	errRateLimited                = "rate_limited"
	errMempoolFull                = "mempool_full"
	errNotFound                   = "not_found"
	errNotImplemented             = "not_implemented"
	errBadRequest                 = "bad_request"
	errUnauthorized               = "unauthorized"
	errInternal                   = "internal"
)

// apiError is the body of every non-2xx JSON response.
type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, apiError{Error: code})
}
