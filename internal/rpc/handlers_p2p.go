package rpc

import (
	"io"
	"net/http"
)

// handleP2P builds an HTTP handler for one /p2p/* route: it reads the raw
// body and dispatches to the wired P2PBridge, or answers 501 not_implemented
// when no bridge has been set via SetP2PBridge. This keeps the HTTP surface
// for C4 gossip present and honest about what is and isn't wired, rather
// than silently accepting messages a libp2p-era gossip layer never receives.
func (s *Server) handleP2P(call func(P2PBridge, []byte) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.p2p == nil {
			writeErr(w, http.StatusNotImplemented, errNotImplemented)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeErr(w, http.StatusBadRequest, errBadRequest)
			return
		}
		result, err := call(s.p2p, body)
		if err != nil {
			writeErr(w, http.StatusBadRequest, errBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
