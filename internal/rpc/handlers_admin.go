package rpc

import (
	"net/http"
	"strings"
)

// withAdmin gates a handler behind the configured admin bearer token,
// accepted either as "Authorization: Bearer <token>" or "x-admin-token".
// An unconfigured token (the default) refuses every admin request, since an
// empty expected token must never match an empty header.
func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" || !s.hasValidAdminToken(r) {
			writeErr(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) hasValidAdminToken(r *http.Request) bool {
	if tok := r.Header.Get("x-admin-token"); tok != "" {
		return tok == s.adminToken
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after == s.adminToken
	}
	return false
}

func (s *Server) handleAdminPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "pong"})
}

func (s *Server) handleAdminInfo(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"height":         s.chain.Height(),
		"best_hash":      s.chain.TipHash().String(),
		"mempool_total":  stats.TotalCount,
		"mempool_bulk":   stats.BulkCount,
		"mempool_crit":   stats.CriticalCount,
		"fee_collector":  s.chain.FeeCollectorAddress().String(),
		"treasury":       s.chain.TreasuryAddress().String(),
	})
}

// handleAdminPrune acknowledges a prune request for the named kind and
// returns "accepted"; it deletes nothing (no index, block or balance data).
func (s *Server) handleAdminPrune(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "kind": kind})
}

func (s *Server) handleAdminMempoolSave(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleAdminMempoolClear(w http.ResponseWriter, r *http.Request) {
	stats, entries := s.pool.List("all", stats0Limit)
	for _, e := range entries {
		s.pool.Remove(e.TxHash)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "cleared", "removed": stats.TotalCount})
}

func (s *Server) handleAdminMempoolSweeper(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

const stats0Limit = 100000
