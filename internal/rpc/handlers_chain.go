package rpc

import (
	"net/http"
	"strconv"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if id == "last" {
		blk, err := s.chain.GetBlockByHeight(s.chain.Height())
		if err != nil {
			writeErr(w, http.StatusNotFound, errNotFound)
			return
		}
		writeJSON(w, http.StatusOK, blk)
		return
	}

	if height, err := strconv.ParseUint(id, 10, 64); err == nil {
		blk, err := s.chain.GetBlockByHeight(height)
		if err != nil {
			writeErr(w, http.StatusNotFound, errNotFound)
			return
		}
		writeJSON(w, http.StatusOK, blk)
		return
	}

	hash, err := types.HexToHash(id)
	if err != nil {
		writeErr(w, http.StatusBadRequest, errBadRequest)
		return
	}
	blk, err := s.chain.GetBlock(hash)
	if err != nil {
		writeErr(w, http.StatusNotFound, errNotFound)
		return
	}
	writeJSON(w, http.StatusOK, blk)
}

// networkPhase classifies the chain's position relative to its halving
// schedule, mirroring the genesis's emission constants rather than guessing.
func networkPhase(height, halvingInterval uint64) string {
	if halvingInterval == 0 {
		return "pre-halving"
	}
	if height < halvingInterval {
		return "pre-halving"
	}
	return "post-halving"
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	height := s.chain.Height()

	var halvingInterval uint64
	if s.genesis != nil {
		halvingInterval = s.genesis.Protocol.Consensus.HalvingInterval
	}

	nextHalving := uint64(0)
	blocksUntilHalving := uint64(0)
	if halvingInterval > 0 {
		nextHalving = ((height / halvingInterval) + 1) * halvingInterval
		blocksUntilHalving = nextHalving - height
	}

	status := map[string]interface{}{
		"height":               height,
		"best_hash":            s.chain.TipHash().String(),
		"network":              string(networkFromGenesis(s.genesis)),
		"network_phase":        networkPhase(height, halvingInterval),
		"next_halving_height":  nextHalving,
		"blocks_until_halving": blocksUntilHalving,
		"total_supply":         s.chain.Supply().String(),
	}
	if s.identity != nil {
		status["node_id"] = s.identity.NodeID
		status["pubkey_fingerprint"] = s.identity.Fingerprint
	}

	s.metrics.SetChainHeight(height)
	writeJSON(w, http.StatusOK, status)
}

// networkFromGenesis recovers the network name from the chain_id when no
// richer source is wired; "mainnet"/"testnet" is a best-effort label here,
// not a consensus-critical value.
func networkFromGenesis(gen *config.Genesis) config.NetworkType {
	if gen == nil {
		return config.Mainnet
	}
	if gen.ChainID == "" {
		return config.Mainnet
	}
	if len(gen.ChainID) >= 7 && gen.ChainID[:7] == "vision-" {
		rest := gen.ChainID[7:]
		if len(rest) >= 7 && rest[:7] == "testnet" {
			return config.Testnet
		}
	}
	return config.Mainnet
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readiness != nil {
		ready, reasons := s.readiness.Ready()
		s.metrics.SetReady(ready)
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]interface{}{
			"ready":              ready,
			"reasons":            reasons,
			"backbone_connected": s.readiness.BackboneConnected(),
			"chain_synced":       s.readiness.ChainSynced(),
			"chain_lag":          s.readiness.ChainLag(),
		})
		return
	}

	// No readiness provider wired: the best this package can report on its
	// own is whether the chain has been initialized past genesis.
	ready := s.chain.Height() > 0 || !s.chain.TipHash().IsZero()
	s.metrics.SetReady(ready)
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"ready":   false,
			"reasons": []string{"chain not yet initialized"},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ready": true})
}

func (s *Server) handleLivez(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.Handler().ServeHTTP(w, r)
}
