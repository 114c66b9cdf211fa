package rpc

import "net/http"

// routes builds the method+path-pattern mux for every endpoint in the
// node's HTTP API.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /wallet/{addr}/balance", s.handleWalletBalance)
	mux.HandleFunc("GET /wallet/{addr}/nonce", s.handleWalletNonce)
	mux.HandleFunc("POST /wallet/transfer", s.handleWalletTransfer)
	mux.HandleFunc("POST /submit_tx", s.handleSubmitTx)
	mux.HandleFunc("GET /tx/{hash}", s.handleGetTx)
	mux.HandleFunc("GET /mempool", s.handleMempool)
	mux.HandleFunc("GET /receipts/latest", s.handleReceiptsLatest)
	mux.HandleFunc("GET /block/{id}", s.handleGetBlock)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.HandleFunc("GET /livez", s.handleLivez)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /p2p/hello", s.handleP2P(func(b P2PBridge, body []byte) (interface{}, error) { return b.HandleHello(body) }))
	mux.HandleFunc("POST /p2p/inv", s.handleP2P(func(b P2PBridge, body []byte) (interface{}, error) { return b.HandleInv(body) }))
	mux.HandleFunc("POST /p2p/getdata", s.handleP2P(func(b P2PBridge, body []byte) (interface{}, error) { return b.HandleGetData(body) }))
	mux.HandleFunc("POST /p2p/tx", s.handleP2P(func(b P2PBridge, body []byte) (interface{}, error) { return b.HandleTx(body) }))
	mux.HandleFunc("POST /p2p/block", s.handleP2P(func(b P2PBridge, body []byte) (interface{}, error) { return b.HandleBlock(body) }))
	mux.HandleFunc("POST /p2p/compact_block", s.handleP2P(func(b P2PBridge, body []byte) (interface{}, error) { return b.HandleCompactBlock(body) }))
	mux.HandleFunc("POST /p2p/get_block_txs", s.handleP2P(func(b P2PBridge, body []byte) (interface{}, error) { return b.HandleGetBlockTxs(body) }))

	mux.HandleFunc("GET /admin/ping", s.withAdmin(s.handleAdminPing))
	mux.HandleFunc("GET /admin/info", s.withAdmin(s.handleAdminInfo))
	mux.HandleFunc("POST /admin/prune/{kind}", s.withAdmin(s.handleAdminPrune))
	mux.HandleFunc("POST /admin/mempool/save", s.withAdmin(s.handleAdminMempoolSave))
	mux.HandleFunc("POST /admin/mempool/clear", s.withAdmin(s.handleAdminMempoolClear))
	mux.HandleFunc("POST /admin/mempool/sweeper", s.withAdmin(s.handleAdminMempoolSweeper))

	return mux
}
