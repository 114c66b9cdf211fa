// Package rpc implements the node's HTTP/JSON API: wallet balance and
// transfer submission, transaction and block lookup, mempool and receipt
// listing, status/readiness, Prometheus metrics, and a thin P2P bridge.
package rpc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-chain/config"
	"github.com/Klingon-tech/klingnet-chain/internal/chain"
	klog "github.com/Klingon-tech/klingnet-chain/internal/log"
	"github.com/Klingon-tech/klingnet-chain/internal/mempool"
	"github.com/Klingon-tech/klingnet-chain/internal/metrics"
	"github.com/Klingon-tech/klingnet-chain/internal/miner"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// ReadinessProvider reports the node's eligibility and sync state for
// /api/ready and /status. A nil provider makes the node report itself ready
// once the chain has been initialized from genesis, which is the best this
// package can do without a wired P2P layer.
type ReadinessProvider interface {
	// Ready reports whether the node considers itself ready to serve and
	// mine, plus the reasons it is not when false.
	Ready() (ready bool, reasons []string)
	BackboneConnected() bool
	ChainSynced() bool
	ChainLag() uint64
}

// P2PBridge is the minimal surface the /p2p/* HTTP routes need from the
// gossip layer. It is intentionally decoupled from any concrete transport:
// until a wired implementation is set via SetP2PBridge, every /p2p/* route
// answers 501 not_implemented rather than silently no-op succeeding.
type P2PBridge interface {
	HandleHello(body []byte) (interface{}, error)
	HandleInv(body []byte) (interface{}, error)
	HandleGetData(body []byte) (interface{}, error)
	HandleTx(body []byte) (interface{}, error)
	HandleBlock(body []byte) (interface{}, error)
	HandleCompactBlock(body []byte) (interface{}, error)
	HandleGetBlockTxs(body []byte) (interface{}, error)
}

// Server is the node's HTTP API server.
type Server struct {
	addr string

	chain    *chain.Chain
	pool     *mempool.Pool
	miner    *miner.Miner
	metrics  *metrics.Metrics
	identity *Identity
	genesis  *config.Genesis

	readiness ReadinessProvider
	p2p       P2PBridge

	adminToken string

	server *http.Server
	logger zerolog.Logger
	ln     net.Listener

	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
	rateCfg   config.RateLimitConfig
}

// New creates the HTTP API server. identity may be nil if node identity
// could not be established (the /status node_id/pubkey_fingerprint fields
// are then omitted rather than the server refusing to start).
func New(addr string, ch *chain.Chain, pool *mempool.Pool, m *miner.Miner, mx *metrics.Metrics,
	identity *Identity, genesis *config.Genesis, rpcCfg config.RPCConfig, rateCfg config.RateLimitConfig) *Server {

	s := &Server{
		addr:     addr,
		chain:    ch,
		pool:     pool,
		miner:    m,
		metrics:  mx,
		identity: identity,
		genesis:  genesis,
		logger:   klog.WithComponent("rpc"),
		limiters: make(map[string]*rate.Limiter),
		rateCfg:  rateCfg,
	}
	s.allowedNets = parseAllowedIPs(rpcCfg.AllowedIPs)
	s.corsOrigins = rpcCfg.CORSOrigins

	s.server = &http.Server{
		Handler:      s.middleware(s.routes()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// SetReadinessProvider wires the node's live readiness/sync state. Without
// one, /api/ready reports ready once the chain has been initialized from
// genesis.
func (s *Server) SetReadinessProvider(r ReadinessProvider) {
	s.readiness = r
}

// SetP2PBridge wires the gossip layer's HTTP-facing handlers. Without one,
// every /p2p/* route answers 501 not_implemented.
func (s *Server) SetP2PBridge(b P2PBridge) {
	s.p2p = b
}

// SetAdminToken sets the bearer token required by /admin/* routes. An empty
// token (the default) disables all admin routes with 401 unauthorized.
func (s *Server) SetAdminToken(token string) {
	s.adminToken = token
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine. It returns
// immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// isIPAllowed reports whether ip matches the configured allow-list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			break
		}
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-admin-token")
	}
}

// middleware applies IP filtering, CORS, preflight handling, and body-size
// limiting ahead of every route.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}

		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		next.ServeHTTP(w, r)
	})
}

// limiterFor returns (creating if needed) the per-IP token bucket used to
// rate-limit submit_transfer/submit_tx. Rate limiting is applied only at
// this HTTP submit boundary, never to peer-received transactions, so honest
// peers relaying gossip never self-stall.
func (s *Server) limiterFor(remoteAddr string) *rate.Limiter {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	l, ok := s.limiters[host]
	if !ok {
		burst := s.rateCfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(s.rateCfg.RequestsPerSecond), burst)
		s.limiters[host] = l
	}
	return l
}

// allowSubmit checks the rate limiter when rate limiting is enabled.
func (s *Server) allowSubmit(r *http.Request) bool {
	if !s.rateCfg.Enabled {
		return true
	}
	return s.limiterFor(r.RemoteAddr).Allow()
}
