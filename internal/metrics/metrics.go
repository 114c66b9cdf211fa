// Package metrics exposes the node's Prometheus collectors: mempool lane
// sizes, gossip counters, wallet activity, chain height, and readiness
// gauges, served over /metrics on the node's HTTP listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector registered by the node. A nil *Metrics is
// safe to call methods on — every method no-ops — so callers that construct
// a node without metrics enabled don't need to guard every call site.
type Metrics struct {
	MempoolCriticalSize prometheus.Gauge
	MempoolBulkSize      prometheus.Gauge
	MempoolSweepsTotal   prometheus.Counter
	MempoolRemovedTotal  prometheus.Counter

	P2PAnnouncesSentTotal               prometheus.Counter
	P2PAnnouncesReceivedTotal           prometheus.Counter
	TxGossipDuplicatesTotal             prometheus.Counter
	CompactBlocksSentTotal              prometheus.Counter
	CompactBlocksReceivedTotal          prometheus.Counter
	CompactBlockReconstructionsTotal    prometheus.Counter
	CompactBlockReconstructionFailTotal prometheus.Counter
	CompactBlockBandwidthSavedBytes     prometheus.Counter

	WalletTransfersTotal   prometheus.Counter
	WalletTransferVolume   prometheus.Counter
	WalletFeesCollected    prometheus.Counter
	WalletReceiptsWritten  prometheus.Counter

	ChainHeight            prometheus.Gauge
	ReorgDepthHistogram     prometheus.Histogram
	BlockValidationSeconds  prometheus.Histogram
	TemplateCacheHits       prometheus.Counter
	TemplateCacheMisses     prometheus.Counter

	ReadyOK             prometheus.Gauge
	BlocksUntilSunset   prometheus.Gauge
	BlocksUntilHalving  prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers every collector against a fresh registry, so
// multiple nodes in the same process (tests, the testnet harness) never
// collide on the default global registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		MempoolCriticalSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_critical_size",
			Help: "Number of transactions currently queued in the critical lane.",
		}),
		MempoolBulkSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mempool_bulk_size",
			Help: "Number of transactions currently queued in the bulk lane.",
		}),
		MempoolSweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mempool_sweeps_total",
			Help: "Number of TTL sweep passes run over the mempool.",
		}),
		MempoolRemovedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "mempool_removed_total",
			Help: "Number of transactions removed from the mempool (confirmed, evicted, or expired).",
		}),

		P2PAnnouncesSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "p2p_announces_sent_total",
			Help: "Number of INV announcements sent to peers.",
		}),
		P2PAnnouncesReceivedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "p2p_announces_received_total",
			Help: "Number of INV announcements received from peers.",
		}),
		TxGossipDuplicatesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tx_gossip_duplicates_total",
			Help: "Number of gossiped transactions already known at receipt time.",
		}),
		CompactBlocksSentTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "compact_blocks_sent_total",
			Help: "Number of compact block announcements sent.",
		}),
		CompactBlocksReceivedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "compact_blocks_received_total",
			Help: "Number of compact block announcements received.",
		}),
		CompactBlockReconstructionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "compact_block_reconstructions_total",
			Help: "Number of compact blocks successfully reconstructed from the mempool.",
		}),
		CompactBlockReconstructionFailTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "compact_block_reconstruction_failures_total",
			Help: "Number of compact blocks that required a full GETDATA round trip.",
		}),
		CompactBlockBandwidthSavedBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "compact_block_bandwidth_saved_bytes",
			Help: "Estimated bytes saved by reconstructing compact blocks instead of transferring full ones.",
		}),

		WalletTransfersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_transfers_total",
			Help: "Number of transfers applied to the ledger.",
		}),
		WalletTransferVolume: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_transfer_volume",
			Help: "Total base units transferred across applied transfers.",
		}),
		WalletFeesCollected: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_fees_collected",
			Help: "Total base units credited to the fee collector address.",
		}),
		WalletReceiptsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "wallet_receipts_written",
			Help: "Number of receipts appended to the receipts log.",
		}),

		ChainHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chain_height",
			Help: "Current chain tip height.",
		}),
		ReorgDepthHistogram: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "reorg_depth_histogram",
			Help:    "Distribution of reorg depths (number of blocks reverted).",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
		}),
		BlockValidationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "block_validation_seconds",
			Help:    "Wall-clock time spent validating and applying a block.",
			Buckets: prometheus.DefBuckets,
		}),
		TemplateCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "template_cache_hits",
			Help: "Number of mining template requests served from cache.",
		}),
		TemplateCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "template_cache_misses",
			Help: "Number of mining template requests that rebuilt the template.",
		}),

		ReadyOK: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ready_ok",
			Help: "1 if the node currently reports itself ready, 0 otherwise.",
		}),
		BlocksUntilSunset: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blocks_until_sunset",
			Help: "Blocks remaining until the configured testnet sunset height (0 on mainnet or if unset).",
		}),
		BlocksUntilHalving: factory.NewGauge(prometheus.GaugeOpts{
			Name: "blocks_until_halving",
			Help: "Blocks remaining until the next emission halving.",
		}),
	}

	return m
}

// Handler returns the HTTP handler serving this Metrics' registry in
// Prometheus text exposition format, mounted at /metrics by the RPC server.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics disabled", http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransfer updates the wallet-activity counters for one applied
// transfer.
func (m *Metrics) RecordTransfer(amount, fee float64) {
	if m == nil {
		return
	}
	m.WalletTransfersTotal.Inc()
	m.WalletTransferVolume.Add(amount)
	m.WalletFeesCollected.Add(fee)
	m.WalletReceiptsWritten.Inc()
}

// SetChainHeight updates the chain_height gauge.
func (m *Metrics) SetChainHeight(height uint64) {
	if m == nil {
		return
	}
	m.ChainHeight.Set(float64(height))
}

// SetReady updates the ready_ok gauge.
func (m *Metrics) SetReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.ReadyOK.Set(1)
	} else {
		m.ReadyOK.Set(0)
	}
}

// SetMempoolSizes updates the critical/bulk lane gauges.
func (m *Metrics) SetMempoolSizes(critical, bulk int) {
	if m == nil {
		return
	}
	m.MempoolCriticalSize.Set(float64(critical))
	m.MempoolBulkSize.Set(float64(bulk))
}
