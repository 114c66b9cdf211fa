// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: defined in genesis, immutable, must match across all nodes
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration. These settings can vary
// between nodes without breaking consensus.
type Config struct {
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	P2P       P2PConfig
	RPC       RPCConfig
	Mining    MiningConfig
	Mempool   MempoolConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	Log       LogConfig

	// Guardian overrides the genesis guardian rule at runtime (operational
	// kill-switch for emergencies; genesis remains the source of truth for
	// validation unless this is explicitly set).
	LaunchGuardianEnabled bool `conf:"guardian.enabled"`

	// RebuildIndexes is a maintenance flag, not persisted in the config file.
	RebuildIndexes bool
}

// P2PConfig holds peer-to-peer network settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	NoDiscover bool     `conf:"p2p.nodiscover"`
	DHTServer  bool     `conf:"p2p.dhtserver"`
	ClearBans  bool     // Clear all peer bans on startup (not persisted).
}

// RPCConfig holds HTTP API server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"`
}

// MiningConfig holds block-production settings.
type MiningConfig struct {
	Enabled      bool   `conf:"mining.enabled"`
	MinerAddress string `conf:"mining.address"`
	IdentityFile string `conf:"mining.identityfile"`
	Threads      int    `conf:"mining.threads"`
}

// MempoolConfig holds mempool tuning knobs.
type MempoolConfig struct {
	CriticalTipThreshold uint64 `conf:"mempool.critical_tip"`
	MaxSize              int    `conf:"mempool.max_size"`
	TxTTLSeconds         int    `conf:"mempool.ttl_seconds"`
}

// RateLimitConfig holds HTTP submit-boundary rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool    `conf:"ratelimit.enabled"`
	RequestsPerSecond float64 `conf:"ratelimit.rps"`
	Burst             int     `conf:"ratelimit.burst"`
}

// MetricsConfig holds Prometheus /metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `conf:"metrics.enabled"`
	Addr    string `conf:"metrics.addr"`
	Port    int    `conf:"metrics.port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.vision
//	macOS:   ~/Library/Application Support/Vision
//	Windows: %APPDATA%\Vision
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vision"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Vision")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Vision")
		}
		return filepath.Join(home, "AppData", "Roaming", "Vision")
	default:
		return filepath.Join(home, ".vision")
	}
}

// ChainDataDir returns the chain-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// StoreDir returns the ledger/block store directory.
func (c *Config) StoreDir() string {
	return filepath.Join(c.ChainDataDir(), "store")
}

// IdentityDir returns the node identity keystore directory.
func (c *Config) IdentityDir() string {
	return filepath.Join(c.ChainDataDir(), "identity")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "vision.conf")
}
