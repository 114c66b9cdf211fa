package config

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be in range [0, 65535]")
	}
	if cfg.Mining.Threads < 0 {
		return fmt.Errorf("mining.threads must not be negative")
	}
	if cfg.Mining.Enabled && cfg.Mining.MinerAddress != "" {
		if _, err := types.ParseAddress(cfg.Mining.MinerAddress); err != nil {
			return fmt.Errorf("mining.address is not a valid address: %w", err)
		}
	}
	if cfg.Mempool.MaxSize < 0 {
		return fmt.Errorf("mempool.max_size must not be negative")
	}
	if cfg.Mempool.TxTTLSeconds < 0 {
		return fmt.Errorf("mempool.ttl_seconds must not be negative")
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("ratelimit.rps must be positive when rate limiting is enabled")
	}
	if cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit.burst must not be negative")
	}
	return nil
}
