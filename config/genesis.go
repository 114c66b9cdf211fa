package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingnet-chain/pkg/crypto"
	"github.com/Klingon-tech/klingnet-chain/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// ConsensusPoW is the only supported consensus type. Vision Node is PoW-only;
// the field is kept on Genesis for forward compatibility and validated strictly.
const ConsensusPoW = "pow"

// Denomination constants.
// 1 coin = 10^12 base units. All on-chain values (balances, amounts, fees,
// supply) are U128 base units.
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6
)

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize = 2_000_000 // 2 MB max block size (header + all tx signing bytes)
	MaxBlockTxs  = 500       // Max transactions per block (including coinbase)
)

// MaxReorgDepth bounds how many blocks a reorg may revert before the node
// refuses to switch branches and instead flags for manual intervention.
const MaxReorgDepth = 64

// LWMAWindow is the number of prior headers the difficulty retarget averages over.
const LWMAWindow = 25

// Genesis holds the genesis block configuration and protocol rules. Immutable
// after chain launch — changes require a hard fork.
type Genesis struct {
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`

	Timestamp uint64 `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Alloc maps a hex address to its initial balance in base units.
	Alloc map[string]string `json:"alloc"`

	Protocol ProtocolConfig `json:"protocol"`
}

// ProtocolConfig holds consensus-critical rules. All nodes MUST agree.
type ProtocolConfig struct {
	Consensus ConsensusRules `json:"consensus"`
	Guardian  GuardianRules  `json:"guardian,omitempty"`
}

// ConsensusRules defines how blocks are produced and validated.
type ConsensusRules struct {
	Type string `json:"type"` // Always "pow".

	BlockTime int `json:"block_time"` // Target seconds between blocks.

	InitialDifficulty uint64 `json:"initial_difficulty"`

	BlockReward     string `json:"block_reward"`               // Base units per block, decimal string.
	MaxSupply       string `json:"max_supply"`                 // Total coin cap, 0/empty = unlimited.
	HalvingInterval uint64 `json:"halving_interval,omitempty"` // Blocks between reward halvings (0 = no halving).
	MinerShareBps   uint64 `json:"miner_share_bps"`            // Miner's share of the block reward, in basis points (of 10000); remainder goes to the treasury address.
	TreasuryAddress string `json:"treasury_address,omitempty"`

	// FeeCollectorAddress receives every transfer's fee directly, independent
	// of the miner's coinbase share. Mandatory: a chain with no configured
	// collector has nowhere conservation-safe to put collected fees.
	FeeCollectorAddress string `json:"fee_collector_address"`
}

// GuardianRules enforces that the first few mainnet blocks are mined by a
// known address, guarding against a silent launch-time fork.
type GuardianRules struct {
	Enabled      bool   `json:"enabled"`
	Address      string `json:"address,omitempty"`
	UntilHeight  uint64 `json:"until_height,omitempty"` // Guardian rule applies for blocks 1..UntilHeight inclusive.
}

// =============================================================================
// Testnet Identity
//
// Derived from a well-known test seed (DO NOT use on mainnet).
// =============================================================================

const (
	// TestnetValidatorPrivKeySeed is the 32-byte Ed25519 seed (hex) for the
	// well-known testnet miner identity.
	TestnetValidatorPrivKeySeed = "0000000000000000000000000000000000000000000000000000000000000001"

	// TestnetAddress is the raw-hex address derived from the testnet seed.
	TestnetAddress = "4cb5abf6ad79fbf5abbccafcc269d85cd2651ed4b885b5869f241aedf0a5ba29"
)

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "vision-mainnet-1",
		ChainName: "Vision Node Mainnet",
		Symbol:    "VIS",
		Timestamp: 1770734103, // 2026-02-10
		ExtraData: "Vision Node Genesis",
		Alloc: map[string]string{
			"0000000000000000000000000000000000000000000000000000000000000000": "0",
		},
		Protocol: ProtocolConfig{
			Consensus: ConsensusRules{
				Type:              ConsensusPoW,
				BlockTime:         15,
				InitialDifficulty: 1_000_000,
				BlockReward:       fmt.Sprintf("%d", 5*Coin),
				MaxSupply:         fmt.Sprintf("%d", 21_000_000*Coin),
				HalvingInterval:   2_100_000,
				MinerShareBps:       9000, // 90% to the miner, 10% to the treasury.
				TreasuryAddress:     "1111111111111111111111111111111111111111111111111111111111111111",
				FeeCollectorAddress: "3333333333333333333333333333333333333333333333333333333333333333",
			},
			Guardian: GuardianRules{
				Enabled:     true,
				Address:     "2222222222222222222222222222222222222222222222222222222222222222",
				UntilHeight: 3,
			},
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "vision-testnet-1"
	g.ChainName = "Vision Node Testnet"
	g.ExtraData = "Vision Node Testnet Genesis"

	g.Protocol.Consensus.InitialDifficulty = 1000 // Much easier for local testing.
	g.Protocol.Guardian.Enabled = false           // No launch guardian on testnet.

	g.Alloc = map[string]string{
		TestnetAddress: fmt.Sprintf("%d", 200_000*Coin),
	}

	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// Validate checks that the genesis configuration is well-formed.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Protocol.Consensus.Type != ConsensusPoW {
		return fmt.Errorf("unsupported consensus type: %s", g.Protocol.Consensus.Type)
	}
	if g.Protocol.Consensus.BlockTime <= 0 {
		return fmt.Errorf("block_time must be positive")
	}
	if g.Protocol.Consensus.InitialDifficulty == 0 {
		return fmt.Errorf("initial_difficulty must be positive")
	}
	reward, err := types.ParseU128(g.Protocol.Consensus.BlockReward)
	if err != nil {
		return fmt.Errorf("invalid block_reward: %w", err)
	}
	if reward.IsZero() {
		return fmt.Errorf("block_reward must be positive")
	}
	if g.Protocol.Consensus.MinerShareBps > 10000 {
		return fmt.Errorf("miner_share_bps must be at most 10000")
	}

	var maxSupply types.U128
	if g.Protocol.Consensus.MaxSupply != "" {
		maxSupply, err = types.ParseU128(g.Protocol.Consensus.MaxSupply)
		if err != nil {
			return fmt.Errorf("invalid max_supply: %w", err)
		}
	}

	var totalAlloc types.U128
	for addrStr, v := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		amount, err := types.ParseU128(v)
		if err != nil {
			return fmt.Errorf("invalid alloc amount for %q: %w", addrStr, err)
		}
		totalAlloc = totalAlloc.Add(amount)
	}
	if !maxSupply.IsZero() && totalAlloc.GreaterThan(maxSupply) {
		return fmt.Errorf("genesis allocations (%s) exceed max_supply (%s)", totalAlloc, maxSupply)
	}

	if g.Protocol.Guardian.Enabled {
		if _, err := types.ParseAddress(g.Protocol.Guardian.Address); err != nil {
			return fmt.Errorf("invalid guardian address: %w", err)
		}
	}

	if _, err := types.ParseAddress(g.Protocol.Consensus.FeeCollectorAddress); err != nil {
		return fmt.Errorf("invalid fee_collector_address: %w", err)
	}

	return nil
}

// Hash returns the BLAKE3 hash of the genesis configuration, used to detect
// genesis mismatches between peers before they can exchange blocks.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
