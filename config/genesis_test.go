package config

import "testing"

func TestMainnetGenesis_Valid(t *testing.T) {
	g := MainnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("mainnet genesis should be valid: %v", err)
	}
}

func TestTestnetGenesis_Valid(t *testing.T) {
	g := TestnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("testnet genesis should be valid: %v", err)
	}
}

func TestGenesis_Validate_RejectsBadConsensusType(t *testing.T) {
	g := MainnetGenesis()
	g.Protocol.Consensus.Type = "poa"
	if err := g.Validate(); err == nil {
		t.Error("expected error for non-pow consensus type")
	}
}

func TestGenesis_Validate_RejectsZeroBlockReward(t *testing.T) {
	g := MainnetGenesis()
	g.Protocol.Consensus.BlockReward = "0"
	if err := g.Validate(); err == nil {
		t.Error("expected error for zero block reward")
	}
}

func TestGenesis_Validate_RejectsMinerShareOverflow(t *testing.T) {
	g := MainnetGenesis()
	g.Protocol.Consensus.MinerShareBps = 10001
	if err := g.Validate(); err == nil {
		t.Error("expected error for miner_share_bps > 10000")
	}
}

func TestGenesis_Validate_RejectsAllocExceedingMaxSupply(t *testing.T) {
	g := MainnetGenesis()
	g.Protocol.Consensus.MaxSupply = "100"
	g.Alloc = map[string]string{
		"0000000000000000000000000000000000000000000000000000000000000000": "1000",
	}
	if err := g.Validate(); err == nil {
		t.Error("expected error when genesis allocations exceed max_supply")
	}
}

func TestGenesis_Validate_RejectsBadAllocAddress(t *testing.T) {
	g := MainnetGenesis()
	g.Alloc = map[string]string{"not-hex": "100"}
	if err := g.Validate(); err == nil {
		t.Error("expected error for malformed alloc address")
	}
}

func TestGenesis_Validate_RejectsGuardianWithoutAddress(t *testing.T) {
	g := MainnetGenesis()
	g.Protocol.Guardian.Enabled = true
	g.Protocol.Guardian.Address = ""
	if err := g.Validate(); err == nil {
		t.Error("expected error for enabled guardian rule missing an address")
	}
}

func TestGenesis_Hash_StableForIdenticalGenesis(t *testing.T) {
	a, err := MainnetGenesis().Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := MainnetGenesis().Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a != b {
		t.Error("hash of two identically-constructed genesis configs should match")
	}
}

func TestGenesis_Hash_DiffersOnAllocChange(t *testing.T) {
	a, err := MainnetGenesis().Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	g := MainnetGenesis()
	g.Alloc["33333333333333333333333333333333333333333333333333333333333333"] = "1"
	b, err := g.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Error("changing alloc should change the genesis hash")
	}
}

func TestGenesisFor_ReturnsExpectedNetwork(t *testing.T) {
	if GenesisFor(Mainnet).ChainName != MainnetGenesis().ChainName {
		t.Error("GenesisFor(Mainnet) should match MainnetGenesis")
	}
	if GenesisFor(Testnet).ChainName != TestnetGenesis().ChainName {
		t.Error("GenesisFor(Testnet) should match TestnetGenesis")
	}
}
