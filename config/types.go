package config

import (
	"stakelend/crypto"
)

// LendingConfig names the protocol-controlled balances. The module address is
// the authority over both the staking vault and the lending pool.
type LendingConfig struct {
	ModuleAddress crypto.Address `toml:"ModuleAddress"`
	StakingVault  crypto.Address `toml:"StakingVault"`
	LendingPool   crypto.Address `toml:"LendingPool"`
	// Paused rejects every lending transition while set.
	Paused bool `toml:"Paused"`
}

// GenesisBalance is an initial stable asset allocation.
type GenesisBalance struct {
	Address crypto.Address `toml:"Address"`
	Amount  uint64         `toml:"Amount"`
}

// GenesisConfig lists the allocations minted when the data directory is
// first initialised.
type GenesisConfig struct {
	Balances []GenesisBalance `toml:"Balances"`
}

// DeriveAddress maps a label onto a stable address. It backs the default
// module, vault and pool addresses.
func DeriveAddress(label string) crypto.Address {
	digest := crypto.Keccak256([]byte("stakelend/" + label))
	return crypto.MustBytesToAddress(digest[len(digest)-crypto.AddressLength:])
}

// DefaultLending returns the derived protocol addresses.
func DefaultLending() LendingConfig {
	return LendingConfig{
		ModuleAddress: DeriveAddress("module"),
		StakingVault:  DeriveAddress("staking-vault"),
		LendingPool:   DeriveAddress("lending-pool"),
	}
}
