package config

import "fmt"

const (
	BackendLevelDB = "leveldb"
	BackendMemory  = "memory"
)

// Validate checks the loaded configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.DatabaseBackend {
	case BackendLevelDB, BackendMemory:
	default:
		return fmt.Errorf("config: unsupported DatabaseBackend %q", c.DatabaseBackend)
	}
	if c.DatabaseBackend == BackendLevelDB && c.DataDir == "" {
		return fmt.Errorf("config: DataDir required for leveldb backend")
	}
	l := c.Lending
	if l.ModuleAddress.IsZero() || l.StakingVault.IsZero() || l.LendingPool.IsZero() {
		return fmt.Errorf("config: lending: ModuleAddress, StakingVault and LendingPool must be set")
	}
	if l.ModuleAddress == l.StakingVault || l.ModuleAddress == l.LendingPool || l.StakingVault == l.LendingPool {
		return fmt.Errorf("config: lending: module, vault and pool addresses must differ")
	}
	seen := make(map[string]struct{}, len(c.Genesis.Balances))
	for i, alloc := range c.Genesis.Balances {
		if alloc.Address.IsZero() {
			return fmt.Errorf("config: genesis balance %d: address required", i)
		}
		key := alloc.Address.String()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("config: genesis balance %d: duplicate address %s", i, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
