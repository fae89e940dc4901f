package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir         string        `toml:"DataDir"`
	DatabaseBackend string        `toml:"DatabaseBackend"`
	IndexDSN        string        `toml:"IndexDSN"`
	Lending         LendingConfig `toml:"Lending"`
	Genesis         GenesisConfig `toml:"Genesis"`
}

// Load loads the configuration from the given path, writing a default file
// first if none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	cfg.DatabaseBackend = strings.ToLower(strings.TrimSpace(cfg.DatabaseBackend))
	if cfg.DatabaseBackend == "" {
		cfg.DatabaseBackend = BackendLevelDB
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.IndexDSN = strings.TrimSpace(cfg.IndexDSN)
	defaults := DefaultLending()
	if cfg.Lending.ModuleAddress.IsZero() {
		cfg.Lending.ModuleAddress = defaults.ModuleAddress
	}
	if cfg.Lending.StakingVault.IsZero() {
		cfg.Lending.StakingVault = defaults.StakingVault
	}
	if cfg.Lending.LendingPool.IsZero() {
		cfg.Lending.LendingPool = defaults.LendingPool
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:         "./lend-data",
		DatabaseBackend: BackendLevelDB,
		IndexDSN:        "",
		Lending:         DefaultLending(),
		Genesis:         GenesisConfig{Balances: []GenesisBalance{}},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// StatePath is the leveldb directory for the record store.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state")
}

// ResolvedIndexDSN returns the read model DSN, defaulting to a sqlite file in
// the data directory.
func (c *Config) ResolvedIndexDSN() string {
	if c.IndexDSN != "" {
		return c.IndexDSN
	}
	if c.DatabaseBackend == BackendMemory || c.DataDir == "" {
		return "file::memory:?cache=shared"
	}
	return filepath.Join(c.DataDir, "index.db")
}
