// Package config is the single source of truth for every engine parameter:
// which network's deployment to read the deposit portal address from,
// where the SQLite data directory lives, the AMM's fee and minimum-liquidity
// constants, and the logging level. Loaded from a YAML file the same way
// the teacher's node configuration was, with CLI flags in cmd/streamdex
// overriding whatever the file specifies.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/streamdex/engine/pkg/address"
)

// NetworkType selects which deployments/<network>/ directory the portal
// address is read from.
type NetworkType string

const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkTestnet NetworkType = "testnet"
	NetworkLocal   NetworkType = "local"
)

// Config is the engine's complete parameter set.
type Config struct {
	Network NetworkType `yaml:"network"`

	Storage StorageConfig `yaml:"storage"`
	AMM     AMMConfig     `yaml:"amm"`
	Logging LoggingConfig `yaml:"logging"`

	// DeploymentsDir holds deployments/<network>/ERC20Portal.json, the file
	// LoadPortalAddress reads (spec.md §6).
	DeploymentsDir string `yaml:"deployments_dir"`
}

// StorageConfig configures internal/store.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// AMMConfig configures internal/amm's constants. These are engine
// parameters, not per-pair settings: dynamic fee curves are a named
// Non-goal (spec.md §1).
type AMMConfig struct {
	// MinimumLiquidity is permanently locked to the zero address on a
	// pair's first deposit.
	MinimumLiquidity int64 `yaml:"minimum_liquidity"`
	// UserFeesBps is the swap fee in thousandths; 0 disables fees.
	UserFeesBps int64 `yaml:"user_fees_bps"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Prefix string `yaml:"prefix"`
}

// Default returns the engine's default configuration: local network, fee
// disabled, the standard MINIMUM_LIQUIDITY lock, info logging.
func Default() *Config {
	return &Config{
		Network: NetworkLocal,
		Storage: StorageConfig{DataDir: "./data"},
		AMM:     AMMConfig{MinimumLiquidity: 100000, UserFeesBps: 0},
		Logging: LoggingConfig{Level: "info", Prefix: "streamdex"},
		DeploymentsDir: "./deployments",
	}
}

// Load reads a YAML configuration file from path, falling back to Default
// for any field the file omits.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// portalDeployment is the shape of deployments/<network>/ERC20Portal.json,
// as produced by the Cartesi CLI's deployment output.
type portalDeployment struct {
	Address string `json:"address"`
}

// LoadPortalAddress reads deployments/<network>/ERC20Portal.json under
// cfg.DeploymentsDir and returns the deposit portal's checksummed address,
// the value the dispatcher compares every action's msg_sender against to
// recognise a deposit.
func (cfg *Config) LoadPortalAddress() (address.Address, error) {
	path := filepath.Join(cfg.DeploymentsDir, string(cfg.Network), "ERC20Portal.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return address.Address{}, fmt.Errorf("failed to read portal deployment %s: %w", path, err)
	}

	var dep portalDeployment
	if err := json.Unmarshal(data, &dep); err != nil {
		return address.Address{}, fmt.Errorf("failed to parse portal deployment %s: %w", path, err)
	}

	return address.Parse(dep.Address)
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
