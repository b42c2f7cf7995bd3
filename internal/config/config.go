// Package config loads and persists the daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/swapdeck/walletd/internal/chain"
)

// Config is the top-level daemon configuration.
type Config struct {
	API     APIConfig               `yaml:"api"`
	Logging LoggingConfig           `yaml:"logging"`
	Storage StorageConfig           `yaml:"storage"`
	Chains  map[string]*ChainConfig `yaml:"chains"`
}

// APIConfig configures the JSON-RPC server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig configures the on-disk key store.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// ChainConfig is the per-chain configuration. NodeURL is required for
// EVM chains; ExplorerURL for all chains.
type ChainConfig struct {
	Enabled        bool       `yaml:"enabled"`
	NodeURL        string     `yaml:"node_url,omitempty"`
	ExplorerURL    string     `yaml:"explorer_url"`
	ExplorerAPIKey string     `yaml:"explorer_api_key,omitempty"`
	AdminFee       *FeeConfig `yaml:"admin_fee,omitempty"`
}

// FeeConfig is the admin-fee policy for a chain.
type FeeConfig struct {
	Percent float64 `yaml:"percent"`
	Min     float64 `yaml:"min"`
	Address string  `yaml:"address"`
}

// Default returns the default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		API: APIConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8343",
		},
		Logging: LoggingConfig{Level: "info"},
		Storage: StorageConfig{DataDir: filepath.Join(home, ".walletd")},
		Chains: map[string]*ChainConfig{
			chain.ETH.Key(): {
				Enabled:     true,
				NodeURL:     "https://eth.llamarpc.com",
				ExplorerURL: "https://api.etherscan.io/api",
			},
			chain.BNB.Key(): {
				Enabled:     true,
				NodeURL:     "https://bsc-dataseed.binance.org",
				ExplorerURL: "https://api.bscscan.com/api",
			},
			chain.MATIC.Key(): {
				Enabled:     true,
				NodeURL:     "https://polygon-rpc.com",
				ExplorerURL: "https://api.polygonscan.com/api",
			},
			chain.ARBETH.Key(): {
				Enabled:     true,
				NodeURL:     "https://arb1.arbitrum.io/rpc",
				ExplorerURL: "https://api.arbiscan.io/api",
			},
			chain.GHOST.Key(): {
				Enabled:     true,
				ExplorerURL: "https://ghostscan.io/ghost-insight-api",
			},
			chain.NEXT.Key(): {
				Enabled:     true,
				ExplorerURL: "https://explore.next.exchange/api",
			},
		},
	}
}

// Load reads the configuration from path. If the file does not exist,
// the default configuration is written there and returned.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Chain returns the configuration for a chain ID, or nil if absent.
func (c *Config) Chain(id chain.ID) *ChainConfig {
	return c.Chains[id.Key()]
}

// FeePolicy converts the fee config into a chain fee policy. Returns
// nil when no fee is configured or the recipient address is empty.
func (cc *ChainConfig) FeePolicy() *chain.FeePolicy {
	if cc == nil || cc.AdminFee == nil || cc.AdminFee.Address == "" {
		return nil
	}
	return &chain.FeePolicy{
		Percent: cc.AdminFee.Percent,
		Min:     cc.AdminFee.Min,
		Address: cc.AdminFee.Address,
	}
}
