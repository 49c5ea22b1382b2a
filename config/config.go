// Package config loads and writes the engine's YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okarvik/reservex/core"
)

// RPCConfig configures the HTTP surface.
type RPCConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"` // empty → /rpc is open
}

// AuditConfig configures the background solvency auditor.
type AuditConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // standard five-field cron expression
}

// Config holds all engine configuration plus the one-time genesis input.
type Config struct {
	DataDir  string       `yaml:"data_dir"`
	IndexDB  string       `yaml:"index_db"` // empty → <data_dir>/index.db
	LogLevel string       `yaml:"log_level"`
	RPC      RPCConfig    `yaml:"rpc"`
	Audit    AuditConfig  `yaml:"audit"`
	Genesis  core.Genesis `yaml:"genesis"`
}

// Default returns a single-operator development configuration.
func Default() *Config {
	return &Config{
		DataDir:  "./data",
		LogLevel: "info",
		RPC:      RPCConfig{Addr: ":8600"},
		Audit:    AuditConfig{Enabled: true, Schedule: "*/5 * * * *"},
		Genesis: core.Genesis{
			EngineID: "reservex-dev",
			NativeToken: core.TokenConfig{
				Name:   "Reserve Exchange Token",
				Symbol: "RXT",
			},
			PaymentToken: core.TokenConfig{
				Name:   "Settlement Dollar",
				Symbol: "USDX",
			},
			BuyPrice:       100,
			SaleTokenPrice: core.DefaultSaleTokenPrice,
		},
	}
}

// Load reads a YAML config file from path, layered over Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexPath returns the SQLite index location for this config.
func (c *Config) IndexPath() string {
	if c.IndexDB != "" {
		return c.IndexDB
	}
	return c.DataDir + "/index.db"
}
