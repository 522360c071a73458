package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"rwalend/native/lending"
)

// VaultConfig declares one collateral asset class served by a staking vault.
type VaultConfig struct {
	Asset       string `toml:"asset"`
	StakedAsset string `toml:"staked_asset"`
	Decimals    uint8  `toml:"decimals"`
	Address     string `toml:"address"`
}

// AssetConfig declares the decimal scale of a collateral asset that has no
// vault of its own.
type AssetConfig struct {
	Symbol   string `toml:"symbol"`
	Decimals uint8  `toml:"decimals"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Env        string `toml:"env"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// OracleConfig selects the price feeds consulted in priority order.
type OracleConfig struct {
	Priority      []string `toml:"priority"`
	MaxAgeSeconds uint64   `toml:"max_age_seconds"`
}

// Config is the full lendingd node configuration.
type Config struct {
	Service       string         `toml:"service"`
	DataDir       string         `toml:"data_dir"`
	MetricsAddr   string         `toml:"metrics_addr"`
	ModuleAddress string         `toml:"module_address"`
	Admin         string         `toml:"admin"`
	Liquidator    string         `toml:"liquidator"`
	Log           LogConfig      `toml:"log"`
	Oracle        OracleConfig   `toml:"oracle"`
	Lending       lending.Params `toml:"lending"`
	Assets        []AssetConfig  `toml:"assets"`
	Vaults        []VaultConfig  `toml:"vaults"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Service:     "lendingd",
		DataDir:     "./data",
		MetricsAddr: ":9464",
		Log:         LogConfig{Env: "dev", MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 30},
		Oracle:      OracleConfig{Priority: []string{"manual"}, MaxAgeSeconds: 24 * 60 * 60},
		Lending:     lending.DefaultParams(),
	}
}

// Load reads the TOML file at path and fills unset fields with defaults. An
// empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg.normalise(), nil
}

func (c Config) normalise() Config {
	defaults := Default()
	if strings.TrimSpace(c.Service) == "" {
		c.Service = defaults.Service
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaults.DataDir
	}
	if strings.TrimSpace(c.MetricsAddr) == "" {
		c.MetricsAddr = defaults.MetricsAddr
	}
	if len(c.Oracle.Priority) == 0 {
		c.Oracle.Priority = defaults.Oracle.Priority
	}
	if c.Oracle.MaxAgeSeconds == 0 {
		c.Oracle.MaxAgeSeconds = defaults.Oracle.MaxAgeSeconds
	}
	c.Lending = c.Lending.Normalise()
	if c.Lending.OracleMaxAgeSeconds != c.Oracle.MaxAgeSeconds {
		c.Lending.OracleMaxAgeSeconds = c.Oracle.MaxAgeSeconds
	}
	return c
}
