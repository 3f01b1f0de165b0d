// Package config provides centralized configuration for the Mostro trading
// client: which coordinator and relays to use, trading limits, and the price
// oracle endpoint.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// NetworkType selects the Bitcoin network the client trades on.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// MostroInstance describes one coordinator the client can route orders
// through.
type MostroInstance struct {
	Name   string `json:"name"`
	PubKey string `json:"pubkey"`
}

// Limits holds the Safety Envelope's trade-size and frequency bounds (spec
// §4.I).
type Limits struct {
	MaxTradeAmountSats int64         `json:"max_trade_amount_sats"`
	MaxDailyVolumeSats int64         `json:"max_daily_volume_sats"`
	MaxTradesPerDay    int           `json:"max_trades_per_day"`
	CooldownSeconds    int           `json:"cooldown_seconds"`
}

// CooldownDuration returns Limits.CooldownSeconds as a time.Duration.
func (l Limits) CooldownDuration() time.Duration {
	return time.Duration(l.CooldownSeconds) * time.Second
}

// MostroConfig is the client's root configuration document, persisted as
// JSON (spec §6 mandates a JSON config format, unlike the teacher's YAML).
type MostroConfig struct {
	MostroPubKey         string            `json:"mostro_pubkey"`
	Relays               []string          `json:"relays"`
	Network              NetworkType        `json:"network"`
	Limits               Limits            `json:"limits"`
	PriceAPI             string            `json:"price_api"`
	// MaxPremiumDeviation is a percent (e.g. 5.0 = 5%), compared directly
	// against an order's premium or computed price deviation (spec §4.I).
	MaxPremiumDeviation  float64           `json:"max_premium_deviation"`
	MostroInstances      []MostroInstance  `json:"mostro_instances,omitempty"`
	SeedFile             string            `json:"seed_file"`
	DataDir              string            `json:"data_dir"`
}

// DefaultConfig returns conservative client defaults.
func DefaultConfig() *MostroConfig {
	return &MostroConfig{
		MostroPubKey: "",
		Relays: []string{
			"wss://relay.mostro.network",
			"wss://relay.damus.io",
		},
		Network: Mainnet,
		Limits: Limits{
			MaxTradeAmountSats: 5_000_000,
			MaxDailyVolumeSats: 20_000_000,
			MaxTradesPerDay:    10,
			CooldownSeconds:    30,
		},
		PriceAPI:            "https://api.yadio.io",
		MaxPremiumDeviation: 5.0, // percent
		SeedFile:            "seed.json",
		DataDir:             "~/.mostro-client",
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.json"

// LoadConfig loads configuration from a JSON file under dataDir. If the file
// doesn't exist, it creates one populated with defaults (spec §6, following
// the teacher's create-on-first-run convention).
func LoadConfig(dataDir string) (*MostroConfig, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.DataDir = dataDir
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a JSON file, owner-only permissions.
func (c *MostroConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the full path to the config file for dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// IsTestnet reports whether the configured network is testnet.
func (c *MostroConfig) IsTestnet() bool {
	return c.Network == Testnet
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
