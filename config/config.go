package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"trancheledger/native/tranche"
)

// Config is the deployment description of a tranche ledger: the ledger
// parameters, the strategies it may lend to, the swap routes used to sell
// rewards and the balances seeded on first boot.
type Config struct {
	DataDir       string           `toml:"DataDir"`
	SwapReserve   string           `toml:"SwapReserve"`
	PausedModules []string         `toml:"PausedModules"`
	Ledger        tranche.Config   `toml:"Ledger"`
	Strategies    []StrategyConfig `toml:"Strategies"`
	Routes        []RouteConfig    `toml:"Routes"`
	Genesis       []Allocation     `toml:"Genesis"`
}

// Load loads the configuration from the given path, writing a development
// default when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./tranche-data"
	}
	if c.PausedModules == nil {
		c.PausedModules = []string{}
	}
	c.Ledger.EnsureDefaults()
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a single-vault development deployment.
func Default() *Config {
	const (
		ledger     = "0x000000000000000000000000000000000000a000"
		underlying = "0x000000000000000000000000000000000000a001"
		aaToken    = "0x000000000000000000000000000000000000a002"
		bbToken    = "0x000000000000000000000000000000000000a003"
		owner      = "0x000000000000000000000000000000000000a004"
		vault      = "0x000000000000000000000000000000000000a010"
		vaultShare = "0x000000000000000000000000000000000000a011"
		reward     = "0x000000000000000000000000000000000000a020"
		reserve    = "0x000000000000000000000000000000000000a030"
	)
	cfg := &Config{
		DataDir:       "./tranche-data",
		SwapReserve:   reserve,
		PausedModules: []string{},
		Ledger: tranche.Config{
			Address:                 ledger,
			Underlying:              underlying,
			UnderlyingDecimals:      18,
			Strategy:                "vault",
			TrancheAA:               aaToken,
			TrancheBB:               bbToken,
			Owner:                   owner,
			TrancheAPRSplitRatio:    20_000,
			TrancheIdealWeightRatio: 50_000,
			IdealRange:              10_000,
			Fee:                     10_000,
		},
		Strategies: []StrategyConfig{{
			Name:         "vault",
			Kind:         "vault",
			Address:      vault,
			ShareToken:   vaultShare,
			Underlying:   underlying,
			Decimals:     18,
			RewardTokens: []string{reward},
			AprPercent:   "5",
		}},
		Routes: []RouteConfig{{
			TokenIn:  reward,
			TokenOut: underlying,
			Rate:     "2",
			FeeBps:   30,
		}},
		Genesis: []Allocation{{
			Token:  underlying,
			Holder: reserve,
			Amount: "1000000000000000000000000",
		}},
	}
	cfg.Ledger.EnsureDefaults()
	return cfg
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
