package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the node configuration.
type Config struct {
	Log     Log     `toml:"log" yaml:"log"`
	RPC     RPC     `toml:"rpc" yaml:"rpc"`
	Chain   Chain   `toml:"chain" yaml:"chain"`
	CDP     CDP     `toml:"cdp" yaml:"cdp"`
	DEX     DEX     `toml:"dex" yaml:"dex"`
	Auction Auction `toml:"auction" yaml:"auction"`
	Oracle  Oracle  `toml:"oracle" yaml:"oracle"`
	Indexer Indexer `toml:"indexer" yaml:"indexer"`
	Genesis Genesis `toml:"genesis" yaml:"genesis"`
}

// Default returns a development configuration.
func Default() *Config {
	return &Config{
		Log: Log{
			Service: "cdpd",
			Env:     "dev",
			Level:   "info",
		},
		RPC: RPC{
			ListenAddress:      ":8080",
			TxRatePerSecond:    20,
			TxBurst:            40,
			ReadTimeoutSeconds: 10,
			Auth:               RPCAuth{Issuer: "cdpd", ClockSkewSeconds: 120},
		},
		Chain: Chain{
			StableAsset:          "USD",
			DataDir:              "./cdp-data",
			DBBackend:            "leveldb",
			BlockIntervalSeconds: 6,
			MaxTxsPerBlock:       500,
			MempoolLimit:         5000,
			PriorityReservedBPS:  2000,
		},
		CDP: CDP{
			DefaultDebitExchangeRate:       "1",
			DefaultLiquidationRatio:        "1.5",
			DefaultLiquidationPenalty:      "0.1",
			MinimumDebitValue:              "0",
			MaxSwapSlippageCompareToOracle: "0.1",
			GlobalInterestRatePerSec:       "0",
			MaxLiquidationsPerBlock:        32,
		},
		DEX: DEX{
			FeeNumerator:          3,
			FeeDenominator:        1000,
			TradingPathLimit:      3,
			MinLiquidityIncrement: "1",
		},
		Auction: Auction{
			StartPremium:        "0.1",
			DecayIntervalBlocks: 10,
			DecayFactor:         "0.97",
			FloorRatio:          "0.5",
		},
		Oracle: Oracle{MaxAgeSeconds: 3600},
		Genesis: Genesis{
			Tokens: []GenesisToken{{Symbol: "USD", Name: "Stable Dollar", Decimals: 12}},
		},
	}
}

// Load reads the configuration at path. TOML is the default format; files
// ending in .yaml or .yml are decoded as YAML. A missing TOML file is created
// with the defaults.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path required")
	}
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if isYAML(path) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	if isYAML(path) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config %s: unknown key %s", path, undecoded[0].String())
		}
	}

	cfg.normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func (cfg *Config) normalize() {
	defaults := Default()
	cfg.Log.Service = strings.TrimSpace(cfg.Log.Service)
	if cfg.Log.Service == "" {
		cfg.Log.Service = defaults.Log.Service
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}
	cfg.RPC.ListenAddress = strings.TrimSpace(cfg.RPC.ListenAddress)
	if cfg.RPC.ListenAddress == "" {
		cfg.RPC.ListenAddress = defaults.RPC.ListenAddress
	}
	cfg.RPC.Auth.HMACSecret = strings.TrimSpace(cfg.RPC.Auth.HMACSecret)
	if cfg.RPC.Auth.ClockSkewSeconds == 0 {
		cfg.RPC.Auth.ClockSkewSeconds = defaults.RPC.Auth.ClockSkewSeconds
	}
	cfg.Chain.StableAsset = strings.ToUpper(strings.TrimSpace(cfg.Chain.StableAsset))
	if cfg.Chain.StableAsset == "" {
		cfg.Chain.StableAsset = defaults.Chain.StableAsset
	}
	cfg.Chain.DBBackend = strings.ToLower(strings.TrimSpace(cfg.Chain.DBBackend))
	if cfg.Chain.DBBackend == "" {
		cfg.Chain.DBBackend = defaults.Chain.DBBackend
	}
	if cfg.Chain.BlockIntervalSeconds <= 0 {
		cfg.Chain.BlockIntervalSeconds = defaults.Chain.BlockIntervalSeconds
	}
	if cfg.Chain.MaxTxsPerBlock <= 0 {
		cfg.Chain.MaxTxsPerBlock = defaults.Chain.MaxTxsPerBlock
	}
	if cfg.Genesis.Governance == nil {
		cfg.Genesis.Governance = []string{}
	}
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
