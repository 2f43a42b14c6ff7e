// Package params holds node configuration. Values come from built-in
// defaults, an optional TOML file, a .env file and PREDICT_* environment
// variables, in increasing priority.
package params

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

type Exchange struct {
	// Address holds escrowed funds and is the spender taker shares are
	// approved to.
	Address               string `toml:"address"`
	ReportingFeeRecipient string `toml:"reporting_fee_recipient"`
	// MaxFillsPerTrade bounds the work a single trade may do. A trade that
	// hits it with crossing orders left fails instead of resting.
	MaxFillsPerTrade   int      `toml:"max_fills_per_trade"`
	ClaimWaitingPeriod Duration `toml:"claim_waiting_period"`
}

type Storage struct {
	DataDir string `toml:"data_dir"`
	// Sync fsyncs every write. Off trades durability for latency on devnets.
	Sync bool `toml:"sync"`
}

type API struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	// Admin exposes the faucet, market management and the emergency switch.
	// Devnets only.
	Admin bool `toml:"admin"`
}

type Log struct {
	File  string `toml:"file"` // empty logs to stdout
	Level string `toml:"level"`
}

// Simulator drives random traders against the exchange on a devnet.
type Simulator struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
	Traders  int      `toml:"traders"`
	Seed     int64    `toml:"seed"`
}

// MarketSeed is a market registered at boot if it does not exist yet.
type MarketSeed struct {
	Address             string `toml:"address"`
	Kind                string `toml:"kind"` // binary, categorical or scalar
	Description         string `toml:"description"`
	Creator             string `toml:"creator"`
	Outcomes            uint8  `toml:"outcomes"`
	NumTicks            string `toml:"num_ticks"`
	CreatorFeeDivisor   uint64 `toml:"creator_fee_divisor"`
	ReportingFeeDivisor uint64 `toml:"reporting_fee_divisor"`
}

type Config struct {
	Exchange  Exchange     `toml:"exchange"`
	Storage   Storage      `toml:"storage"`
	API       API          `toml:"api"`
	Log       Log          `toml:"log"`
	Simulator Simulator    `toml:"simulator"`
	Markets   []MarketSeed `toml:"markets"`
}

// Duration decodes TOML strings such as "72h" or "500ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			Address:               "0x0000000000000000000000000000000000e0e0e0",
			ReportingFeeRecipient: "0x0000000000000000000000000000000000000fee",
			MaxFillsPerTrade:      100,
			ClaimWaitingPeriod:    Duration{72 * time.Hour},
		},
		Storage: Storage{
			DataDir: "./data",
			Sync:    true,
		},
		API: API{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
		},
		Log: Log{
			Level: "info",
		},
		Simulator: Simulator{
			Interval: Duration{500 * time.Millisecond},
			Traders:  4,
			Seed:     1,
		},
	}
}

// Load builds a Config: defaults, then the TOML file at path (skipped when
// path is empty), then the .env file at envPath (or ./.env), then PREDICT_*
// environment variables. The result is validated.
func Load(path, envPath string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	// .env is optional
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Exchange.Address, "PREDICT_EXCHANGE_ADDRESS")
	setStr(&cfg.Exchange.ReportingFeeRecipient, "PREDICT_EXCHANGE_REPORTING_FEE_RECIPIENT")
	setInt(&cfg.Exchange.MaxFillsPerTrade, "PREDICT_EXCHANGE_MAX_FILLS_PER_TRADE")
	setDuration(&cfg.Exchange.ClaimWaitingPeriod, "PREDICT_EXCHANGE_CLAIM_WAITING_PERIOD")

	setStr(&cfg.Storage.DataDir, "PREDICT_STORAGE_DATA_DIR")
	setBool(&cfg.Storage.Sync, "PREDICT_STORAGE_SYNC")

	setStr(&cfg.API.Addr, "PREDICT_API_ADDR")
	setStringSlice(&cfg.API.AllowedOrigins, "PREDICT_API_ALLOWED_ORIGINS")
	setBool(&cfg.API.Admin, "PREDICT_API_ADMIN")

	setStr(&cfg.Log.File, "PREDICT_LOG_FILE")
	setStr(&cfg.Log.Level, "PREDICT_LOG_LEVEL")

	setBool(&cfg.Simulator.Enabled, "PREDICT_SIMULATOR_ENABLED")
	setDuration(&cfg.Simulator.Interval, "PREDICT_SIMULATOR_INTERVAL")
	setInt(&cfg.Simulator.Traders, "PREDICT_SIMULATOR_TRADERS")
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validMarketKinds = map[string]bool{"": true, "binary": true, "categorical": true, "scalar": true}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs []string

	if !common.IsHexAddress(c.Exchange.Address) {
		errs = append(errs, fmt.Sprintf("exchange: address %q is not a hex address", c.Exchange.Address))
	}
	if !common.IsHexAddress(c.Exchange.ReportingFeeRecipient) {
		errs = append(errs, fmt.Sprintf("exchange: reporting_fee_recipient %q is not a hex address", c.Exchange.ReportingFeeRecipient))
	}
	if c.Exchange.MaxFillsPerTrade <= 0 {
		errs = append(errs, "exchange: max_fills_per_trade must be positive")
	}
	if c.Exchange.ClaimWaitingPeriod.Duration < 0 {
		errs = append(errs, "exchange: claim_waiting_period must not be negative")
	}

	if c.Storage.DataDir == "" {
		errs = append(errs, "storage: data_dir must not be empty")
	}
	if c.API.Addr == "" {
		errs = append(errs, "api: addr must not be empty")
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}

	if c.Simulator.Enabled {
		if c.Simulator.Traders < 2 {
			errs = append(errs, "simulator: traders must be at least 2")
		}
		if c.Simulator.Interval.Duration <= 0 {
			errs = append(errs, "simulator: interval must be positive")
		}
	}

	seen := make(map[common.Address]bool)
	for i, m := range c.Markets {
		if !common.IsHexAddress(m.Address) {
			errs = append(errs, fmt.Sprintf("markets[%d]: address %q is not a hex address", i, m.Address))
		} else {
			addr := common.HexToAddress(m.Address)
			if seen[addr] {
				errs = append(errs, fmt.Sprintf("markets[%d]: duplicate address %s", i, addr.Hex()))
			}
			seen[addr] = true
		}
		if m.Creator != "" && !common.IsHexAddress(m.Creator) {
			errs = append(errs, fmt.Sprintf("markets[%d]: creator %q is not a hex address", i, m.Creator))
		}
		if !validMarketKinds[strings.ToLower(m.Kind)] {
			errs = append(errs, fmt.Sprintf("markets[%d]: unknown kind %q", i, m.Kind))
		}
	}

	if len(errs) > 0 {
		return errors.New("invalid config: " + strings.Join(errs, "; "))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the variable is
// set and parses.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
