package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 72*time.Hour, cfg.Exchange.ClaimWaitingPeriod.Duration)
	assert.Equal(t, 100, cfg.Exchange.MaxFillsPerTrade)
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[exchange]
max_fills_per_trade = 7
claim_waiting_period = "1h"

[storage]
data_dir = "/var/lib/predict"
sync = false

[log]
level = "debug"

[[markets]]
address = "0x00000000000000000000000000000000000000aa"
kind = "categorical"
description = "who wins"
outcomes = 4

[[markets]]
address = "0x00000000000000000000000000000000000000bb"
kind = "scalar"
num_ticks = "40000"
`), 0o644))

	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("PREDICT_API_ADDR=:9999\n"), 0o644))
	// godotenv writes straight into the process environment
	t.Cleanup(func() { os.Unsetenv("PREDICT_API_ADDR") })

	t.Setenv("PREDICT_LOG_LEVEL", "warn")
	t.Setenv("PREDICT_API_ALLOWED_ORIGINS", "http://a.example, http://b.example,")
	t.Setenv("PREDICT_EXCHANGE_MAX_FILLS_PER_TRADE", "not-a-number")

	cfg, err := Load(path, envPath)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Exchange.MaxFillsPerTrade, "unparsable env values are ignored")
	assert.Equal(t, time.Hour, cfg.Exchange.ClaimWaitingPeriod.Duration)
	assert.Equal(t, "/var/lib/predict", cfg.Storage.DataDir)
	assert.False(t, cfg.Storage.Sync)
	assert.Equal(t, "warn", cfg.Log.Level, "env beats toml")
	assert.Equal(t, ":9999", cfg.API.Addr)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.API.AllowedOrigins)
	require.Len(t, cfg.Markets, 2)
	assert.Equal(t, uint8(4), cfg.Markets[0].Outcomes)
	assert.Equal(t, "40000", cfg.Markets[1].NumTicks)

	// untouched defaults survive
	assert.Equal(t, Default().Exchange.Address, cfg.Exchange.Address)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default().API.Addr, cfg.API.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), "")
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Exchange.Address = "not-an-address"
	cfg.Exchange.MaxFillsPerTrade = 0
	cfg.Log.Level = "loud"
	cfg.Simulator.Enabled = true
	cfg.Simulator.Traders = 1
	cfg.Markets = []MarketSeed{
		{Address: "0x00000000000000000000000000000000000000aa"},
		{Address: "0x00000000000000000000000000000000000000AA", Kind: "perpetual"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"exchange: address",
		"max_fills_per_trade",
		"unknown level",
		"traders must be at least 2",
		"duplicate address",
		`unknown kind "perpetual"`,
	} {
		assert.Contains(t, err.Error(), want)
	}
}
