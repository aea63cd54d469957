package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "cryptodash-api/pkg/marketdata/sources/all"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_hydratesSectionsWithEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "market.yaml", `
primary: coingecko
fallback: [binance, cryptocompare]
fetch_timeout: 15s
cache:
  ttl: 45s
  stale_ttl: 5m
sources:
  coingecko:
    api_key: ${CG_TEST_KEY}
    mode: demo
  binance: {}
  cryptocompare:
    api_key: ${CC_TEST_KEY}
`)
	writeFile(t, dir, "realtime.yaml", `
URL: ${RT_TEST_URL}
Channel: market-data
MaxAttempts: 4
BackoffMin: 250ms
`)
	mainPath := writeFile(t, dir, "cryptodash.yaml", `
Name: cryptodash-test
Host: 127.0.0.1
Port: 0
Env: dev
TTL:
  Chart: 120
Market:
  File: market.yaml
Realtime:
  File: realtime.yaml
`)

	t.Setenv("CG_TEST_KEY", "cg-key")
	t.Setenv("CC_TEST_KEY", "cc-key")
	t.Setenv("RT_TEST_URL", "wss://realtime.example/socket")

	cfg, err := Load(mainPath)
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Env)
	assert.False(t, cfg.IsTestEnv())
	assert.Equal(t, 120, cfg.TTL.Chart)
	assert.Equal(t, dir, cfg.BaseDir())

	market := cfg.Market.Value
	require.NotNil(t, market)
	assert.Equal(t, filepath.Join(dir, "market.yaml"), cfg.Market.File)
	assert.Equal(t, "cg-key", market.Sources["coingecko"].APIKey)
	assert.Equal(t, "cc-key", market.Sources["cryptocompare"].APIKey)
	assert.Equal(t, 45*time.Second, market.Cache.TTL)
	assert.Equal(t, []string{"coingecko", "binance", "cryptocompare"}, market.Order())

	rt := cfg.RealtimeConfig()
	assert.True(t, rt.Enabled())
	assert.Equal(t, "wss://realtime.example/socket", rt.URL)
	assert.Equal(t, 4, rt.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, rt.BackoffMin)
	assert.Equal(t, 30*time.Second, rt.BackoffMax)
}

func TestLoad_realtimeOptional(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "market.yaml", "sources:\n  coingecko: {}\n")
	mainPath := writeFile(t, dir, "cryptodash.yaml", "Name: t\nHost: 127.0.0.1\nPort: 0\nMarket:\n  File: market.yaml\n")

	cfg, err := Load(mainPath)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, 600, cfg.TTL.Chart)
	assert.False(t, cfg.RealtimeConfig().Enabled())

	market, err := cfg.MarketConfig()
	require.NoError(t, err)
	assert.Same(t, cfg.Market.Value, market)
}

func TestValidate_Env(t *testing.T) {
	cfg := &Config{Env: "staging", TTL: CacheTTL{Chart: 60}}
	assert.Error(t, cfg.Validate())

	cfg = &Config{TTL: CacheTTL{Chart: 60}}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "test", cfg.Env)
}

func TestValidate_TTLBounds(t *testing.T) {
	cfg := &Config{Env: "test"}
	cfg.TTL.Chart = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected ttl.chart validation error")
	}
}
