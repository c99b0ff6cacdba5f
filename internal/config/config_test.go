package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suimax/sui-bot/internal/cache"
	"github.com/suimax/sui-bot/internal/config"
)

const validYAML = `
rpc_url: https://fullnode.mainnet.sui.io:443
private_key: "0x0101010101010101010101010101010101010101010101010101010101010101"
dexes:
  cetus: "0x5eab"
cache:
  ttl_seconds:
    price: 15
retry:
  rpc:
    max_attempts: 7
sniper:
  enabled: true
  base_coin: "0x2::sui::SUI"
  amount: 1000000
  slippage: 2.5
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, uint64(config.DefaultGasBudget), cfg.GasBudget)
	assert.Equal(t, config.DefaultMetricsAddr, cfg.MetricsAddr)
	assert.Equal(t, 7, cfg.RPCPolicy().MaxAttempts)
	assert.Equal(t, config.DefaultPollIntervalMs, cfg.Sniper.PollIntervalMs)

	overrides := cfg.TTLOverrides()
	assert.Equal(t, 15*time.Second, overrides[cache.NSPrice])
}

func TestLoadRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"missing rpc": `
private_key: "0x01"
dexes: {cetus: "0x5"}
`,
		"bad slippage": `
rpc_url: https://node
private_key: "0x01"
default_slippage: 150
dexes: {cetus: "0x5"}
`,
		"bad dex package": `
rpc_url: https://node
private_key: "0x01"
dexes: {cetus: "not-hex"}
`,
		"no dexes": `
rpc_url: https://node
private_key: "0x01"
`,
	}
	for name, body := range cases {
		_, err := config.Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestSniperInheritsDefaultSlippage(t *testing.T) {
	body := `
rpc_url: https://fullnode.mainnet.sui.io:443
private_key: "0x0101010101010101010101010101010101010101010101010101010101010101"
default_slippage: 3.5
dexes:
  cetus: "0x5eab"
sniper:
  enabled: true
  base_coin: "0x2::sui::SUI"
  amount: 1000000
`
	cfg, err := config.Load(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, 3.5, cfg.Sniper.Slippage)
}

func TestSubmitPolicyOverride(t *testing.T) {
	body := `
rpc_url: https://fullnode.mainnet.sui.io:443
private_key: "0x0101010101010101010101010101010101010101010101010101010101010101"
dexes:
  cetus: "0x5eab"
retry:
  submit:
    max_attempts: 2
    base_delay_ms: 100
`
	cfg, err := config.Load(writeConfig(t, body))
	require.NoError(t, err)

	p := cfg.SubmitPolicy()
	assert.Equal(t, 2, p.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, p.BaseDelay)
}

func TestEnvOverridesPrivateKey(t *testing.T) {
	t.Setenv("SUI_BOT_PRIVATE_KEY", "0x0202020202020202020202020202020202020202020202020202020202020202")

	body := `
rpc_url: https://fullnode.mainnet.sui.io:443
dexes:
  cetus: "0x5eab"
`
	cfg, err := config.Load(writeConfig(t, body))
	require.NoError(t, err)
	assert.Contains(t, cfg.PrivateKey, "0x0202")
}
