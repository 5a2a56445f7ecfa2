package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalInstance = `
instances:
  - name: main
    per_order_usd: "250"
    max_positions: 5
    open_yield_pct: "20"
    close_yield_pct: "5"
    pairs:
      - currency: BTC
        spot: BTC-USDT
        future: BTC-USD-27MAR26
    okx:
      api_key: k
      api_secret: s
      passphrase: p
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalInstance))
	require.NoError(t, err)
	require.Equal(t, DefaultMetricsAddr, cfg.MetricsAddr)
	require.Len(t, cfg.Instances, 1)

	inst := cfg.Instances[0]
	require.True(t, inst.Enabled)
	require.Equal(t, DefaultStale, inst.Stale)
	require.Equal(t, DefaultFillTimeout, inst.FillTimeout)
	require.Equal(t, DefaultMaxGap, inst.MaxGap)
	require.Equal(t, DefaultDepthLevel, inst.DepthLevel)
	require.Equal(t, DefaultMinExpiryDays, inst.MinExpiryDays)
	require.Equal(t, "simultaneous", inst.ExecutionPolicy)
	require.Equal(t, "250", inst.PerOrderUSD.String())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
metrics_addr: ":9200"
instances:
  - name: main
    enabled: false
    per_order_usd: "100"
    max_positions: 2
    open_yield_pct: "30"
    close_yield_pct: "10"
    stale_ms: 5000
    execution_policy: sequenced
    fill_timeout_ms: 3000
    max_gap_ms: 2000
    min_expiry_days: 14
    depth_level: 3
    pairs:
      - currency: ETH
        spot: ETH-USDT
        future: ETH-USD-26JUN26
    okx:
      api_key: k
      api_secret: s
      passphrase: p
`))
	require.NoError(t, err)

	inst := cfg.Instances[0]
	require.Equal(t, ":9200", cfg.MetricsAddr)
	require.False(t, inst.Enabled)
	require.Equal(t, 5*time.Second, inst.Stale)
	require.Equal(t, "sequenced", inst.ExecutionPolicy)
	require.Equal(t, 3*time.Second, inst.FillTimeout)
	require.Equal(t, 2*time.Second, inst.MaxGap)
	require.Equal(t, 14, inst.MinExpiryDays)
	require.Equal(t, 3, inst.DepthLevel)
}

func TestLoadTestnetForcesDepthOne(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
instances:
  - name: demo
    per_order_usd: "50"
    max_positions: 1
    open_yield_pct: "20"
    close_yield_pct: "5"
    depth_level: 5
    pairs:
      - currency: BTC
        spot: BTC-USDT
        future: BTC-USD-27MAR26
    okx:
      api_key: k
      api_secret: s
      passphrase: p
      testnet: true
`))
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Instances[0].DepthLevel)
}

func TestLoadRejectsCloseAboveOpen(t *testing.T) {
	_, err := Load(writeConfig(t, `
instances:
  - name: main
    per_order_usd: "100"
    max_positions: 1
    open_yield_pct: "10"
    close_yield_pct: "10"
    pairs:
      - currency: BTC
        spot: BTC-USDT
        future: BTC-USD-27MAR26
    okx:
      api_key: k
      api_secret: s
      passphrase: p
`))
	require.ErrorContains(t, err, "close_yield_pct")
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"no instances":   `instances: []`,
		"missing name":   `{instances: [{per_order_usd: "1", max_positions: 1, open_yield_pct: "10", close_yield_pct: "5", pairs: [{currency: BTC, spot: s, future: f}], okx: {}}]}`,
		"zero per order": `{instances: [{name: a, per_order_usd: "0", max_positions: 1, open_yield_pct: "10", close_yield_pct: "5", pairs: [{currency: BTC, spot: s, future: f}], okx: {}}]}`,
		"bad policy":     `{instances: [{name: a, per_order_usd: "1", max_positions: 1, open_yield_pct: "10", close_yield_pct: "5", execution_policy: fancy, pairs: [{currency: BTC, spot: s, future: f}], okx: {}}]}`,
		"no pairs":       `{instances: [{name: a, per_order_usd: "1", max_positions: 1, open_yield_pct: "10", close_yield_pct: "5", pairs: [], okx: {}}]}`,
		"partial pair":   `{instances: [{name: a, per_order_usd: "1", max_positions: 1, open_yield_pct: "10", close_yield_pct: "5", pairs: [{currency: BTC}], okx: {}}]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}
