package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"custody/domain/asset"
)

const sample = `
server:
  listen: ":6000"
vault:
  owner: "0x00000000000000000000000000000000000000a0"
  custody: "0x00000000000000000000000000000000000000cc"
  capacity_limit: "1000000000"
  comparison_decimals: 6
  reference: {id: USDC, decimals: 6}
  assets:
    - {id: WETH, decimals: 18}
    - {id: WBTC, decimals: 8, route: bridged}
    - {id: MYST}
exchange:
  mode: sim
  bridge: WETH
  deadline_grace: 1m
  pools:
    - {a: WETH, reserve_a: "1000000", b: USDC, reserve_b: "1000000000", fee_bps: 30}
broadcast:
  driver: kafka-go
  brokers: [localhost:9092]
`

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custody.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	cfg, err := Load(write(t, sample))
	require.NoError(t, err)

	require.Equal(t, ":6000", cfg.Server.Listen)
	require.Equal(t, ":9100", cfg.Server.MetricsListen)
	require.Equal(t, time.Minute, cfg.Exchange.DeadlineGrace)
	require.Equal(t, "0.005", cfg.Exchange.SlippageTolerance)
	require.Equal(t, "custody.events", cfg.Broadcast.Topic)
	require.Len(t, cfg.Exchange.Pools, 1)
	require.Equal(t, uint64(30), cfg.Exchange.Pools[0].FeeBps)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	require.Equal(t, asset.ID("USDC"), reg.Reference())

	wbtc, ok := reg.Lookup("WBTC")
	require.True(t, ok)
	require.Equal(t, asset.RouteBridged, wbtc.Route)

	myst, ok := reg.Lookup("MYST")
	require.True(t, ok)
	require.False(t, myst.DecimalsKnown)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(write(t, sample+"\nbogus: 1\n"))
	require.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.Mode = "remote"
	cfg.Broadcast.Driver = "nats"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"vault.owner",
		"vault.custody",
		"vault.capacity_limit",
		"vault.reference.decimals",
		"exchange.target",
		"broadcast.driver",
	} {
		require.ErrorContains(t, err, want)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "custody.example.yaml"))
	require.NoError(t, err)
	require.Equal(t, "sim", cfg.Exchange.Mode)
	require.Len(t, cfg.Exchange.Pools, 3)
	require.Len(t, cfg.Dev.Mint, 2)
	require.Len(t, cfg.Server.APIKeys, 2)
}

func TestValidateAPIKeys(t *testing.T) {
	cfg, err := Load(write(t, sample))
	require.NoError(t, err)

	cfg.Server.APIKeys = []APIKey{{Account: "0x00000000000000000000000000000000000000a0", KeySHA256: "beef"}}
	require.ErrorContains(t, cfg.Validate(), "server.api_keys[0].key_sha256")

	cfg.Server.APIKeys = []APIKey{{Account: "nope", KeySHA256: strings.Repeat("ab", 32)}}
	require.ErrorContains(t, cfg.Validate(), "server.api_keys[0].account")
}
