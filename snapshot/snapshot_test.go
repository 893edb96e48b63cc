package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"custody/domain/asset"
)

func TestWriteLoad(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(dir)
	require.NoError(t, err)
	require.Nil(t, s)

	in := &State{
		Seq:     42,
		Created: time.Unix(1_700_000_000, 0).UTC(),
		Owner:   asset.MustParseAddress("0x00000000000000000000000000000000000000a0"),
		Limit:   "10000",
		Balances: []Balance{
			{Account: asset.MustParseAddress("0x00000000000000000000000000000000000000a1"), Amount: "4000"},
		},
		Unallocated: []Holding{{Asset: "USDC", Amount: "7"}},
		Assets:      []asset.Descriptor{asset.WithDecimals("WETH", 18, asset.RouteDirect)},
	}
	w := &Writer{Dir: dir}
	require.NoError(t, w.Write(in))

	in.Seq = 43
	require.NoError(t, w.Write(in))

	out, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, in, out)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are cleaned up")
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("garbage"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
