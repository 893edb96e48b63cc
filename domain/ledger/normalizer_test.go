package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"custody/domain/asset"
)

func testRegistry(t *testing.T) *asset.Registry {
	t.Helper()
	r, err := asset.NewRegistry(
		asset.WithDecimals("USDC", 6, asset.RouteDirect),
		asset.WithDecimals("WETH", 18, asset.RouteDirect),
		asset.WithDecimals("WBTC", 8, asset.RouteBridged),
		asset.Descriptor{ID: "MYST"},
	)
	require.NoError(t, err)
	return r
}

func TestToComparisonUnit(t *testing.T) {
	n := NewNormalizer(testRegistry(t), 8)

	tests := []struct {
		name  string
		asset asset.ID
		in    uint64
		want  uint64
	}{
		{name: "scale up", asset: "USDC", in: 1_500_000, want: 150_000_000},
		{name: "same precision", asset: "WBTC", in: 12_345, want: 12_345},
		{name: "scale down", asset: "WETH", in: 1_000_000_000_000_000_000, want: 100_000_000},
		{name: "truncate", asset: "WETH", in: 29_999_999_999, want: 2},
		{name: "truncate to zero", asset: "WETH", in: 9_999_999_999, want: 0},
		{name: "zero", asset: "USDC", in: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.ToComparisonUnit(tt.asset, uint256.NewInt(tt.in))
			require.NoError(t, err)
			require.Equal(t, uint256.NewInt(tt.want), got)
		})
	}
}

func TestToComparisonUnitFloorsNeverRoundsUp(t *testing.T) {
	n := NewNormalizer(testRegistry(t), 8)
	// 0.000000019999999999 WETH is 1.9999999999 comparison units
	got, err := n.ToComparisonUnit("WETH", uint256.NewInt(19_999_999_999))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1), got)
}

func TestUnknownPrecisionNeedsFallback(t *testing.T) {
	reg := testRegistry(t)

	_, err := NewNormalizer(reg, 8).ToComparisonUnit("MYST", uint256.NewInt(1))
	require.ErrorIs(t, err, ErrUnknownPrecision)

	got, err := NewNormalizer(reg, 8).WithFallback(6).ToComparisonUnit("MYST", uint256.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(100), got)

	_, err = NewNormalizer(reg, 8).ToComparisonUnit("DOGE", uint256.NewInt(1))
	require.ErrorIs(t, err, ErrUnknownAsset)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRescaleOverflow(t *testing.T) {
	_, err := Rescale(new(uint256.Int).SetAllOne(), 0, 18)
	require.ErrorIs(t, err, ErrOverflow)
}
