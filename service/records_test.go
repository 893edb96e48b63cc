package service

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"custody/domain/asset"
)

func TestMutationEncoding(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	cases := []*mutation{
		{Account: alice, Asset: "USDC", Amount: uint256.NewInt(4_000), Credited: uint256.NewInt(4_000)},
		{Account: alice, Amount: max},
		{Asset: "WETH", Amount: new(uint256.Int)},
		{Asset: "WBTC", Decimals: 8, DecimalsKnown: true, Route: asset.RouteBridged},
		{},
	}
	for _, want := range cases {
		got, err := decodeMutation(encodeMutation(want))
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestMutationSkipsUnknownFields(t *testing.T) {
	b := encodeMutation(&mutation{Account: bob, Amount: uint256.NewInt(7)})
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 12345)

	got, err := decodeMutation(b)
	require.NoError(t, err)
	require.Equal(t, bob, got.Account)
	require.Equal(t, uint256.NewInt(7), got.Amount)
}

func TestMutationRejectsGarbage(t *testing.T) {
	_, err := decodeMutation([]byte{0x0a, 0x05, 0x01})
	require.Error(t, err)

	b := protowire.AppendTag(nil, fieldAccount, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{1, 2, 3})
	_, err = decodeMutation(b)
	require.Error(t, err)
}
