package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"custody/domain/asset"
)

var custodyAddr = asset.MustParseAddress("0x00000000000000000000000000000000000000cc")

type swapCall struct {
	route     asset.Route
	amountIn  *uint256.Int
	minOut    *uint256.Int
	deadline  time.Time
	recipient asset.Address
	ctxDl     time.Time
}

// fakeVenue quotes a fixed rate per route and realises a configurable output.
type fakeVenue struct {
	quotes  map[string]uint64
	deliver func(minOut *uint256.Int) (*uint256.Int, error)
	swaps   []swapCall
}

func (f *fakeVenue) QuoteOutput(_ context.Context, route asset.Route, _ *uint256.Int) (*uint256.Int, error) {
	q, ok := f.quotes[route.String()]
	if !ok {
		return nil, ErrNoRoute
	}
	return uint256.NewInt(q), nil
}

func (f *fakeVenue) SwapExactInput(
	ctx context.Context,
	route asset.Route,
	amountIn, minOut *uint256.Int,
	deadline time.Time,
	recipient asset.Address,
) (*uint256.Int, error) {
	dl, _ := ctx.Deadline()
	f.swaps = append(f.swaps, swapCall{route, amountIn, minOut, deadline, recipient, dl})
	if f.deliver != nil {
		return f.deliver(minOut)
	}
	return uint256.NewInt(f.quotes[route.String()]), nil
}

func newAdapter(t *testing.T, venue Service, bridge asset.ID) *Adapter {
	t.Helper()
	a, err := NewAdapter(venue, Config{
		Reference:         "USDC",
		Bridge:            bridge,
		SlippageTolerance: decimal.RequireFromString("0.01"),
		DeadlineGrace:     30 * time.Second,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return a
}

func TestMinAmountOut(t *testing.T) {
	tests := []struct {
		quoted uint64
		tol    string
		want   uint64
	}{
		{quoted: 1_000, tol: "0.01", want: 990},
		{quoted: 999, tol: "0.005", want: 994}, // 994.005 floors
		{quoted: 1_000, tol: "0", want: 1_000},
		{quoted: 1, tol: "0.5", want: 0},
	}
	for _, tt := range tests {
		got, err := MinAmountOut(uint256.NewInt(tt.quoted), decimal.RequireFromString(tt.tol))
		require.NoError(t, err)
		require.Equal(t, uint256.NewInt(tt.want), got, "quoted=%d tol=%s", tt.quoted, tt.tol)
	}

	_, err := MinAmountOut(uint256.NewInt(1), decimal.NewFromInt(1))
	require.Error(t, err)
	_, err = MinAmountOut(uint256.NewInt(1), decimal.RequireFromString("-0.1"))
	require.Error(t, err)
}

func TestConvertCreditsActualOutput(t *testing.T) {
	venue := &fakeVenue{
		quotes: map[string]uint64{"WETH->USDC": 2_000},
		deliver: func(*uint256.Int) (*uint256.Int, error) {
			return uint256.NewInt(1_985), nil
		},
	}
	now := time.Unix(1_700_000_000, 0)
	a := newAdapter(t, venue, "").WithClock(func() time.Time { return now })

	res, err := a.Convert(context.Background(), asset.WithDecimals("WETH", 18, asset.RouteDirect), uint256.NewInt(1), custodyAddr)
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(1_985), res.Received)
	require.Equal(t, uint256.NewInt(2_000), res.AmountOut)
	require.Equal(t, uint256.NewInt(1_980), res.MinAmountOut)

	require.Len(t, venue.swaps, 1)
	call := venue.swaps[0]
	require.Equal(t, asset.Route{"WETH", "USDC"}, call.route)
	require.Equal(t, now.Add(30*time.Second), call.deadline)
	require.Equal(t, call.deadline, call.ctxDl)
	require.Equal(t, custodyAddr, call.recipient)
}

func TestConvertFallsBackToBridge(t *testing.T) {
	venue := &fakeVenue{quotes: map[string]uint64{"WBTC->WETH->USDC": 60_000}}
	a := newAdapter(t, venue, "WETH")

	res, err := a.Convert(context.Background(), asset.WithDecimals("WBTC", 8, asset.RouteAuto), uint256.NewInt(1), custodyAddr)
	require.NoError(t, err)
	require.Equal(t, asset.Route{"WBTC", "WETH", "USDC"}, res.Route)
}

func TestRoutes(t *testing.T) {
	a := newAdapter(t, &fakeVenue{}, "WETH")

	routes, err := a.Routes(asset.WithDecimals("DAI", 18, asset.RouteDirect))
	require.NoError(t, err)
	require.Equal(t, []asset.Route{{"DAI", "USDC"}}, routes)

	routes, err = a.Routes(asset.WithDecimals("WBTC", 8, asset.RouteBridged))
	require.NoError(t, err)
	require.Equal(t, []asset.Route{{"WBTC", "WETH", "USDC"}}, routes)

	// the bridge asset itself always goes direct
	routes, err = a.Routes(asset.WithDecimals("WETH", 18, asset.RouteAuto))
	require.NoError(t, err)
	require.Equal(t, []asset.Route{{"WETH", "USDC"}}, routes)

	_, err = newAdapter(t, &fakeVenue{}, "").Routes(asset.WithDecimals("WBTC", 8, asset.RouteBridged))
	require.ErrorIs(t, err, ErrNoRoute)
}

func TestConvertFailures(t *testing.T) {
	d := asset.WithDecimals("WETH", 18, asset.RouteDirect)

	t.Run("no route", func(t *testing.T) {
		_, err := newAdapter(t, &fakeVenue{}, "").Convert(context.Background(), d, uint256.NewInt(1), custodyAddr)
		require.ErrorIs(t, err, ErrSwapFailed)
		require.ErrorIs(t, err, ErrNoRoute)
	})

	t.Run("venue rejects minimum", func(t *testing.T) {
		venue := &fakeVenue{
			quotes: map[string]uint64{"WETH->USDC": 2_000},
			deliver: func(*uint256.Int) (*uint256.Int, error) {
				return nil, ErrInsufficientOutput
			},
		}
		res, err := newAdapter(t, venue, "").Convert(context.Background(), d, uint256.NewInt(1), custodyAddr)
		require.ErrorIs(t, err, ErrSwapFailed)
		require.ErrorIs(t, err, ErrInsufficientOutput)
		require.Nil(t, res)
	})

	t.Run("deadline", func(t *testing.T) {
		venue := &fakeVenue{
			quotes: map[string]uint64{"WETH->USDC": 2_000},
			deliver: func(*uint256.Int) (*uint256.Int, error) {
				return nil, ErrDeadlineExceeded
			},
		}
		_, err := newAdapter(t, venue, "").Convert(context.Background(), d, uint256.NewInt(1), custodyAddr)
		require.ErrorIs(t, err, ErrSwapFailed)
	})

	t.Run("settled below minimum", func(t *testing.T) {
		venue := &fakeVenue{
			quotes: map[string]uint64{"WETH->USDC": 2_000},
			deliver: func(*uint256.Int) (*uint256.Int, error) {
				return uint256.NewInt(10), nil
			},
		}
		res, err := newAdapter(t, venue, "").Convert(context.Background(), d, uint256.NewInt(1), custodyAddr)
		require.ErrorIs(t, err, ErrSettledBelowMinimum)
		require.ErrorIs(t, err, ErrSwapFailed)
		require.NotNil(t, res)
		require.Equal(t, uint256.NewInt(10), res.Received)
	})

	t.Run("reference asset", func(t *testing.T) {
		_, err := newAdapter(t, &fakeVenue{}, "").Convert(context.Background(), asset.WithDecimals("USDC", 6, asset.RouteDirect), uint256.NewInt(1), custodyAddr)
		require.ErrorIs(t, err, ErrSwapFailed)
	})

	t.Run("venue error", func(t *testing.T) {
		boom := errors.New("connection reset")
		venue := &fakeVenue{
			quotes: map[string]uint64{"WETH->USDC": 2_000},
			deliver: func(*uint256.Int) (*uint256.Int, error) {
				return nil, boom
			},
		}
		_, err := newAdapter(t, venue, "").Convert(context.Background(), d, uint256.NewInt(1), custodyAddr)
		require.ErrorIs(t, err, ErrSwapFailed)
	})
}

func TestConfigValidate(t *testing.T) {
	base := Config{Reference: "USDC", SlippageTolerance: decimal.RequireFromString("0.01"), DeadlineGrace: time.Second}
	require.NoError(t, base.Validate())

	bad := base
	bad.Bridge = "USDC"
	require.Error(t, bad.Validate())

	bad = base
	bad.DeadlineGrace = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.SlippageTolerance = decimal.NewFromInt(2)
	require.Error(t, bad.Validate())
}
