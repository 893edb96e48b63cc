package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"custody/domain/asset"
)

var (
	ErrSwapFailed = errors.New("swap failed")

	// ErrSettledBelowMinimum means the venue delivered less than the
	// minimum instead of failing. It wraps ErrSwapFailed.
	ErrSettledBelowMinimum = fmt.Errorf("%w: settled below minimum", ErrSwapFailed)

	// ErrNoRoute is returned by a Service that has no liquidity for a route.
	ErrNoRoute = errors.New("no route")

	// ErrInsufficientOutput is returned by a Service when the realised
	// output would fall below the requested minimum.
	ErrInsufficientOutput = errors.New("insufficient output amount")

	// ErrDeadlineExceeded is returned by a Service when the swap deadline
	// elapsed before execution.
	ErrDeadlineExceeded = errors.New("swap deadline exceeded")
)

// Service is the external exchange venue.
type Service interface {
	// QuoteOutput estimates the output of swapping amountIn along route.
	QuoteOutput(ctx context.Context, route asset.Route, amountIn *uint256.Int) (*uint256.Int, error)

	// SwapExactInput swaps exactly amountIn along route and delivers the
	// output to recipient. It fails without partial execution when the
	// output would be below minAmountOut or the deadline has elapsed.
	SwapExactInput(
		ctx context.Context,
		route asset.Route,
		amountIn *uint256.Int,
		minAmountOut *uint256.Int,
		deadline time.Time,
		recipient asset.Address,
	) (*uint256.Int, error)
}
