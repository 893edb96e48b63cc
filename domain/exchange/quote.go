package exchange

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"custody/domain/asset"
)

// Quote is the ephemeral pricing of one conversion. It is never persisted.
type Quote struct {
	Route        asset.Route
	AmountIn     *uint256.Int
	AmountOut    *uint256.Int
	MinAmountOut *uint256.Int
	Deadline     time.Time
}

// Result is what a conversion actually realised.
type Result struct {
	Quote
	// Received is authoritative; it is what the vault credits.
	Received *uint256.Int
}

// MinAmountOut returns floor(quoted * (1 - tolerance)).
func MinAmountOut(quoted *uint256.Int, tolerance decimal.Decimal) (*uint256.Int, error) {
	if err := ValidateTolerance(tolerance); err != nil {
		return nil, err
	}
	factor := decimal.NewFromInt(1).Sub(tolerance)
	min := decimal.NewFromBigInt(quoted.ToBig(), 0).Mul(factor).Floor()

	out, overflow := uint256.FromBig(min.BigInt())
	if overflow {
		return nil, fmt.Errorf("minimum output %s overflows", min.String())
	}
	return out, nil
}

// ValidateTolerance accepts fractions in [0, 1).
func ValidateTolerance(tolerance decimal.Decimal) error {
	if tolerance.IsNegative() || tolerance.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("slippage tolerance %s outside [0, 1)", tolerance.String())
	}
	return nil
}
