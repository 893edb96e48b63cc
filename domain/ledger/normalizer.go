package ledger

import (
	"fmt"

	"github.com/holiman/uint256"

	"custody/domain/asset"
)

// Normalizer rescales native asset amounts into the comparison unit used
// for capacity evaluation.
//
// Excess native digits are truncated, never rounded: an amount may be
// undercounted by strictly less than one comparison unit.
type Normalizer struct {
	assets      *asset.Registry
	comparison  uint8
	fallback    uint8
	hasFallback bool
}

// NewNormalizer returns a normalizer with no fallback precision; assets of
// unknown precision are rejected.
func NewNormalizer(assets *asset.Registry, comparisonDecimals uint8) *Normalizer {
	return &Normalizer{assets: assets, comparison: comparisonDecimals}
}

// WithFallback configures the precision used for assets whose decimals
// could not be determined.
func (n *Normalizer) WithFallback(decimals uint8) *Normalizer {
	n.fallback = decimals
	n.hasFallback = true
	return n
}

func (n *Normalizer) ComparisonDecimals() uint8 {
	return n.comparison
}

// Decimals resolves the native precision of id.
func (n *Normalizer) Decimals(id asset.ID) (uint8, error) {
	d, ok := n.assets.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
	}
	if d.DecimalsKnown {
		return d.Decimals, nil
	}
	if n.hasFallback {
		return n.fallback, nil
	}
	return 0, fmt.Errorf("%w: %s has no decimals and no fallback is configured", ErrUnknownPrecision, id)
}

// ToComparisonUnit converts amount of id into the comparison unit.
func (n *Normalizer) ToComparisonUnit(id asset.ID, amount *uint256.Int) (*uint256.Int, error) {
	native, err := n.Decimals(id)
	if err != nil {
		return nil, err
	}
	return Rescale(amount, native, n.comparison)
}

// Rescale moves amount from one decimal precision to another, flooring
// when precision is lost.
func Rescale(amount *uint256.Int, from, to uint8) (*uint256.Int, error) {
	switch {
	case from == to:
		return amount.Clone(), nil
	case from > to:
		return new(uint256.Int).Div(amount, pow10(from-to)), nil
	default:
		out, overflow := new(uint256.Int).MulOverflow(amount, pow10(to-from))
		if overflow {
			return nil, fmt.Errorf("%w: rescale %s from %d to %d decimals", ErrOverflow, amount.Dec(), from, to)
		}
		return out, nil
	}
}

func pow10(exp uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(exp)))
}
