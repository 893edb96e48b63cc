package codec

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ParseAmount reads a base-10 amount. Amounts travel as strings because JSON
// numbers cannot carry 256 bits.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}

// FormatAmount is the inverse of ParseAmount; nil formats as "0".
func FormatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
