package asset

import (
	"errors"
	"fmt"
	"strings"
)

// ID is the ticker-like identifier of an asset, e.g. "USDC".
type ID string

func (id ID) String() string {
	return string(id)
}

// RouteHint tells the exchange adapter how to reach the reference asset.
type RouteHint uint8

const (
	// RouteAuto tries a direct pair first and falls back to the bridge asset.
	RouteAuto RouteHint = iota
	RouteDirect
	RouteBridged
)

func (h RouteHint) String() string {
	switch h {
	case RouteAuto:
		return "auto"
	case RouteDirect:
		return "direct"
	case RouteBridged:
		return "bridged"
	default:
		return "unknown"
	}
}

// ParseRouteHint is the inverse of RouteHint.String. Empty input means auto.
func ParseRouteHint(s string) (RouteHint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return RouteAuto, nil
	case "direct":
		return RouteDirect, nil
	case "bridged", "bridge":
		return RouteBridged, nil
	default:
		return RouteAuto, fmt.Errorf("unknown route hint %q", s)
	}
}

// Descriptor is static per-asset configuration.
//
// Decimals is only meaningful when DecimalsKnown is set; an asset whose
// precision could not be read falls back to the normalizer's configured
// default instead of a guess.
type Descriptor struct {
	ID            ID
	Decimals      uint8
	DecimalsKnown bool
	Route         RouteHint
}

// WithDecimals returns a descriptor with known precision.
func WithDecimals(id ID, decimals uint8, hint RouteHint) Descriptor {
	return Descriptor{ID: id, Decimals: decimals, DecimalsKnown: true, Route: hint}
}

func (d Descriptor) Validate() error {
	if d.ID == "" {
		return errors.New("asset descriptor: empty id")
	}
	if d.DecimalsKnown && d.Decimals > MaxDecimals {
		return fmt.Errorf("asset descriptor %s: decimals %d above %d", d.ID, d.Decimals, MaxDecimals)
	}
	if d.Route > RouteBridged {
		return fmt.Errorf("asset descriptor %s: invalid route hint %d", d.ID, d.Route)
	}
	return nil
}

// MaxDecimals bounds native precision so 10^decimals fits in 256 bits
// with room for the amount itself.
const MaxDecimals = 36
