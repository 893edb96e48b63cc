package asset

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRoute = errors.New("invalid route")

// Route is an ordered asset sequence from the input asset to the reference asset.
type Route []ID

func (r Route) In() ID {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}

func (r Route) Out() ID {
	if len(r) == 0 {
		return ""
	}
	return r[len(r)-1]
}

// Validate checks that r has at least one hop, ends at ref and never
// revisits an asset.
func (r Route) Validate(ref ID) error {
	if len(r) < 2 {
		return fmt.Errorf("%w: need at least two assets, got %d", ErrInvalidRoute, len(r))
	}
	if r.Out() != ref {
		return fmt.Errorf("%w: ends at %s, want %s", ErrInvalidRoute, r.Out(), ref)
	}
	seen := make(map[ID]struct{}, len(r))
	for _, id := range r {
		if id == "" {
			return fmt.Errorf("%w: empty asset id", ErrInvalidRoute)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s appears twice", ErrInvalidRoute, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func (r Route) String() string {
	parts := make([]string, len(r))
	for i, id := range r {
		parts[i] = string(id)
	}
	return strings.Join(parts, "->")
}

// Strings converts r for wire messages.
func (r Route) Strings() []string {
	out := make([]string, len(r))
	for i, id := range r {
		out[i] = string(id)
	}
	return out
}

// RouteFromStrings is the inverse of Route.Strings.
func RouteFromStrings(ss []string) Route {
	r := make(Route, len(ss))
	for i, s := range ss {
		r[i] = ID(s)
	}
	return r
}
