package ledger

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
)

// CapacityPolicy holds the ceiling on total custodied value, expressed in
// the comparison unit.
type CapacityPolicy struct {
	mu    sync.RWMutex
	limit *uint256.Int
}

func NewCapacityPolicy(limit *uint256.Int) *CapacityPolicy {
	return &CapacityPolicy{limit: limit.Clone()}
}

// Check fails when the projected normalized total would exceed the limit.
// Reaching the limit exactly is allowed.
func (p *CapacityPolicy) Check(prospective *uint256.Int) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if prospective.Gt(p.limit) {
		return fmt.Errorf("%w: projected %s, limit %s", ErrCapacityExceeded, prospective.Dec(), p.limit.Dec())
	}
	return nil
}

func (p *CapacityPolicy) Limit() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.limit.Clone()
}

// SetLimit replaces the ceiling. current is today's normalized total; a
// limit below it is refused so the capacity invariant keeps holding.
func (p *CapacityPolicy) SetLimit(limit, current *uint256.Int) error {
	if limit.Lt(current) {
		return fmt.Errorf("%w: limit %s, total %s", ErrLimitBelowTotal, limit.Dec(), current.Dec())
	}
	p.mu.Lock()
	p.limit = limit.Clone()
	p.mu.Unlock()
	return nil
}

// Headroom is how much more normalized value fits under the limit.
func (p *CapacityPolicy) Headroom(current *uint256.Int) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if current.Gt(p.limit) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(p.limit, current)
}
