// Package amm is a constant-product exchange venue used in dev mode and in
// tests. It settles on a transfer.Book: the recipient of a swap also pays
// its input.
package amm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"custody/domain/asset"
	"custody/domain/exchange"
	"custody/infra/transfer"
)

const feeDenominator = 10_000

type pairKey struct{ a, b asset.ID }

func keyOf(x, y asset.ID) pairKey {
	if x < y {
		return pairKey{x, y}
	}
	return pairKey{y, x}
}

type pool struct {
	reserves map[asset.ID]*uint256.Int
	feeBps   uint64
}

// Venue is a set of x*y=k pools.
type Venue struct {
	mu      sync.Mutex
	self    asset.Address
	book    *transfer.Book
	pools   map[pairKey]*pool
	now     func() time.Time
	swapped int
}

var _ exchange.Service = (*Venue)(nil)

// NewVenue settles on book; self is the address holding pool reserves.
func NewVenue(book *transfer.Book, self asset.Address) *Venue {
	return &Venue{
		self:  self,
		book:  book,
		pools: make(map[pairKey]*pool),
		now:   time.Now,
	}
}

func (v *Venue) WithClock(now func() time.Time) *Venue {
	v.now = now
	return v
}

// AddPool seeds a pool and mints its reserves to the venue.
func (v *Venue) AddPool(x asset.ID, rx *uint256.Int, y asset.ID, ry *uint256.Int, feeBps uint64) error {
	if x == y {
		return errors.New("amm: pool needs two distinct assets")
	}
	if rx.IsZero() || ry.IsZero() {
		return errors.New("amm: empty reserves")
	}
	if feeBps >= feeDenominator {
		return fmt.Errorf("amm: fee %d bps too high", feeBps)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	k := keyOf(x, y)
	if _, exists := v.pools[k]; exists {
		return fmt.Errorf("amm: pool %s/%s exists", x, y)
	}
	v.pools[k] = &pool{
		reserves: map[asset.ID]*uint256.Int{x: rx.Clone(), y: ry.Clone()},
		feeBps:   feeBps,
	}
	v.book.Mint(x, v.self, rx)
	v.book.Mint(y, v.self, ry)
	return nil
}

// Reserves reports a pool's reserves for x and y.
func (v *Venue) Reserves(x, y asset.ID) (*uint256.Int, *uint256.Int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.pools[keyOf(x, y)]
	if !ok {
		return nil, nil, false
	}
	return p.reserves[x].Clone(), p.reserves[y].Clone(), true
}

// Swaps counts executed swaps.
func (v *Venue) Swaps() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.swapped
}

func (v *Venue) QuoteOutput(ctx context.Context, route asset.Route, amountIn *uint256.Int) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	out, _, err := v.simulateLocked(route, amountIn)
	return out, err
}

func (v *Venue) SwapExactInput(
	ctx context.Context,
	route asset.Route,
	amountIn *uint256.Int,
	minAmountOut *uint256.Int,
	deadline time.Time,
	recipient asset.Address,
) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrDeadlineExceeded, err)
	}
	if v.now().After(deadline) {
		return nil, exchange.ErrDeadlineExceeded
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	out, hops, err := v.simulateLocked(route, amountIn)
	if err != nil {
		return nil, err
	}
	if out.Lt(minAmountOut) {
		return nil, fmt.Errorf("%w: %s < %s", exchange.ErrInsufficientOutput, out.Dec(), minAmountOut.Dec())
	}

	if err := v.book.Move(route.In(), recipient, v.self, amountIn); err != nil {
		return nil, err
	}
	if err := v.book.Move(route.Out(), v.self, recipient, out); err != nil {
		if undoErr := v.book.Move(route.In(), v.self, recipient, amountIn); undoErr != nil {
			err = errors.Join(err, fmt.Errorf("amm: return %s input: %w", route.In(), undoErr))
		}
		return nil, err
	}
	for _, h := range hops {
		h.pool.reserves[h.in] = h.newIn
		h.pool.reserves[h.out] = h.newOut
	}
	v.swapped++
	return out, nil
}

type hop struct {
	pool          *pool
	in, out       asset.ID
	newIn, newOut *uint256.Int
}

// simulateLocked walks route hop by hop without touching reserves.
func (v *Venue) simulateLocked(route asset.Route, amountIn *uint256.Int) (*uint256.Int, []hop, error) {
	if len(route) < 2 {
		return nil, nil, fmt.Errorf("%w: %s", asset.ErrInvalidRoute, route)
	}
	if amountIn.IsZero() {
		return nil, nil, errors.New("amm: zero input")
	}

	hops := make([]hop, 0, len(route)-1)
	amount := amountIn.Clone()
	for i := 0; i+1 < len(route); i++ {
		in, out := route[i], route[i+1]
		p, ok := v.pools[keyOf(in, out)]
		if !ok {
			return nil, nil, fmt.Errorf("%w: no %s/%s pool", exchange.ErrNoRoute, in, out)
		}
		rin, rout := p.reserves[in], p.reserves[out]

		got, err := getAmountOut(amount, rin, rout, p.feeBps)
		if err != nil {
			return nil, nil, err
		}
		if got.IsZero() || !got.Lt(rout) {
			return nil, nil, fmt.Errorf("%w: %s/%s pool too shallow", exchange.ErrNoRoute, in, out)
		}
		hops = append(hops, hop{
			pool:   p,
			in:     in,
			out:    out,
			newIn:  new(uint256.Int).Add(rin, amount),
			newOut: new(uint256.Int).Sub(rout, got),
		})
		amount = got
	}
	return amount, hops, nil
}

// getAmountOut is the constant-product formula with an input fee.
func getAmountOut(amountIn, reserveIn, reserveOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	withFee, o1 := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(feeDenominator-feeBps))
	num, o2 := new(uint256.Int).MulOverflow(withFee, reserveOut)
	den, o3 := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(feeDenominator))
	den, o4 := new(uint256.Int).AddOverflow(den, withFee)
	if o1 || o2 || o3 || o4 {
		return nil, errors.New("amm: amount overflow")
	}
	return new(uint256.Int).Div(num, den), nil
}
