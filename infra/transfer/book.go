// Package transfer is an in-memory asset book implementing the vault's
// transfer primitive. Each call is all-or-nothing. It backs dev mode and
// the simulators; production wires a real custody integration instead.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"custody/domain/asset"
)

var ErrInsufficientFunds = errors.New("insufficient funds")

// Book holds balances per asset and holder. Custody is the address
// TransferOut pays from.
type Book struct {
	mu       sync.Mutex
	custody  asset.Address
	balances map[asset.ID]map[asset.Address]*uint256.Int
}

func NewBook(custody asset.Address) *Book {
	return &Book{
		custody:  custody,
		balances: make(map[asset.ID]map[asset.Address]*uint256.Int),
	}
}

func (b *Book) Custody() asset.Address {
	return b.custody
}

// Mint creates funds out of thin air. Dev and test only.
func (b *Book) Mint(id asset.ID, to asset.Address, amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.balanceLocked(id, to)
	b.setLocked(id, to, new(uint256.Int).Add(cur, amount))
}

func (b *Book) BalanceOf(id asset.ID, holder asset.Address) *uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balanceLocked(id, holder).Clone()
}

// TransferIn moves amount of id from one holder to another.
func (b *Book) TransferIn(ctx context.Context, id asset.ID, from, to asset.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(id, from, to, amount)
}

// TransferOut pays amount of id from custody to a holder.
func (b *Book) TransferOut(ctx context.Context, id asset.ID, to asset.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(id, b.custody, to, amount)
}

// Move is TransferIn without a context, for simulators settling trades.
func (b *Book) Move(id asset.ID, from, to asset.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveLocked(id, from, to, amount)
}

func (b *Book) moveLocked(id asset.ID, from, to asset.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return fmt.Errorf("transfer %s: zero recipient", id)
	}
	src := b.balanceLocked(id, from)
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s %s, needs %s", ErrInsufficientFunds, from, src.Dec(), id, amount.Dec())
	}
	if from == to {
		return nil
	}
	dst := b.balanceLocked(id, to)
	ndst, overflow := new(uint256.Int).AddOverflow(dst, amount)
	if overflow {
		return fmt.Errorf("transfer %s: recipient balance overflow", id)
	}
	b.setLocked(id, from, new(uint256.Int).Sub(src, amount))
	b.setLocked(id, to, ndst)
	return nil
}

func (b *Book) balanceLocked(id asset.ID, holder asset.Address) *uint256.Int {
	if m, ok := b.balances[id]; ok {
		if v, ok := m[holder]; ok {
			return v
		}
	}
	return new(uint256.Int)
}

func (b *Book) setLocked(id asset.ID, holder asset.Address, v *uint256.Int) {
	m, ok := b.balances[id]
	if !ok {
		m = make(map[asset.Address]*uint256.Int)
		b.balances[id] = m
	}
	if v.IsZero() {
		delete(m, holder)
		return
	}
	m[holder] = v
}
