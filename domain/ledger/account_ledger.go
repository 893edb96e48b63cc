package ledger

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/holiman/uint256"

	"custody/domain/asset"
)

// AccountLedger owns per-depositor balances in reference-asset native
// units and their aggregate. Every mutation moves one balance and the
// total together, so the sum of all balances always equals Total.
//
// Zero balances are not stored: an emptied account and one that was never
// used look the same.
type AccountLedger struct {
	mu       sync.RWMutex
	balances map[asset.Address]*uint256.Int
	total    *uint256.Int
}

func NewAccountLedger() *AccountLedger {
	return &AccountLedger{
		balances: make(map[asset.Address]*uint256.Int),
		total:    new(uint256.Int),
	}
}

// Credit adds amount to account and to the total. Nothing changes when
// either sum would overflow.
func (l *AccountLedger) Credit(account asset.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.balanceLocked(account)
	nbal, overflow := new(uint256.Int).AddOverflow(cur, amount)
	if overflow {
		return fmt.Errorf("%w: balance of %s (bal=%s, amount=%s)", ErrOverflow, account, cur.Dec(), amount.Dec())
	}
	ntotal, overflow := new(uint256.Int).AddOverflow(l.total, amount)
	if overflow {
		return fmt.Errorf("%w: total (total=%s, amount=%s)", ErrOverflow, l.total.Dec(), amount.Dec())
	}

	l.set(account, nbal)
	l.total = ntotal
	return nil
}

// Debit removes amount from account and from the total.
func (l *AccountLedger) Debit(account asset.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.balanceLocked(account)
	if cur.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, wants %s", ErrInsufficientBalance, account, cur.Dec(), amount.Dec())
	}

	l.set(account, new(uint256.Int).Sub(cur, amount))
	l.total = new(uint256.Int).Sub(l.total, amount)
	return nil
}

// BalanceOf never fails; unknown accounts read as zero. The result is a copy.
func (l *AccountLedger) BalanceOf(account asset.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(account).Clone()
}

func (l *AccountLedger) Total() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total.Clone()
}

// Len returns the number of accounts with a non-zero balance.
func (l *AccountLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.balances)
}

// Entry is one account balance, used by snapshots and recovery.
type Entry struct {
	Account asset.Address
	Balance *uint256.Int
}

// Accounts returns a copy of every non-zero balance ordered by address.
func (l *AccountLedger) Accounts() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.balances))
	for a, b := range l.balances {
		out = append(out, Entry{Account: a, Balance: b.Clone()})
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Account[:], out[j].Account[:]) < 0
	})
	return out
}

// Restore replaces the ledger contents, recomputing the total from the
// entries. It is only used while recovering, before traffic is accepted.
func (l *AccountLedger) Restore(entries []Entry) error {
	balances := make(map[asset.Address]*uint256.Int, len(entries))
	total := new(uint256.Int)
	for _, e := range entries {
		if e.Balance == nil || e.Balance.IsZero() {
			continue
		}
		if _, dup := balances[e.Account]; dup {
			return fmt.Errorf("restore: duplicate account %s", e.Account)
		}
		var overflow bool
		total, overflow = new(uint256.Int).AddOverflow(total, e.Balance)
		if overflow {
			return fmt.Errorf("%w: restore total", ErrOverflow)
		}
		balances[e.Account] = e.Balance.Clone()
	}

	l.mu.Lock()
	l.balances = balances
	l.total = total
	l.mu.Unlock()
	return nil
}

func (l *AccountLedger) balanceLocked(account asset.Address) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (l *AccountLedger) set(account asset.Address, bal *uint256.Int) {
	if bal.IsZero() {
		delete(l.balances, account)
		return
	}
	l.balances[account] = bal
}
