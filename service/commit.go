package service

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"custody/domain/asset"
	"custody/domain/ledger"
	entrywal "custody/infra/wal/entry"
)

// committed is the outcome of one journaled mutation.
type committed struct {
	seq     uint64
	account asset.Address
	asset   asset.ID
	balance *uint256.Int
	total   *uint256.Int
	event   *Event
}

func (c *committed) receipt(amountIn, credited *uint256.Int) *Receipt {
	return &Receipt{
		Seq:      c.seq,
		Account:  c.account,
		Asset:    c.asset,
		AmountIn: amountIn.Clone(),
		Credited: credited.Clone(),
		Balance:  c.balance,
		Total:    c.total,
	}
}

// commit checks m against current state, journals it and applies it.
// Nothing is journaled for a mutation that would not apply, and nothing is
// applied unless the journal accepted it.
func (v *Vault) commit(t entrywal.RecordType, m *mutation) (*committed, error) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()

	if err := v.checkLocked(t, m); err != nil {
		return nil, err
	}

	seq := v.seq.Next()
	if v.journal != nil {
		if err := v.journal.Append(entrywal.NewRecord(t, seq, encodeMutation(m))); err != nil {
			return nil, fmt.Errorf("%w: %s seq %d: %v", ErrJournal, t, seq, err)
		}
	}
	if err := v.applyLocked(t, m); err != nil {
		v.log.Error("journaled mutation did not apply",
			zap.Stringer("type", t),
			zap.Uint64("seq", seq),
			zap.Error(err),
		)
		return nil, fmt.Errorf("apply %s seq %d: %w", t, seq, err)
	}
	v.refreshGaugesLocked(t, m)

	c := &committed{
		seq:     seq,
		account: m.Account,
		asset:   m.Asset,
		balance: v.accounts.BalanceOf(m.Account),
		total:   v.accounts.Total(),
	}
	c.event = v.eventLocked(t, seq, m, c)
	return c, nil
}

// checkLocked admits exactly the mutations applyLocked can apply.
func (v *Vault) checkLocked(t entrywal.RecordType, m *mutation) error {
	switch t {
	case entrywal.RecordCredit:
		return checkAdd(v.accounts.Total(), m.Credited)
	case entrywal.RecordRevert:
		return checkAdd(v.accounts.Total(), m.Amount)
	case entrywal.RecordDebit:
		if bal := v.accounts.BalanceOf(m.Account); bal.Lt(m.Amount) {
			return fmt.Errorf("%w: %s holds %s, wants %s", ledger.ErrInsufficientBalance, m.Account, bal.Dec(), m.Amount.Dec())
		}
	case entrywal.RecordUnallocated:
		return checkAdd(v.unallocatedLocked(m.Asset), m.Amount)
	case entrywal.RecordSweep:
		if cur := v.unallocatedLocked(m.Asset); cur.Lt(m.Amount) {
			return fmt.Errorf("%w: %s unallocated %s, sweeping %s", ledger.ErrInsufficientBalance, m.Asset, cur.Dec(), m.Amount.Dec())
		}
	case entrywal.RecordCapacity:
		normalized, err := v.norm.ToComparisonUnit(v.assets.Reference(), v.accounts.Total())
		if err != nil {
			return err
		}
		if m.Amount.Lt(normalized) {
			return fmt.Errorf("%w: limit %s, total %s", ledger.ErrLimitBelowTotal, m.Amount.Dec(), normalized.Dec())
		}
	case entrywal.RecordOwner, entrywal.RecordAsset:
	default:
		return fmt.Errorf("unknown record type %d", t)
	}
	return nil
}

func checkAdd(cur, add *uint256.Int) error {
	if _, overflow := new(uint256.Int).AddOverflow(cur, add); overflow {
		return fmt.Errorf("%w: %s + %s", ledger.ErrOverflow, cur.Dec(), add.Dec())
	}
	return nil
}

// applyLocked mutates in-memory state. It is shared by the live path and
// journal replay.
func (v *Vault) applyLocked(t entrywal.RecordType, m *mutation) error {
	switch t {
	case entrywal.RecordCredit:
		return v.accounts.Credit(m.Account, m.Credited)
	case entrywal.RecordDebit:
		return v.accounts.Debit(m.Account, m.Amount)
	case entrywal.RecordRevert:
		return v.accounts.Credit(m.Account, m.Amount)
	case entrywal.RecordUnallocated:
		sum, overflow := new(uint256.Int).AddOverflow(v.unallocatedLocked(m.Asset), m.Amount)
		if overflow {
			return ledger.ErrOverflow
		}
		v.setUnallocatedLocked(m.Asset, sum)
	case entrywal.RecordSweep:
		cur := v.unallocatedLocked(m.Asset)
		if cur.Lt(m.Amount) {
			return ledger.ErrInsufficientBalance
		}
		v.setUnallocatedLocked(m.Asset, new(uint256.Int).Sub(cur, m.Amount))
	case entrywal.RecordCapacity:
		normalized, err := v.norm.ToComparisonUnit(v.assets.Reference(), v.accounts.Total())
		if err != nil {
			return err
		}
		return v.capacity.SetLimit(m.Amount, normalized)
	case entrywal.RecordOwner:
		v.owner = m.Account
	case entrywal.RecordAsset:
		return v.assets.Put(m.descriptor())
	default:
		return fmt.Errorf("unknown record type %d", t)
	}
	return nil
}

func (v *Vault) unallocatedLocked(id asset.ID) *uint256.Int {
	if amt, ok := v.unallocated[id]; ok {
		return amt
	}
	return new(uint256.Int)
}

func (v *Vault) setUnallocatedLocked(id asset.ID, amt *uint256.Int) {
	if amt.IsZero() {
		delete(v.unallocated, id)
		return
	}
	v.unallocated[id] = amt
}

func (v *Vault) refreshGaugesLocked(t entrywal.RecordType, m *mutation) {
	switch t {
	case entrywal.RecordCredit, entrywal.RecordDebit, entrywal.RecordRevert:
		v.metrics.SetTotal(v.accounts.Total())
	case entrywal.RecordUnallocated, entrywal.RecordSweep:
		v.metrics.SetUnallocated(string(m.Asset), v.unallocatedLocked(m.Asset))
	case entrywal.RecordCapacity:
		v.metrics.SetLimit(m.Amount)
	}
}

func (v *Vault) eventLocked(t entrywal.RecordType, seq uint64, m *mutation, c *committed) *Event {
	e := newEvent(eventTypeFor(t), seq, v.now())
	e.Account = accountString(m.Account)
	e.Asset = string(m.Asset)
	e.Amount = amountString(m.Amount)
	e.Credited = amountString(m.Credited)
	e.Total = c.total.Dec()
	switch t {
	case entrywal.RecordCredit, entrywal.RecordDebit, entrywal.RecordRevert:
		e.Balance = c.balance.Dec()
	case entrywal.RecordUnallocated, entrywal.RecordSweep:
		e.Balance = v.unallocatedLocked(m.Asset).Dec()
	}
	return e
}

// publish hands e to the outbox. The journal already holds the mutation,
// so an outbox failure is logged rather than failing the operation.
func (v *Vault) publish(e *Event) {
	if v.outbox == nil || e == nil {
		return
	}
	payload, err := e.Marshal()
	if err == nil {
		err = v.outbox.PutNew(e.Seq, e.Key(), payload)
	}
	if err != nil {
		v.log.Error("event not queued",
			zap.String("type", string(e.Type)),
			zap.Uint64("seq", e.Seq),
			zap.Error(err),
		)
	}
}
