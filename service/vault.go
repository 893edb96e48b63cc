package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"custody/domain/asset"
	"custody/domain/exchange"
	"custody/domain/ledger"
	"custody/infra/sequence"
	entrywal "custody/infra/wal/entry"
	"custody/metrics"
)

/*
Vault is the ONLY write entry point into the custody ledger.

Every state-mutating operation:
- enters the reentrancy guard, failing fast if it is held
- validates its input before any external call
- journals each mutation before applying it in memory
- hands the resulting event to the outbox

Collaborators (transfer primitive, exchange venue) are external and may
call back into the vault; such calls hit the guard and fail.
*/

var (
	ErrTransferFailed = errors.New("transfer failed")
	ErrJournal        = errors.New("journal write failed")
)

// TransferPrimitive moves assets atomically: a call either moves the full
// amount or nothing.
type TransferPrimitive interface {
	TransferIn(ctx context.Context, id asset.ID, from, to asset.Address, amount *uint256.Int) error
	TransferOut(ctx context.Context, id asset.ID, to asset.Address, amount *uint256.Int) error
}

// Converter turns a non-reference asset into the reference asset.
// *exchange.Adapter is the production implementation.
type Converter interface {
	Convert(ctx context.Context, d asset.Descriptor, amountIn *uint256.Int, recipient asset.Address) (*exchange.Result, error)
}

// Journal is the write-ahead log. *entry.WAL satisfies it.
type Journal interface {
	Append(r *entrywal.Record) error
}

// Outbox stores events until the broadcaster publishes them. *exit.ExitWAL
// satisfies it.
type Outbox interface {
	PutNew(seq uint64, key, payload []byte) error
}

type Config struct {
	Owner         asset.Address
	Custody       asset.Address
	Assets        *asset.Registry
	Normalizer    *ledger.Normalizer
	CapacityLimit *uint256.Int
}

// Deps are the vault's collaborators. Exchange may be nil for a vault that
// only takes the reference asset; Journal and Outbox may be nil to keep
// state in memory only.
type Deps struct {
	Transfers TransferPrimitive
	Exchange  Converter
	Journal   Journal
	Outbox    Outbox
	Sequencer *sequence.Sequencer
	Metrics   *metrics.Metrics
	Log       *zap.Logger
	Now       func() time.Time
}

type Vault struct {
	custody asset.Address
	assets  *asset.Registry
	norm    *ledger.Normalizer

	guard ledger.ReentrancyGuard

	// stateMu makes a journal append and its in-memory effect a single
	// step for readers and snapshots.
	stateMu     sync.RWMutex
	accounts    *ledger.AccountLedger
	capacity    *ledger.CapacityPolicy
	owner       asset.Address
	unallocated map[asset.ID]*uint256.Int

	transfers TransferPrimitive
	exchange  Converter
	journal   Journal
	outbox    Outbox
	seq       *sequence.Sequencer
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// Receipt describes a settled deposit or withdrawal.
type Receipt struct {
	Seq      uint64
	Account  asset.Address
	Asset    asset.ID
	AmountIn *uint256.Int
	Credited *uint256.Int
	Balance  *uint256.Int
	Total    *uint256.Int
}

func NewVault(cfg Config, deps Deps) (*Vault, error) {
	switch {
	case cfg.Owner.IsZero():
		return nil, fmt.Errorf("vault: %w: owner", ledger.ErrZeroAddress)
	case cfg.Custody.IsZero():
		return nil, fmt.Errorf("vault: %w: custody", ledger.ErrZeroAddress)
	case cfg.Assets == nil || cfg.Normalizer == nil:
		return nil, errors.New("vault: asset registry and normalizer are required")
	case cfg.CapacityLimit == nil:
		return nil, errors.New("vault: capacity limit is required")
	case deps.Transfers == nil:
		return nil, errors.New("vault: transfer primitive is required")
	}
	if _, err := cfg.Normalizer.Decimals(cfg.Assets.Reference()); err != nil {
		return nil, fmt.Errorf("vault: reference asset: %w", err)
	}

	v := &Vault{
		custody:     cfg.Custody,
		assets:      cfg.Assets,
		norm:        cfg.Normalizer,
		accounts:    ledger.NewAccountLedger(),
		capacity:    ledger.NewCapacityPolicy(cfg.CapacityLimit),
		owner:       cfg.Owner,
		unallocated: make(map[asset.ID]*uint256.Int),
		transfers:   deps.Transfers,
		exchange:    deps.Exchange,
		journal:     deps.Journal,
		outbox:      deps.Outbox,
		seq:         deps.Sequencer,
		metrics:     deps.Metrics,
		log:         deps.Log,
		now:         deps.Now,
	}
	if v.seq == nil {
		v.seq = sequence.New(0)
	}
	if v.log == nil {
		v.log = zap.NewNop()
	}
	if v.now == nil {
		v.now = time.Now
	}
	v.metrics.SetLimit(cfg.CapacityLimit)
	return v, nil
}

//
// ──────────────────────────────────────────────────────────
// Deposits and withdrawals
// ──────────────────────────────────────────────────────────
//

// DepositReference credits caller with amount of the reference asset.
func (v *Vault) DepositReference(ctx context.Context, caller asset.Address, amount *uint256.Int) (*Receipt, error) {
	var rcpt *Receipt
	err := v.guard.Do(func() (err error) {
		rcpt, err = v.depositReference(ctx, caller, amount)
		return err
	})
	v.observe(opDeposit, caller, v.assets.Reference(), amount, err)
	return rcpt, err
}

// DepositAsset pulls amount of id from caller, converts it into the
// reference asset and credits what the conversion actually delivered.
//
// When the delivered amount does not fit under the capacity limit it stays
// in custody as unallocated and the deposit fails with
// ErrCapacityExceeded; the owner recovers it with SweepUnallocated.
func (v *Vault) DepositAsset(ctx context.Context, caller asset.Address, id asset.ID, amount *uint256.Int) (*Receipt, error) {
	var rcpt *Receipt
	err := v.guard.Do(func() (err error) {
		rcpt, err = v.depositAsset(ctx, caller, id, amount)
		return err
	})
	v.observe(opDepositAsset, caller, id, amount, err)
	return rcpt, err
}

// Withdraw debits caller and pays amount of the reference asset out.
func (v *Vault) Withdraw(ctx context.Context, caller asset.Address, amount *uint256.Int) (*Receipt, error) {
	var rcpt *Receipt
	err := v.guard.Do(func() (err error) {
		rcpt, err = v.withdraw(ctx, caller, amount)
		return err
	})
	v.observe(opWithdraw, caller, v.assets.Reference(), amount, err)
	return rcpt, err
}

func (v *Vault) depositReference(ctx context.Context, caller asset.Address, amount *uint256.Int) (*Receipt, error) {
	ref := v.assets.Reference()
	if err := validate(caller, amount); err != nil {
		return nil, err
	}
	if err := v.checkCapacity(amount); err != nil {
		return nil, err
	}
	if err := v.transfers.TransferIn(ctx, ref, caller, v.custody, amount); err != nil {
		return nil, fmt.Errorf("%w: pull %s %s: %w", ErrTransferFailed, amount.Dec(), ref, err)
	}

	rcpt, err := v.credit(caller, ref, amount, amount)
	if err != nil {
		v.refund(ctx, ref, caller, amount)
		return nil, err
	}
	return rcpt, nil
}

func (v *Vault) depositAsset(ctx context.Context, caller asset.Address, id asset.ID, amount *uint256.Int) (*Receipt, error) {
	ref := v.assets.Reference()
	if err := validate(caller, amount); err != nil {
		return nil, err
	}
	d, ok := v.assets.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrUnknownAsset, id)
	}
	if id == ref {
		return v.depositReference(ctx, caller, amount)
	}
	if v.exchange == nil {
		return nil, fmt.Errorf("%w: no exchange configured for %s", exchange.ErrSwapFailed, id)
	}

	if err := v.transfers.TransferIn(ctx, id, caller, v.custody, amount); err != nil {
		return nil, fmt.Errorf("%w: pull %s %s: %w", ErrTransferFailed, amount.Dec(), id, err)
	}

	start := v.now()
	res, err := v.exchange.Convert(ctx, d, amount, v.custody)
	v.metrics.ObserveSwap(v.now().Sub(start))
	if err != nil {
		if res != nil && res.Received != nil && !res.Received.IsZero() {
			// the venue settled below its minimum: the input is gone and
			// the output is in custody
			v.park(caller, ref, res.Received, err)
		} else {
			v.refund(ctx, id, caller, amount)
		}
		return nil, err
	}
	received := res.Received
	if received.IsZero() {
		return nil, fmt.Errorf("%w: %s swap delivered nothing", exchange.ErrSwapFailed, id)
	}

	if err := v.checkCapacity(received); err != nil {
		v.park(caller, ref, received, err)
		return nil, err
	}
	rcpt, err := v.credit(caller, id, amount, received)
	if err != nil {
		v.park(caller, ref, received, err)
		return nil, err
	}
	return rcpt, nil
}

func (v *Vault) withdraw(ctx context.Context, caller asset.Address, amount *uint256.Int) (*Receipt, error) {
	ref := v.assets.Reference()
	if err := validate(caller, amount); err != nil {
		return nil, err
	}

	debit, err := v.commit(entrywal.RecordDebit, &mutation{Account: caller, Asset: ref, Amount: amount})
	if err != nil {
		return nil, err
	}

	if err := v.transfers.TransferOut(ctx, ref, caller, amount); err != nil {
		terr := fmt.Errorf("%w: pay %s %s: %w", ErrTransferFailed, amount.Dec(), ref, err)
		revert, rerr := v.commit(entrywal.RecordRevert, &mutation{Account: caller, Asset: ref, Amount: amount})
		if rerr != nil {
			v.log.Error("withdrawal debited but neither paid nor reverted",
				zap.Stringer("account", caller),
				zap.String("amount", amount.Dec()),
				zap.Uint64("debit_seq", debit.seq),
				zap.Error(rerr),
			)
			return nil, errors.Join(terr, rerr)
		}
		v.publish(revert.event)
		return nil, terr
	}

	v.publish(debit.event)
	return debit.receipt(amount, amount), nil
}

// credit journals and applies a deposit credit.
func (v *Vault) credit(caller asset.Address, id asset.ID, amountIn, credited *uint256.Int) (*Receipt, error) {
	c, err := v.commit(entrywal.RecordCredit, &mutation{
		Account:  caller,
		Asset:    id,
		Amount:   amountIn,
		Credited: credited,
	})
	if err != nil {
		return nil, err
	}
	v.publish(c.event)
	return c.receipt(amountIn, credited), nil
}

// checkCapacity fails if crediting add would push the normalized total
// over the limit.
func (v *Vault) checkCapacity(add *uint256.Int) error {
	v.stateMu.RLock()
	total := v.accounts.Total()
	v.stateMu.RUnlock()

	projected, overflow := new(uint256.Int).AddOverflow(total, add)
	if overflow {
		return fmt.Errorf("%w: total %s + %s", ledger.ErrOverflow, total.Dec(), add.Dec())
	}
	normalized, err := v.norm.ToComparisonUnit(v.assets.Reference(), projected)
	if err != nil {
		return err
	}
	return v.capacity.Check(normalized)
}

// refund returns a pulled input to its owner. If that fails too the input
// is parked as unallocated custody.
func (v *Vault) refund(ctx context.Context, id asset.ID, to asset.Address, amount *uint256.Int) {
	err := v.transfers.TransferOut(context.WithoutCancel(ctx), id, to, amount)
	if err == nil {
		v.log.Info("deposit refunded",
			zap.Stringer("account", to),
			zap.String("asset", string(id)),
			zap.String("amount", amount.Dec()),
		)
		return
	}
	v.park(to, id, amount, fmt.Errorf("refund: %w", err))
}

// park records amount of id as held in custody but credited to nobody.
func (v *Vault) park(depositor asset.Address, id asset.ID, amount *uint256.Int, cause error) {
	c, err := v.commit(entrywal.RecordUnallocated, &mutation{Account: depositor, Asset: id, Amount: amount})
	if err != nil {
		v.log.Error("custody holds an unrecorded amount",
			zap.Stringer("account", depositor),
			zap.String("asset", string(id)),
			zap.String("amount", amount.Dec()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return
	}
	v.log.Warn("amount held as unallocated custody",
		zap.Stringer("account", depositor),
		zap.String("asset", string(id)),
		zap.String("amount", amount.Dec()),
		zap.Uint64("seq", c.seq),
		zap.NamedError("cause", cause),
	)
	v.publish(c.event)
}

func validate(caller asset.Address, amount *uint256.Int) error {
	if caller.IsZero() {
		return ledger.ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return ledger.ErrZeroAmount
	}
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Owner operations
// ──────────────────────────────────────────────────────────
//

// SetCapacityLimit replaces the capacity limit. A limit below the current
// normalized total is refused.
func (v *Vault) SetCapacityLimit(ctx context.Context, caller asset.Address, limit *uint256.Int) error {
	err := v.guard.Do(func() error {
		if err := v.requireOwner(caller); err != nil {
			return err
		}
		if limit == nil {
			return fmt.Errorf("%w: missing limit", ledger.ErrInvalidInput)
		}
		c, err := v.commit(entrywal.RecordCapacity, &mutation{Account: caller, Amount: limit})
		if err != nil {
			return err
		}
		v.publish(c.event)
		return nil
	})
	v.observe(opSetLimit, caller, "", limit, err)
	return err
}

func (v *Vault) TransferOwnership(ctx context.Context, caller, newOwner asset.Address) error {
	err := v.guard.Do(func() error {
		if err := v.requireOwner(caller); err != nil {
			return err
		}
		if newOwner.IsZero() {
			return ledger.ErrZeroAddress
		}
		c, err := v.commit(entrywal.RecordOwner, &mutation{Account: newOwner})
		if err != nil {
			return err
		}
		v.publish(c.event)
		return nil
	})
	v.observe(opTransferOwnership, caller, "", nil, err)
	return err
}

// SetAsset adds or replaces a non-reference asset descriptor.
func (v *Vault) SetAsset(ctx context.Context, caller asset.Address, d asset.Descriptor) error {
	err := v.guard.Do(func() error {
		if err := v.requireOwner(caller); err != nil {
			return err
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrInvalidInput, err)
		}
		if d.ID == v.assets.Reference() {
			return ledger.ErrReferenceAsset
		}
		c, err := v.commit(entrywal.RecordAsset, &mutation{
			Asset:         d.ID,
			Decimals:      d.Decimals,
			DecimalsKnown: d.DecimalsKnown,
			Route:         d.Route,
		})
		if err != nil {
			return err
		}
		v.publish(c.event)
		return nil
	})
	v.observe(opSetAsset, caller, d.ID, nil, err)
	return err
}

// SweepUnallocated pays the whole unallocated amount of id to the given
// address and returns it.
func (v *Vault) SweepUnallocated(ctx context.Context, caller asset.Address, id asset.ID, to asset.Address) (*uint256.Int, error) {
	var swept *uint256.Int
	err := v.guard.Do(func() error {
		if err := v.requireOwner(caller); err != nil {
			return err
		}
		if to.IsZero() {
			return ledger.ErrZeroAddress
		}
		amount := v.Unallocated(id)
		if amount.IsZero() {
			return fmt.Errorf("%w: nothing unallocated in %s", ledger.ErrZeroAmount, id)
		}

		c, err := v.commit(entrywal.RecordSweep, &mutation{Account: to, Asset: id, Amount: amount})
		if err != nil {
			return err
		}
		if err := v.transfers.TransferOut(ctx, id, to, amount); err != nil {
			terr := fmt.Errorf("%w: sweep %s %s: %w", ErrTransferFailed, amount.Dec(), id, err)
			v.park(to, id, amount, terr)
			return terr
		}
		v.publish(c.event)
		swept = amount
		return nil
	})
	v.observe(opSweep, caller, id, swept, err)
	return swept, err
}

func (v *Vault) requireOwner(caller asset.Address) error {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	if caller.IsZero() || caller != v.owner {
		return fmt.Errorf("%w: %s is not the owner", ledger.ErrUnauthorized, caller)
	}
	return nil
}

//
// ──────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────
//

// BalanceOf never fails; unknown accounts have a zero balance.
func (v *Vault) BalanceOf(account asset.Address) *uint256.Int {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return v.accounts.BalanceOf(account)
}

func (v *Vault) Total() *uint256.Int {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return v.accounts.Total()
}

func (v *Vault) Limit() *uint256.Int {
	return v.capacity.Limit()
}

func (v *Vault) Owner() asset.Address {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return v.owner
}

func (v *Vault) Unallocated(id asset.ID) *uint256.Int {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	if amt, ok := v.unallocated[id]; ok {
		return amt.Clone()
	}
	return new(uint256.Int)
}

// Assets lists the configured asset descriptors, reference included.
func (v *Vault) Assets() []asset.Descriptor {
	return v.assets.All()
}

type Stats struct {
	Seq             uint64
	Owner           asset.Address
	Accounts        int
	Total           *uint256.Int
	NormalizedTotal *uint256.Int
	Limit           *uint256.Int
	Headroom        *uint256.Int
	Unallocated     map[asset.ID]*uint256.Int
}

func (v *Vault) Stats() (Stats, error) {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()

	total := v.accounts.Total()
	normalized, err := v.norm.ToComparisonUnit(v.assets.Reference(), total)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Seq:             v.seq.Current(),
		Owner:           v.owner,
		Accounts:        v.accounts.Len(),
		Total:           total,
		NormalizedTotal: normalized,
		Limit:           v.capacity.Limit(),
		Headroom:        v.capacity.Headroom(normalized),
		Unallocated:     make(map[asset.ID]*uint256.Int, len(v.unallocated)),
	}
	for id, amt := range v.unallocated {
		s.Unallocated[id] = amt.Clone()
	}
	return s, nil
}
