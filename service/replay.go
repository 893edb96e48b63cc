package service

import (
	"fmt"
	"sort"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"custody/domain/asset"
	"custody/domain/ledger"
	entrywal "custody/infra/wal/entry"
	"custody/snapshot"
)

/*
Recover rebuilds in-memory state from the latest snapshot plus the entry
journal records after it.

IMPORTANT:
- This MUST run before accepting traffic
- The outbox is NOT replayed; it is durable on its own
*/
func (v *Vault) Recover(snapshotDir, journalDir string) (uint64, error) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()

	var after uint64
	st, err := snapshot.Load(snapshotDir)
	if err != nil {
		return 0, err
	}
	if st != nil {
		if err := v.restoreLocked(st); err != nil {
			return 0, fmt.Errorf("restore snapshot seq %d: %w", st.Seq, err)
		}
		after = st.Seq
	}

	var applied int
	lastSeq, err := entrywal.Replay(journalDir, after, func(rec *entrywal.Record) error {
		m, err := decodeMutation(rec.Data)
		if err != nil {
			return fmt.Errorf("seq %d: %w", rec.Seq, err)
		}
		if err := v.applyLocked(rec.Type, m); err != nil {
			return fmt.Errorf("replay %s seq %d: %w", rec.Type, rec.Seq, err)
		}
		applied++
		return nil
	})
	if err != nil {
		return 0, err
	}

	// resume sequencing AFTER replay
	if err := v.seq.Resume(lastSeq); err != nil {
		return 0, err
	}

	v.metrics.SetTotal(v.accounts.Total())
	v.metrics.SetLimit(v.capacity.Limit())
	for id, amt := range v.unallocated {
		v.metrics.SetUnallocated(string(id), amt)
	}

	v.log.Info("journal replay completed",
		zap.Uint64("snapshot_seq", after),
		zap.Int("records", applied),
		zap.Uint64("last_seq", lastSeq),
	)
	return lastSeq, nil
}

// Snapshot captures the state together with the sequence it reflects.
func (v *Vault) Snapshot() *snapshot.State {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()

	st := &snapshot.State{
		Seq:     v.seq.Current(),
		Created: v.now().UTC(),
		Owner:   v.owner,
		Limit:   v.capacity.Limit().Dec(),
	}
	for _, e := range v.accounts.Accounts() {
		st.Balances = append(st.Balances, snapshot.Balance{Account: e.Account, Amount: e.Balance.Dec()})
	}
	for id, amt := range v.unallocated {
		st.Unallocated = append(st.Unallocated, snapshot.Holding{Asset: id, Amount: amt.Dec()})
	}
	sort.Slice(st.Unallocated, func(i, j int) bool { return st.Unallocated[i].Asset < st.Unallocated[j].Asset })
	ref := v.assets.Reference()
	for _, d := range v.assets.All() {
		if d.ID != ref {
			st.Assets = append(st.Assets, d)
		}
	}
	return st
}

func (v *Vault) restoreLocked(st *snapshot.State) error {
	entries := make([]ledger.Entry, 0, len(st.Balances))
	for _, b := range st.Balances {
		amt, err := uint256.FromDecimal(b.Amount)
		if err != nil {
			return fmt.Errorf("balance of %s: %w", b.Account, err)
		}
		entries = append(entries, ledger.Entry{Account: b.Account, Balance: amt})
	}

	unallocated := make(map[asset.ID]*uint256.Int, len(st.Unallocated))
	for _, h := range st.Unallocated {
		amt, err := uint256.FromDecimal(h.Amount)
		if err != nil {
			return fmt.Errorf("unallocated %s: %w", h.Asset, err)
		}
		if !amt.IsZero() {
			unallocated[h.Asset] = amt
		}
	}

	limit, err := uint256.FromDecimal(st.Limit)
	if err != nil {
		return fmt.Errorf("limit: %w", err)
	}

	for _, d := range st.Assets {
		if err := v.assets.Put(d); err != nil {
			return err
		}
	}
	accounts := ledger.NewAccountLedger()
	if err := accounts.Restore(entries); err != nil {
		return err
	}
	normalized, err := v.norm.ToComparisonUnit(v.assets.Reference(), accounts.Total())
	if err != nil {
		return err
	}
	if err := v.capacity.SetLimit(limit, normalized); err != nil {
		return err
	}

	v.accounts = accounts
	v.unallocated = unallocated
	if !st.Owner.IsZero() {
		v.owner = st.Owner
	}
	return v.seq.Resume(st.Seq)
}
