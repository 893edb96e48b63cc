package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"custody/domain/asset"
	"custody/domain/ledger"
	"custody/infra/sequence"
	"custody/infra/transfer"
	entrywal "custody/infra/wal/entry"
	exitwal "custody/infra/wal/exit"
)

// durable wires a vault over a real journal and outbox in dir.
type durable struct {
	vault   *Vault
	journal *entrywal.WAL
	outbox  *exitwal.ExitWAL
	book    *transfer.Book
}

func openDurable(t *testing.T, dir string, book *transfer.Book, segmentSize int64) *durable {
	t.Helper()

	journal, err := entrywal.Open(entrywal.Config{Dir: filepath.Join(dir, "entry"), SegmentSize: segmentSize})
	require.NoError(t, err)
	outbox, err := exitwal.Open(filepath.Join(dir, "exit"))
	require.NoError(t, err)

	reg := newRegistry(t)
	v, err := NewVault(Config{
		Owner:         owner,
		Custody:       custody,
		Assets:        reg,
		Normalizer:    ledger.NewNormalizer(reg, 6),
		CapacityLimit: u(10_000),
	}, Deps{
		Transfers: book,
		Journal:   journal,
		Outbox:    outbox,
		Sequencer: sequence.New(0),
		Log:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	_, err = v.Recover(filepath.Join(dir, "snapshot"), filepath.Join(dir, "entry"))
	require.NoError(t, err)
	return &durable{vault: v, journal: journal, outbox: outbox, book: book}
}

func (d *durable) close(t *testing.T) {
	require.NoError(t, d.journal.Close())
	require.NoError(t, d.outbox.Close())
}

// exercise runs a mix of every mutation kind.
func exercise(t *testing.T, v *Vault, book *transfer.Book) {
	t.Helper()
	ctx := context.Background()
	book.Mint(ref, alice, u(3_000))
	book.Mint(ref, bob, u(3_000))

	_, err := v.DepositReference(ctx, alice, u(2_000))
	require.NoError(t, err)
	_, err = v.DepositReference(ctx, bob, u(1_500))
	require.NoError(t, err)
	_, err = v.Withdraw(ctx, alice, u(700))
	require.NoError(t, err)
	require.NoError(t, v.SetCapacityLimit(ctx, owner, u(20_000)))
	require.NoError(t, v.SetAsset(ctx, owner, asset.WithDecimals("WBTC", 8, asset.RouteBridged)))
	require.NoError(t, parkDirect(v, bob, ref, 42))
	require.NoError(t, v.TransferOwnership(ctx, owner, bob))
}

// parkDirect parks an amount the way a swap that overflowed capacity would.
func parkDirect(v *Vault, depositor asset.Address, id asset.ID, amount uint64) error {
	_, err := v.commit(entrywal.RecordUnallocated, &mutation{Account: depositor, Asset: id, Amount: u(amount)})
	return err
}

func requireSameState(t *testing.T, want, got *Vault) {
	t.Helper()
	require.Equal(t, want.Total(), got.Total())
	require.Equal(t, want.BalanceOf(alice), got.BalanceOf(alice))
	require.Equal(t, want.BalanceOf(bob), got.BalanceOf(bob))
	require.Equal(t, want.Limit(), got.Limit())
	require.Equal(t, want.Owner(), got.Owner())
	require.Equal(t, want.Unallocated(ref), got.Unallocated(ref))
	require.Equal(t, want.Assets(), got.Assets())
	require.Equal(t, want.seq.Current(), got.seq.Current())
}

func TestRecoverReplaysJournal(t *testing.T) {
	dir := t.TempDir()
	book := transfer.NewBook(custody)

	live := openDurable(t, dir, book, 1<<20)
	exercise(t, live.vault, book)
	live.close(t)

	restored := openDurable(t, dir, book, 1<<20)
	defer restored.close(t)
	requireSameState(t, live.vault, restored.vault)

	require.Equal(t, u(1_300), restored.vault.BalanceOf(alice))
	require.Equal(t, u(1_500), restored.vault.BalanceOf(bob))
	require.Equal(t, bob, restored.vault.Owner())
	require.Equal(t, u(42), restored.vault.Unallocated(ref))

	// sequencing continues after the replayed records
	book.Mint(ref, alice, u(1))
	rcpt, err := restored.vault.DepositReference(context.Background(), alice, u(1))
	require.NoError(t, err)
	require.Equal(t, live.vault.seq.Current()+1, rcpt.Seq)
}

func TestRefundedDepositIsNotReplayed(t *testing.T) {
	dir := t.TempDir()
	book := transfer.NewBook(custody)
	ctx := context.Background()
	book.Mint(ref, alice, u(200))

	// one record per segment, so the second deposit has to rotate
	live := openDurable(t, dir, book, 1)
	_, err := live.vault.DepositReference(ctx, alice, u(100))
	require.NoError(t, err)

	blocker := filepath.Join(dir, "entry", "segment-000001.wal")
	require.NoError(t, os.Mkdir(blocker, 0o755))

	_, err = live.vault.DepositReference(ctx, alice, u(50))
	require.ErrorIs(t, err, ErrJournal)
	require.Equal(t, u(100), live.vault.BalanceOf(alice))
	require.Equal(t, u(100), book.BalanceOf(ref, alice), "refunded")

	require.NoError(t, os.Remove(blocker))
	_, err = live.vault.DepositReference(ctx, alice, u(25))
	require.NoError(t, err)
	live.close(t)

	restored := openDurable(t, dir, book, 1)
	defer restored.close(t)
	require.Equal(t, u(125), restored.vault.BalanceOf(alice))
	require.Equal(t, live.vault.Total(), restored.vault.Total())
	require.Equal(t, u(75), book.BalanceOf(ref, alice))
}

func TestSnapshotPlusReplayMatchesLiveState(t *testing.T) {
	dir := t.TempDir()
	book := transfer.NewBook(custody)
	ctx := context.Background()

	// small segments so the snapshot job has closed segments to drop
	live := openDurable(t, dir, book, 128)
	exercise(t, live.vault, book)

	job := NewSnapshotJob(live.vault, filepath.Join(dir, "snapshot"), live.journal, 0, zaptest.NewLogger(t))
	seq, err := job.RunOnce()
	require.NoError(t, err)
	require.Equal(t, live.vault.seq.Current(), seq)

	_, err = live.vault.DepositReference(ctx, bob, u(100))
	require.NoError(t, err)
	_, err = live.vault.Withdraw(ctx, bob, u(50))
	require.NoError(t, err)
	live.close(t)

	restored := openDurable(t, dir, book, 128)
	defer restored.close(t)
	requireSameState(t, live.vault, restored.vault)
	require.Equal(t, u(1_550), restored.vault.BalanceOf(bob))
}

func TestOutboxHoldsEventsInSequenceOrder(t *testing.T) {
	dir := t.TempDir()
	book := transfer.NewBook(custody)

	d := openDurable(t, dir, book, 1<<20)
	defer d.close(t)
	exercise(t, d.vault, book)

	var (
		types []EventType
		last  uint64
	)
	require.NoError(t, d.outbox.ScanPending(func(rec exitwal.ExitRecord) error {
		require.Greater(t, rec.Seq, last)
		last = rec.Seq

		var e Event
		require.NoError(t, json.Unmarshal(rec.Payload, &e))
		require.Equal(t, rec.Seq, e.Seq)
		require.Equal(t, 1, e.Version)
		require.NotEmpty(t, e.ID)
		types = append(types, e.Type)
		return nil
	}))

	require.Equal(t, []EventType{
		EventDepositCredited,
		EventDepositCredited,
		EventWithdrawalSent,
		EventCapacityChanged,
		EventAssetUpdated,
		EventUnallocated,
		EventOwnership,
	}, types)
}
