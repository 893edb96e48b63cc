package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"custody/domain/ledger"
	"custody/infra/sequence"
	"custody/infra/transfer"
	entrywal "custody/infra/wal/entry"
	exitwal "custody/infra/wal/exit"
)

func BenchmarkDepositWithdraw_Core(b *testing.B) {
	book := transfer.NewBook(custody)
	book.Mint(ref, alice, u(1_000_000))

	entryWAL, err := entrywal.Open(entrywal.Config{
		Dir:         b.TempDir(),
		SegmentSize: 64 << 20,
	})
	if err != nil {
		b.Fatal(err)
	}
	defer entryWAL.Close()
	exitWAL, err := exitwal.Open(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	defer exitWAL.Close()

	reg := newRegistry(b)
	v, err := NewVault(Config{
		Owner:         owner,
		Custody:       custody,
		Assets:        reg,
		Normalizer:    ledger.NewNormalizer(reg, 6),
		CapacityLimit: u(1_000_000),
	}, Deps{
		Transfers: book,
		Journal:   entryWAL,
		Outbox:    exitWAL,
		Sequencer: sequence.New(0),
		Log:       zap.NewNop(),
	})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	amount := u(10)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.DepositReference(ctx, alice, amount); err != nil {
			b.Fatal(err)
		}
		if _, err := v.Withdraw(ctx, alice, amount); err != nil {
			b.Fatal(err)
		}
	}
}
