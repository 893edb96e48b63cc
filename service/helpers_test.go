package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"custody/domain/asset"
	"custody/domain/exchange"
	"custody/domain/ledger"
	"custody/infra/exchange/amm"
	"custody/infra/transfer"
	entrywal "custody/infra/wal/entry"
)

var (
	owner     = asset.MustParseAddress("0x00000000000000000000000000000000000000a0")
	alice     = asset.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob       = asset.MustParseAddress("0x00000000000000000000000000000000000000b0")
	custody   = asset.MustParseAddress("0x00000000000000000000000000000000000000cc")
	venueAddr = asset.MustParseAddress("0x00000000000000000000000000000000000000ee")
)

const ref asset.ID = "USDC"

func u(n uint64) *uint256.Int { return uint256.NewInt(n) }

func newRegistry(t testing.TB) *asset.Registry {
	t.Helper()
	reg, err := asset.NewRegistry(
		asset.WithDecimals(ref, 6, asset.RouteDirect),
		asset.WithDecimals("WETH", 18, asset.RouteDirect),
		asset.WithDecimals("DAI", 18, asset.RouteDirect),
	)
	require.NoError(t, err)
	return reg
}

// countingTransfers wraps the book so tests can count and intercept
// external calls.
type countingTransfers struct {
	*transfer.Book

	mu      sync.Mutex
	ins     int
	outs    int
	onIn    func()
	onOut   func()
	failOut error
}

func (c *countingTransfers) TransferIn(ctx context.Context, id asset.ID, from, to asset.Address, amount *uint256.Int) error {
	c.mu.Lock()
	c.ins++
	hook := c.onIn
	c.onIn = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return c.Book.TransferIn(ctx, id, from, to, amount)
}

func (c *countingTransfers) TransferOut(ctx context.Context, id asset.ID, to asset.Address, amount *uint256.Int) error {
	c.mu.Lock()
	c.outs++
	hook := c.onOut
	c.onOut = nil
	fail := c.failOut
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail != nil {
		return fail
	}
	return c.Book.TransferOut(ctx, id, to, amount)
}

func (c *countingTransfers) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ins + c.outs
}

type memOutbox struct {
	mu     sync.Mutex
	events []Event
}

func (o *memOutbox) PutNew(seq uint64, key, payload []byte) error {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return err
	}
	o.mu.Lock()
	o.events = append(o.events, e)
	o.mu.Unlock()
	return nil
}

func (o *memOutbox) types() []EventType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]EventType, 0, len(o.events))
	for _, e := range o.events {
		out = append(out, e.Type)
	}
	return out
}

type failingJournal struct{ err error }

func (j *failingJournal) Append(*entrywal.Record) error { return j.err }

var errDisk = errors.New("disk full")

type fixture struct {
	vault     *Vault
	book      *transfer.Book
	transfers *countingTransfers
	venue     *amm.Venue
	outbox    *memOutbox
}

type option func(*Config, *Deps)

func withNormalizer(cmpDecimals uint8) option {
	return func(c *Config, _ *Deps) {
		c.Normalizer = ledger.NewNormalizer(c.Assets, cmpDecimals)
	}
}

func withJournal(j Journal) option {
	return func(_ *Config, d *Deps) { d.Journal = j }
}

func withConverter(conv Converter) option {
	return func(_ *Config, d *Deps) { d.Exchange = conv }
}

func newFixture(t *testing.T, limit uint64, opts ...option) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	book := transfer.NewBook(custody)
	venue := amm.NewVenue(book, venueAddr)
	// 1 WETH buys 1000 USDC units, no fee
	require.NoError(t, venue.AddPool("WETH", u(1_000_000), ref, u(1_000_000_000), 0))

	adapter, err := exchange.NewAdapter(venue, exchange.Config{
		Reference:         ref,
		SlippageTolerance: decimal.RequireFromString("0.01"),
		DeadlineGrace:     time.Minute,
	}, log)
	require.NoError(t, err)

	reg := newRegistry(t)
	transfers := &countingTransfers{Book: book}
	outbox := &memOutbox{}
	cfg := Config{
		Owner:         owner,
		Custody:       custody,
		Assets:        reg,
		Normalizer:    ledger.NewNormalizer(reg, 6),
		CapacityLimit: u(limit),
	}
	deps := Deps{
		Transfers: transfers,
		Exchange:  adapter,
		Outbox:    outbox,
		Log:       log,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	v, err := NewVault(cfg, deps)
	require.NoError(t, err)
	return &fixture{vault: v, book: book, transfers: transfers, venue: venue, outbox: outbox}
}

// fund gives holder amount of id outside the vault.
func (f *fixture) fund(id asset.ID, holder asset.Address, amount uint64) {
	f.book.Mint(id, holder, u(amount))
}

type converterFunc func(ctx context.Context, d asset.Descriptor, amountIn *uint256.Int, recipient asset.Address) (*exchange.Result, error)

func (f converterFunc) Convert(ctx context.Context, d asset.Descriptor, amountIn *uint256.Int, recipient asset.Address) (*exchange.Result, error) {
	return f(ctx, d, amountIn, recipient)
}
