package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"custody/api/grpcserver"
	"custody/config"
	"custody/domain/asset"
	"custody/domain/exchange"
	"custody/domain/ledger"
	"custody/infra/exchange/amm"
	"custody/infra/exchange/remote"
	"custody/infra/kafka"
	"custody/infra/sequence"
	"custody/infra/transfer"
	entrywal "custody/infra/wal/entry"
	exitwal "custody/infra/wal/exit"
	"custody/jobs/broadcaster"
	"custody/logging"
	"custody/metrics"
	"custody/service"
)

func run(ctx context.Context, cfg config.Config) error {
	log, flush, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer flush()

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	// ---------------- Domain ----------------

	assets, err := cfg.Registry()
	if err != nil {
		return err
	}
	norm := ledger.NewNormalizer(assets, cfg.Vault.ComparisonDecimals)
	if fb := cfg.Vault.FallbackDecimals; fb != nil {
		norm = norm.WithFallback(*fb)
	}
	owner := asset.MustParseAddress(cfg.Vault.Owner)
	custody := asset.MustParseAddress(cfg.Vault.Custody)
	limit, err := uint256.FromDecimal(cfg.Vault.CapacityLimit)
	if err != nil {
		return err
	}

	book := transfer.NewBook(custody)
	if err := mint(book, cfg.Dev.Mint); err != nil {
		return err
	}

	// ---------------- Entry WAL ----------------

	journal, err := entrywal.Open(entrywal.Config{
		Dir:             cfg.Storage.EntryDir,
		SegmentSize:     cfg.Storage.SegmentSize,
		SyncEveryAppend: cfg.Storage.SyncEveryAppend,
	})
	if err != nil {
		return fmt.Errorf("entry WAL init failed: %w", err)
	}
	defer journal.Close()

	// ---------------- Exit WAL ----------------

	outbox, err := exitwal.Open(cfg.Storage.ExitDir)
	if err != nil {
		return fmt.Errorf("exit WAL init failed: %w", err)
	}
	defer outbox.Close()

	// ---------------- Exchange ----------------

	converter, closeExchange, err := newConverter(cfg, assets.Reference(), book, log)
	if err != nil {
		return err
	}
	defer closeExchange()

	// ---------------- Vault ----------------

	deps := service.Deps{
		Transfers: book,
		Journal:   journal,
		Outbox:    outbox,
		Sequencer: sequence.New(0),
		Metrics:   m,
		Log:       log.Named("vault"),
	}
	if converter != nil {
		deps.Exchange = converter
	}
	vault, err := service.NewVault(service.Config{
		Owner:         owner,
		Custody:       custody,
		Assets:        assets,
		Normalizer:    norm,
		CapacityLimit: limit,
	}, deps)
	if err != nil {
		return err
	}

	// ---------------- WAL REPLAY ----------------

	if _, err := vault.Recover(cfg.Storage.SnapshotDir, cfg.Storage.EntryDir); err != nil {
		return fmt.Errorf("WAL replay failed: %w", err)
	}

	// ---------------- Background Jobs ----------------

	g, ctx := errgroup.WithContext(ctx)

	publisher, err := newPublisher(ctx, cfg.Broadcast, log)
	if err != nil {
		return err
	}
	if publisher != nil {
		bc := broadcaster.New(outbox, publisher, cfg.Broadcast.Interval, log.Named("broadcaster"), m)
		defer bc.Close()
		g.Go(func() error { return bc.Run(ctx) })
	} else {
		log.Warn("no broadcast driver configured, events stay in the outbox")
	}

	snapshots := service.NewSnapshotJob(vault, cfg.Storage.SnapshotDir, journal, cfg.Storage.SnapshotInterval, log.Named("snapshot"))
	g.Go(func() error { return snapshots.Run(ctx) })

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}
	digests := make(map[string]asset.Address, len(cfg.Server.APIKeys))
	for _, k := range cfg.Server.APIKeys {
		digests[k.KeySHA256] = asset.MustParseAddress(k.Account)
	}
	principals, err := grpcserver.NewPrincipals(digests)
	if err != nil {
		return err
	}
	if len(digests) == 0 {
		log.Warn("no api keys configured, every command will be refused")
	}
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcserver.UnaryLogger(log.Named("grpc")),
		grpcserver.UnaryAuth(principals),
	))
	grpcserver.NewServer(vault, log).Register(gs)

	g.Go(func() error {
		log.Info("vault serving", zap.String("addr", lis.Addr().String()))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		gs.GracefulStop()
		return nil
	})

	// ---------------- HTTP metrics ----------------

	if cfg.Server.MetricsListen != "" {
		srv := &http.Server{
			Addr:              cfg.Server.MetricsListen,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info("vault stopped", zap.Error(err))
	return err
}

// newConverter returns a nil converter in mode none; non-reference
// deposits are then refused.
func newConverter(cfg config.Config, ref asset.ID, book *transfer.Book, log *zap.Logger) (*exchange.Adapter, func(), error) {
	noop := func() {}
	var svc exchange.Service

	switch cfg.Exchange.Mode {
	case "none":
		return nil, noop, nil

	case "sim":
		venue := amm.NewVenue(book, asset.MustParseAddress(cfg.Exchange.Venue))
		if err := seedPools(venue, cfg.Exchange.Pools); err != nil {
			return nil, noop, err
		}
		svc = venue

	case "remote":
		conn, err := remote.Dial(cfg.Exchange.Target)
		if err != nil {
			return nil, noop, fmt.Errorf("dial exchange %s: %w", cfg.Exchange.Target, err)
		}
		bc := remote.DefaultBreakerConfig()
		bc.ConsecutiveFailures = cfg.Exchange.ConsecutiveFailures
		bc.Timeout = cfg.Exchange.BreakerTimeout
		svc = remote.New(conn, bc, log.Named("exchange"))
		noop = func() { _ = conn.Close() }

	default:
		return nil, noop, fmt.Errorf("unknown exchange mode %q", cfg.Exchange.Mode)
	}

	tol, err := cfg.Exchange.Tolerance()
	if err != nil {
		return nil, noop, err
	}
	adapter, err := exchange.NewAdapter(svc, exchange.Config{
		Reference:         ref,
		Bridge:            asset.ID(cfg.Exchange.Bridge),
		SlippageTolerance: tol,
		DeadlineGrace:     cfg.Exchange.DeadlineGrace,
	}, log.Named("exchange"))
	if err != nil {
		return nil, noop, err
	}
	return adapter, noop, nil
}

func seedPools(venue *amm.Venue, pools []config.Pool) error {
	for _, p := range pools {
		ra, err := uint256.FromDecimal(p.ReserveA)
		if err != nil {
			return fmt.Errorf("pool %s/%s: reserve_a: %w", p.A, p.B, err)
		}
		rb, err := uint256.FromDecimal(p.ReserveB)
		if err != nil {
			return fmt.Errorf("pool %s/%s: reserve_b: %w", p.A, p.B, err)
		}
		if err := venue.AddPool(asset.ID(p.A), ra, asset.ID(p.B), rb, p.FeeBps); err != nil {
			return err
		}
	}
	return nil
}

func newPublisher(ctx context.Context, cfg config.Broadcast, log *zap.Logger) (broadcaster.Publisher, error) {
	switch cfg.Driver {
	case "sarama":
		return broadcaster.DialSarama(ctx, cfg.Brokers, cfg.Topic, cfg.DialTimeout, log)
	case "kafka-go":
		return kafka.NewProducer(cfg.Brokers, cfg.Topic), nil
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown broadcast driver %q", cfg.Driver)
}

// mint funds the in-memory transfer book with development balances.
func mint(book *transfer.Book, mints []config.Mint) error {
	for _, mt := range mints {
		account, err := asset.ParseAddress(mt.Account)
		if err != nil {
			return fmt.Errorf("dev mint: %w", err)
		}
		amount, err := uint256.FromDecimal(mt.Amount)
		if err != nil {
			return fmt.Errorf("dev mint %s: %w", mt.Asset, err)
		}
		book.Mint(asset.ID(mt.Asset), account, amount)
	}
	return nil
}
