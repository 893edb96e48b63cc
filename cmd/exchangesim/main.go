// exchangesim serves a constant-product venue over gRPC for running the
// vault against a remote exchange.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"custody/api/exchangeserver"
	"custody/domain/asset"
	"custody/infra/exchange/amm"
	"custody/infra/transfer"
	"custody/logging"
)

var (
	listen   string
	venueHex string
	pools    []string
	funds    []string
	logLevel string

	rootCmd = &cobra.Command{
		Use:          "exchangesim",
		Short:        "Simulated AMM venue",
		SilenceUsage: true,
		RunE:         runFunc,
	}
)

func init() {
	rootCmd.Flags().StringVar(&listen, "listen", ":50061", "gRPC listen address")
	rootCmd.Flags().StringVar(&venueHex, "venue", "0x00000000000000000000000000000000000000ee", "address holding pool reserves")
	rootCmd.Flags().StringArrayVar(&pools, "pool", nil, "pool as A:reserveA:B:reserveB:feeBps, repeatable")
	rootCmd.Flags().StringArrayVar(&funds, "fund", nil, "balance as ASSET:address:amount, repeatable")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "exchangesim failed %v\n", err)
		os.Exit(1)
	}
}

func runFunc(cmd *cobra.Command, _ []string) error {
	lcfg := logging.Defaults()
	lcfg.Level = logLevel
	log, flush, err := logging.New(lcfg)
	if err != nil {
		return err
	}
	defer flush()

	self, err := asset.ParseAddress(venueHex)
	if err != nil {
		return fmt.Errorf("--venue: %w", err)
	}
	// The venue settles on its own book. Callers swapping through it need
	// input balances here, hence --fund.
	book := transfer.NewBook(self)
	for _, f := range funds {
		if err := fund(book, f); err != nil {
			return err
		}
	}
	venue := amm.NewVenue(book, self)
	for _, p := range pools {
		if err := addPool(venue, p); err != nil {
			return err
		}
	}

	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return err
	}
	gs := grpc.NewServer()
	exchangeserver.NewServer(venue, log.Named("venue")).Register(gs)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("venue serving", zap.String("addr", lis.Addr().String()), zap.Int("pools", len(pools)))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		gs.GracefulStop()
		log.Info("venue stopped", zap.Int("swaps", venue.Swaps()))
		return nil
	})
	return g.Wait()
}

func addPool(venue *amm.Venue, arg string) error {
	parts := strings.Split(arg, ":")
	if len(parts) != 5 {
		return fmt.Errorf("--pool %q: want A:reserveA:B:reserveB:feeBps", arg)
	}
	ra, err := uint256.FromDecimal(parts[1])
	if err != nil {
		return fmt.Errorf("--pool %q: %w", arg, err)
	}
	rb, err := uint256.FromDecimal(parts[3])
	if err != nil {
		return fmt.Errorf("--pool %q: %w", arg, err)
	}
	fee, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		return fmt.Errorf("--pool %q: %w", arg, err)
	}
	return venue.AddPool(asset.ID(parts[0]), ra, asset.ID(parts[2]), rb, fee)
}

func fund(book *transfer.Book, arg string) error {
	parts := strings.Split(arg, ":")
	if len(parts) != 3 {
		return fmt.Errorf("--fund %q: want ASSET:address:amount", arg)
	}
	holder, err := asset.ParseAddress(parts[1])
	if err != nil {
		return fmt.Errorf("--fund %q: %w", arg, err)
	}
	amount, err := uint256.FromDecimal(parts[2])
	if err != nil {
		return fmt.Errorf("--fund %q: %w", arg, err)
	}
	book.Mint(asset.ID(parts[0]), holder, amount)
	return nil
}
