// vaultctl drives a running custody vault over gRPC.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"custody/api/grpcserver"
	"custody/domain/asset"
)

var (
	target  string
	timeout time.Duration
	caller  string
	apiKey  string

	client *grpcserver.Client
	closer func() error

	rootCmd = &cobra.Command{
		Use:          "vaultctl",
		Short:        "Custody vault CLI",
		SilenceUsage: true,
	}
)

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.AddCommand(
		depositCmd,
		depositAssetCmd,
		withdrawCmd,
		balanceCmd,
		statsCmd,
		setLimitCmd,
		transferOwnershipCmd,
		setAssetCmd,
		sweepCmd,
	)
	rootCmd.PersistentFlags().StringVar(&target, "target", "localhost:50051", "vault gRPC address")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-call timeout")
	rootCmd.PersistentFlags().StringVar(&caller, "from", "", "caller address; defaults to the api key's address")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("CUSTODY_API_KEY"), "bearer key for commands")

	setAssetCmd.Flags().IntVar(&setAssetDecimals, "decimals", -1, "asset precision; omit when unknown")
	setAssetCmd.Flags().StringVar(&setAssetRoute, "route", "", "route hint: direct, bridged or empty for auto")

	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		conn, err := grpcserver.Dial(target)
		if err != nil {
			return err
		}
		client = grpcserver.NewClient(conn)
		closer = conn.Close
		return nil
	}
	rootCmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		if closer == nil {
			return nil
		}
		return closer()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "vaultctl failed %v\n", err)
		os.Exit(1)
	}
}

func callCtx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if apiKey != "" {
		ctx = grpcserver.WithAPIKey(ctx, apiKey)
	}
	return context.WithTimeout(ctx, timeout)
}

// from is the zero address when --from is omitted; the server then acts
// as the key's address.
func from() (asset.Address, error) {
	if caller == "" {
		return asset.Address{}, nil
	}
	return asset.ParseAddress(caller)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
