package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"custody/api/grpcserver"
	"custody/domain/asset"
)

var (
	setAssetDecimals int
	setAssetRoute    string
)

var depositCmd = &cobra.Command{
	Use:   "deposit [amount]",
	Short: "Deposit reference asset units",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := from()
		if err != nil {
			return err
		}
		ctx, cancel := callCtx(cmd)
		defer cancel()
		rcpt, err := client.Deposit(ctx, &grpcserver.DepositRequest{Account: account, Amount: args[0]})
		if err != nil {
			return err
		}
		return printJSON(rcpt)
	},
}

var depositAssetCmd = &cobra.Command{
	Use:   "deposit-asset [asset] [amount]",
	Short: "Deposit a non-reference asset, converted on the way in",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := from()
		if err != nil {
			return err
		}
		ctx, cancel := callCtx(cmd)
		defer cancel()
		rcpt, err := client.DepositAsset(ctx, &grpcserver.DepositAssetRequest{
			Account: account,
			Asset:   args[0],
			Amount:  args[1],
		})
		if err != nil {
			return err
		}
		return printJSON(rcpt)
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw [amount]",
	Short: "Withdraw reference asset units",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := from()
		if err != nil {
			return err
		}
		ctx, cancel := callCtx(cmd)
		defer cancel()
		rcpt, err := client.Withdraw(ctx, &grpcserver.WithdrawRequest{Account: account, Amount: args[0]})
		if err != nil {
			return err
		}
		return printJSON(rcpt)
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [account]",
	Short: "Show an account balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := asset.ParseAddress(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := callCtx(cmd)
		defer cancel()
		resp, err := client.BalanceOf(ctx, &grpcserver.BalanceOfRequest{Account: account})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vault totals and capacity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := callCtx(cmd)
		defer cancel()
		resp, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}

var setLimitCmd = &cobra.Command{
	Use:   "set-limit [limit]",
	Short: "Set the capacity limit in comparison units (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := from()
		if err != nil {
			return err
		}
		ctx, cancel := callCtx(cmd)
		defer cancel()
		return client.SetCapacityLimit(ctx, &grpcserver.SetCapacityLimitRequest{Caller: owner, Limit: args[0]})
	},
}

var transferOwnershipCmd = &cobra.Command{
	Use:   "transfer-ownership [new-owner]",
	Short: "Hand the owner role to another address (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := from()
		if err != nil {
			return err
		}
		next, err := asset.ParseAddress(args[0])
		if err != nil {
			return err
		}
		ctx, cancel := callCtx(cmd)
		defer cancel()
		return client.TransferOwnership(ctx, &grpcserver.TransferOwnershipRequest{Caller: owner, NewOwner: next})
	},
}

var setAssetCmd = &cobra.Command{
	Use:   "set-asset [asset]",
	Short: "Register or update an accepted asset (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := from()
		if err != nil {
			return err
		}
		req := &grpcserver.SetAssetRequest{Caller: owner, Asset: args[0], Route: setAssetRoute}
		if setAssetDecimals >= 0 {
			if setAssetDecimals > math.MaxUint8 {
				return fmt.Errorf("--decimals %d out of range", setAssetDecimals)
			}
			d := uint8(setAssetDecimals)
			req.Decimals = &d
		}
		ctx, cancel := callCtx(cmd)
		defer cancel()
		return client.SetAsset(ctx, req)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep [asset] [to]",
	Short: "Move unallocated custody of an asset to an address (owner only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := from()
		if err != nil {
			return err
		}
		to, err := asset.ParseAddress(args[1])
		if err != nil {
			return err
		}
		ctx, cancel := callCtx(cmd)
		defer cancel()
		resp, err := client.SweepUnallocated(ctx, &grpcserver.SweepUnallocatedRequest{
			Caller: owner,
			Asset:  args[0],
			To:     to,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}
