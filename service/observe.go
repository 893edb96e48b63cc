package service

import (
	"context"
	"errors"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"custody/domain/asset"
	"custody/domain/exchange"
	"custody/domain/ledger"
)

const (
	opDeposit           = "deposit"
	opDepositAsset      = "deposit_asset"
	opWithdraw          = "withdraw"
	opSetLimit          = "set_capacity_limit"
	opTransferOwnership = "transfer_ownership"
	opSetAsset          = "set_asset"
	opSweep             = "sweep_unallocated"
)

// Reason classifies an operation error into a short, stable label used in
// logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ledger.ErrReentrancyDetected):
		return "reentrancy"
	case errors.Is(err, ledger.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ledger.ErrLimitBelowTotal):
		return "limit_below_total"
	case errors.Is(err, ledger.ErrOverflow):
		return "overflow"
	case errors.Is(err, ledger.ErrUnknownPrecision):
		return "unknown_precision"
	case errors.Is(err, exchange.ErrSwapFailed):
		return "swap_failed"
	case errors.Is(err, ErrJournal):
		return "journal"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

// infrastructure reports whether the failure is ours rather than a
// rejected request.
func infrastructure(reason string) bool {
	switch reason {
	case "journal", "transfer_failed", "internal":
		return true
	}
	return false
}

// observe logs and counts one operation. Every failure is logged exactly
// once, here.
func (v *Vault) observe(op string, caller asset.Address, id asset.ID, amount *uint256.Int, err error) {
	reason := Reason(err)
	v.metrics.Operation(op, reason)

	fields := []zap.Field{
		zap.String("op", op),
		zap.Stringer("account", caller),
		zap.String("asset", string(id)),
		zap.String("amount", amountString(amount)),
	}
	switch {
	case err == nil:
		v.log.Info("operation applied", fields...)
	case infrastructure(reason):
		v.log.Error("operation failed", append(fields, zap.String("reason", reason), zap.Error(err))...)
	default:
		v.log.Warn("operation rejected", append(fields, zap.String("reason", reason), zap.Error(err))...)
	}
}
