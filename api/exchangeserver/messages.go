package exchangeserver

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"custody/domain/asset"
	"custody/domain/exchange"
	"custody/infra/transfer"
)

const (
	ServiceName       = "custody.exchange.v1.Exchange"
	QuoteOutputMethod = "/" + ServiceName + "/QuoteOutput"
	SwapMethod        = "/" + ServiceName + "/SwapExactInput"
)

type QuoteRequest struct {
	Route    []string `json:"route"`
	AmountIn string   `json:"amount_in"`
}

type SwapRequest struct {
	Route        []string      `json:"route"`
	AmountIn     string        `json:"amount_in"`
	MinAmountOut string        `json:"min_amount_out"`
	DeadlineUnix int64         `json:"deadline_unix_nano"`
	Recipient    asset.Address `json:"recipient"`
}

type AmountResponse struct {
	AmountOut string `json:"amount_out"`
}

// ToStatus maps venue errors onto gRPC codes. FromStatus reverses it.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, exchange.ErrNoRoute):
		code = codes.NotFound
	case errors.Is(err, exchange.ErrInsufficientOutput):
		code = codes.Aborted
	case errors.Is(err, exchange.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, transfer.ErrInsufficientFunds):
		code = codes.FailedPrecondition
	case errors.Is(err, asset.ErrInvalidRoute):
		code = codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return &remoteError{sentinel: exchange.ErrNoRoute, msg: st.Message()}
	case codes.Aborted:
		return &remoteError{sentinel: exchange.ErrInsufficientOutput, msg: st.Message()}
	case codes.DeadlineExceeded:
		return &remoteError{sentinel: exchange.ErrDeadlineExceeded, msg: st.Message()}
	case codes.FailedPrecondition:
		return &remoteError{sentinel: transfer.ErrInsufficientFunds, msg: st.Message()}
	case codes.InvalidArgument:
		return &remoteError{sentinel: asset.ErrInvalidRoute, msg: st.Message()}
	case codes.Canceled:
		return &remoteError{sentinel: context.Canceled, msg: st.Message()}
	}
	return err
}

type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return "remote: " + e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }
