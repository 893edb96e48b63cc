package ledger

import (
	"errors"
	"fmt"
)

// ErrInvalidInput covers every rejection that happens before any mutation
// or external call. The specific reasons below wrap it.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrZeroAmount     = fmt.Errorf("%w: zero amount", ErrInvalidInput)
	ErrUnknownAsset   = fmt.Errorf("%w: unknown asset", ErrInvalidInput)
	ErrZeroAddress    = fmt.Errorf("%w: zero address", ErrInvalidInput)
	ErrReferenceAsset = fmt.Errorf("%w: reference asset on the conversion path", ErrInvalidInput)
)

var (
	ErrOverflow            = errors.New("amount overflow")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrLimitBelowTotal     = errors.New("capacity limit below current total")
	ErrUnknownPrecision    = errors.New("unknown asset precision")
	ErrReentrancyDetected  = errors.New("reentrancy detected")
	ErrUnauthorized        = errors.New("unauthorized")
)
