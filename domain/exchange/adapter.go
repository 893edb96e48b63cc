package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"custody/domain/asset"
)

type Config struct {
	Reference asset.ID
	// Bridge is the intermediate asset for bridged routes. Optional.
	Bridge            asset.ID
	SlippageTolerance decimal.Decimal
	DeadlineGrace     time.Duration
}

func (c Config) Validate() error {
	if c.Reference == "" {
		return errors.New("exchange: empty reference asset")
	}
	if c.Bridge == c.Reference {
		return errors.New("exchange: bridge asset equals reference asset")
	}
	if c.DeadlineGrace <= 0 {
		return fmt.Errorf("exchange: deadline grace %s must be positive", c.DeadlineGrace)
	}
	return ValidateTolerance(c.SlippageTolerance)
}

// Adapter turns an input-asset amount into the reference asset.
type Adapter struct {
	svc Service
	cfg Config
	log *zap.Logger
	now func() time.Time
}

func NewAdapter(svc Service, cfg Config, log *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{svc: svc, cfg: cfg, log: log, now: time.Now}, nil
}

// WithClock replaces the time source used for deadlines.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	a.now = now
	return a
}

func (a *Adapter) Reference() asset.ID {
	return a.cfg.Reference
}

// Routes lists the candidate routes for d in preference order.
func (a *Adapter) Routes(d asset.Descriptor) ([]asset.Route, error) {
	direct := asset.Route{d.ID, a.cfg.Reference}
	var bridged asset.Route
	if a.cfg.Bridge != "" && a.cfg.Bridge != d.ID {
		bridged = asset.Route{d.ID, a.cfg.Bridge, a.cfg.Reference}
	}

	switch d.Route {
	case asset.RouteDirect:
		return []asset.Route{direct}, nil
	case asset.RouteBridged:
		if bridged == nil {
			return nil, fmt.Errorf("%w: %s needs a bridge asset and none is configured", ErrNoRoute, d.ID)
		}
		return []asset.Route{bridged}, nil
	default:
		if bridged == nil {
			return []asset.Route{direct}, nil
		}
		return []asset.Route{direct, bridged}, nil
	}
}

// Quote prices amountIn of d along the first route the service can serve.
func (a *Adapter) Quote(ctx context.Context, d asset.Descriptor, amountIn *uint256.Int) (*Quote, error) {
	routes, err := a.Routes(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSwapFailed, err)
	}

	var lastErr error
	for _, route := range routes {
		if err := route.Validate(a.cfg.Reference); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSwapFailed, err)
		}
		out, err := a.svc.QuoteOutput(ctx, route, amountIn)
		if err != nil {
			lastErr = err
			if errors.Is(err, ErrNoRoute) {
				a.log.Debug("route unavailable, trying next",
					zap.Stringer("route", route),
					zap.Error(err),
				)
				continue
			}
			break
		}
		if out == nil || out.IsZero() {
			lastErr = fmt.Errorf("empty quote on %s", route)
			continue
		}

		min, err := MinAmountOut(out, a.cfg.SlippageTolerance)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSwapFailed, err)
		}
		return &Quote{
			Route:        route,
			AmountIn:     amountIn.Clone(),
			AmountOut:    out,
			MinAmountOut: min,
			Deadline:     a.now().Add(a.cfg.DeadlineGrace),
		}, nil
	}
	return nil, fmt.Errorf("%w: quote %s: %w", ErrSwapFailed, d.ID, lastErr)
}

// Convert quotes and executes the swap, delivering the reference asset to
// recipient. The amount actually received is returned, never the quote.
//
// On ErrSettledBelowMinimum the result is non-nil: the output was delivered
// even though the venue broke its minimum-output contract.
func (a *Adapter) Convert(
	ctx context.Context,
	d asset.Descriptor,
	amountIn *uint256.Int,
	recipient asset.Address,
) (*Result, error) {
	if d.ID == a.cfg.Reference {
		return nil, fmt.Errorf("%w: %s is the reference asset", ErrSwapFailed, d.ID)
	}
	q, err := a.Quote(ctx, d, amountIn)
	if err != nil {
		return nil, err
	}

	swapCtx, cancel := context.WithDeadline(ctx, q.Deadline)
	defer cancel()

	received, err := a.svc.SwapExactInput(swapCtx, q.Route, q.AmountIn, q.MinAmountOut, q.Deadline, recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSwapFailed, q.Route, err)
	}
	if received == nil {
		return nil, fmt.Errorf("%w: %s returned no output", ErrSwapFailed, q.Route)
	}
	res := &Result{Quote: *q, Received: received}
	if received.Lt(q.MinAmountOut) {
		// The venue settled anyway; the caller owns what arrived.
		return res, fmt.Errorf("%w: %s delivered %s, minimum %s", ErrSettledBelowMinimum, q.Route, received.Dec(), q.MinAmountOut.Dec())
	}

	a.log.Debug("swap executed",
		zap.Stringer("route", q.Route),
		zap.String("amount_in", q.AmountIn.Dec()),
		zap.String("quoted", q.AmountOut.Dec()),
		zap.String("min_out", q.MinAmountOut.Dec()),
		zap.String("received", received.Dec()),
	)
	return res, nil
}
