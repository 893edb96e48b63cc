// Package remote reaches an exchange venue over gRPC. Calls run through a
// circuit breaker so a failing venue stops receiving swaps quickly.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"custody/api/codec"
	"custody/api/exchangeserver"
	"custody/domain/asset"
	"custody/domain/exchange"
	"custody/infra/transfer"
)

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("exchange unavailable")

type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// Client implements exchange.Service against a remote venue.
type Client struct {
	conn    grpc.ClientConnInterface
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

var _ exchange.Service = (*Client)(nil)

// Dial opens a plaintext connection that speaks the JSON codec.
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(codec.CallOption()),
	)
}

func New(conn grpc.ClientConnInterface, cfg BreakerConfig, log *zap.Logger) *Client {
	c := &Client{conn: conn, log: log}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
		IsSuccessful: venueHealthy,
	})
	return c
}

// venueHealthy treats rejections the venue made on purpose as successes;
// only transport and internal failures count toward tripping.
func venueHealthy(err error) bool {
	return err == nil ||
		errors.Is(err, exchange.ErrNoRoute) ||
		errors.Is(err, exchange.ErrInsufficientOutput) ||
		errors.Is(err, exchange.ErrDeadlineExceeded) ||
		errors.Is(err, transfer.ErrInsufficientFunds) ||
		errors.Is(err, asset.ErrInvalidRoute) ||
		errors.Is(err, context.Canceled)
}

// State reports the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

func (c *Client) QuoteOutput(ctx context.Context, route asset.Route, amountIn *uint256.Int) (*uint256.Int, error) {
	req := &exchangeserver.QuoteRequest{
		Route:    route.Strings(),
		AmountIn: codec.FormatAmount(amountIn),
	}
	return c.call(ctx, exchangeserver.QuoteOutputMethod, req)
}

func (c *Client) SwapExactInput(
	ctx context.Context,
	route asset.Route,
	amountIn *uint256.Int,
	minAmountOut *uint256.Int,
	deadline time.Time,
	recipient asset.Address,
) (*uint256.Int, error) {
	req := &exchangeserver.SwapRequest{
		Route:        route.Strings(),
		AmountIn:     codec.FormatAmount(amountIn),
		MinAmountOut: codec.FormatAmount(minAmountOut),
		DeadlineUnix: deadline.UnixNano(),
		Recipient:    recipient,
	}
	return c.call(ctx, exchangeserver.SwapMethod, req)
}

func (c *Client) call(ctx context.Context, method string, req any) (*uint256.Int, error) {
	res, err := c.breaker.Execute(func() (any, error) {
		resp := new(exchangeserver.AmountResponse)
		if err := c.conn.Invoke(ctx, method, req, resp, codec.CallOption()); err != nil {
			return nil, exchangeserver.FromStatus(err)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return codec.ParseAmount(res.(*exchangeserver.AmountResponse).AmountOut)
}
