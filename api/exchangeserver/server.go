// Package exchangeserver serves an exchange.Service over gRPC so the vault
// can reach a venue running in another process.
package exchangeserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"custody/api/codec"
	"custody/domain/asset"
	"custody/domain/exchange"
)

// Server adapts an exchange.Service to gRPC.
type Server struct {
	venue exchange.Service
	log   *zap.Logger
}

func NewServer(venue exchange.Service, log *zap.Logger) *Server {
	return &Server{venue: venue, log: log}
}

// Register attaches the service to s.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *Server) QuoteOutput(ctx context.Context, req *QuoteRequest) (*AmountResponse, error) {
	amountIn, err := codec.ParseAmount(req.AmountIn)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	route := asset.RouteFromStrings(req.Route)

	out, err := s.venue.QuoteOutput(ctx, route, amountIn)
	if err != nil {
		s.log.Debug("quote rejected", zap.Stringer("route", route), zap.Error(err))
		return nil, ToStatus(err)
	}
	return &AmountResponse{AmountOut: codec.FormatAmount(out)}, nil
}

func (s *Server) SwapExactInput(ctx context.Context, req *SwapRequest) (*AmountResponse, error) {
	amountIn, err := codec.ParseAmount(req.AmountIn)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	minOut, err := codec.ParseAmount(req.MinAmountOut)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	route := asset.RouteFromStrings(req.Route)

	out, err := s.venue.SwapExactInput(ctx, route, amountIn, minOut, time.Unix(0, req.DeadlineUnix), req.Recipient)
	if err != nil {
		s.log.Info("swap rejected",
			zap.Stringer("route", route),
			zap.String("amount_in", req.AmountIn),
			zap.Error(err),
		)
		return nil, ToStatus(err)
	}
	s.log.Info("swap executed",
		zap.Stringer("route", route),
		zap.String("amount_in", req.AmountIn),
		zap.String("amount_out", out.Dec()),
		zap.Stringer("recipient", req.Recipient),
	)
	return &AmountResponse{AmountOut: codec.FormatAmount(out)}, nil
}

type exchangeServer interface {
	QuoteOutput(context.Context, *QuoteRequest) (*AmountResponse, error)
	SwapExactInput(context.Context, *SwapRequest) (*AmountResponse, error)
}

func quoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(QuoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(exchangeServer).QuoteOutput(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: QuoteOutputMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(exchangeServer).QuoteOutput(ctx, req.(*QuoteRequest))
	})
}

func swapHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SwapRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(exchangeServer).SwapExactInput(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SwapMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(exchangeServer).SwapExactInput(ctx, req.(*SwapRequest))
	})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*exchangeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "QuoteOutput", Handler: quoteHandler},
		{MethodName: "SwapExactInput", Handler: swapHandler},
	},
	Metadata: "custody/exchange/v1",
}
