package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"custody/api/codec"
	"custody/domain/asset"
	"custody/domain/exchange"
	"custody/domain/ledger"
	"custody/service"
)

// Server adapts the Vault to gRPC.
//
// Requests are admitted one at a time: the vault's guard fails concurrent
// calls instead of queueing them, so the server does the queueing.
type Server struct {
	svc   *service.Vault
	log   *zap.Logger
	admit chan struct{}
}

func NewServer(svc *service.Vault, log *zap.Logger) *Server {
	return &Server{svc: svc, log: log, admit: make(chan struct{}, 1)}
}

// Register attaches the service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *Server) enter(ctx context.Context) (func(), error) {
	select {
	case s.admit <- struct{}{}:
		return func() { <-s.admit }, nil
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
}

// -------------------- Commands --------------------

func (s *Server) Deposit(ctx context.Context, req *DepositRequest) (*ReceiptResponse, error) {
	account, err := caller(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	amount, err := codec.ParseAmount(req.Amount)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	release, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rcpt, err := s.svc.DepositReference(ctx, account, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return toReceipt(rcpt), nil
}

func (s *Server) DepositAsset(ctx context.Context, req *DepositAssetRequest) (*ReceiptResponse, error) {
	account, err := caller(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	amount, err := codec.ParseAmount(req.Amount)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	release, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rcpt, err := s.svc.DepositAsset(ctx, account, asset.ID(req.Asset), amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return toReceipt(rcpt), nil
}

func (s *Server) Withdraw(ctx context.Context, req *WithdrawRequest) (*ReceiptResponse, error) {
	account, err := caller(ctx, req.Account)
	if err != nil {
		return nil, err
	}
	amount, err := codec.ParseAmount(req.Amount)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	release, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rcpt, err := s.svc.Withdraw(ctx, account, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	return toReceipt(rcpt), nil
}

func (s *Server) SetCapacityLimit(ctx context.Context, req *SetCapacityLimitRequest) (*Empty, error) {
	from, err := caller(ctx, req.Caller)
	if err != nil {
		return nil, err
	}
	limit, err := codec.ParseAmount(req.Limit)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	release, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.svc.SetCapacityLimit(ctx, from, limit); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) TransferOwnership(ctx context.Context, req *TransferOwnershipRequest) (*Empty, error) {
	from, err := caller(ctx, req.Caller)
	if err != nil {
		return nil, err
	}
	release, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.svc.TransferOwnership(ctx, from, req.NewOwner); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) SetAsset(ctx context.Context, req *SetAssetRequest) (*Empty, error) {
	from, err := caller(ctx, req.Caller)
	if err != nil {
		return nil, err
	}
	hint, err := asset.ParseRouteHint(req.Route)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	d := asset.Descriptor{ID: asset.ID(req.Asset), Route: hint}
	if req.Decimals != nil {
		d.Decimals = *req.Decimals
		d.DecimalsKnown = true
	}

	release, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.svc.SetAsset(ctx, from, d); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) SweepUnallocated(ctx context.Context, req *SweepUnallocatedRequest) (*SweepUnallocatedResponse, error) {
	from, err := caller(ctx, req.Caller)
	if err != nil {
		return nil, err
	}
	release, err := s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	amount, err := s.svc.SweepUnallocated(ctx, from, asset.ID(req.Asset), req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SweepUnallocatedResponse{Amount: codec.FormatAmount(amount)}, nil
}

// -------------------- Queries --------------------

// Queries bypass admission; the vault serves them under a read lock.

func (s *Server) BalanceOf(ctx context.Context, req *BalanceOfRequest) (*BalanceOfResponse, error) {
	return &BalanceOfResponse{
		Account: req.Account,
		Balance: codec.FormatAmount(s.svc.BalanceOf(req.Account)),
	}, nil
}

func (s *Server) Stats(ctx context.Context, _ *StatsRequest) (*StatsResponse, error) {
	st, err := s.svc.Stats()
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &StatsResponse{
		Seq:             st.Seq,
		Owner:           st.Owner,
		Accounts:        st.Accounts,
		Total:           codec.FormatAmount(st.Total),
		NormalizedTotal: codec.FormatAmount(st.NormalizedTotal),
		Limit:           codec.FormatAmount(st.Limit),
		Headroom:        codec.FormatAmount(st.Headroom),
	}
	if len(st.Unallocated) > 0 {
		resp.Unallocated = make(map[string]string, len(st.Unallocated))
		for id, amt := range st.Unallocated {
			resp.Unallocated[string(id)] = amt.Dec()
		}
	}
	return resp, nil
}

// -------------------- converters --------------------

func toReceipt(r *service.Receipt) *ReceiptResponse {
	return &ReceiptResponse{
		Seq:      r.Seq,
		Account:  r.Account,
		Asset:    string(r.Asset),
		AmountIn: codec.FormatAmount(r.AmountIn),
		Credited: codec.FormatAmount(r.Credited),
		Balance:  codec.FormatAmount(r.Balance),
		Total:    codec.FormatAmount(r.Total),
	}
}

// toStatus maps vault errors onto gRPC codes. The message keeps the full
// error chain.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, ledger.ErrUnauthorized):
		code = codes.PermissionDenied
	case errors.Is(err, ledger.ErrCapacityExceeded):
		code = codes.ResourceExhausted
	case errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrLimitBelowTotal),
		errors.Is(err, ledger.ErrUnknownPrecision):
		code = codes.FailedPrecondition
	case errors.Is(err, ledger.ErrOverflow):
		code = codes.OutOfRange
	case errors.Is(err, ledger.ErrReentrancyDetected):
		code = codes.Unavailable
	case errors.Is(err, exchange.ErrSwapFailed):
		code = codes.Aborted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// UnaryLogger logs every call with its outcome and latency.
func UnaryLogger(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		method := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
		log.Debug("grpc call",
			zap.String("method", method),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("took", time.Since(start)),
		)
		return resp, err
	}
}

// -------------------- service descriptor --------------------

func unary[Req any, Resp any](name string, call func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := methodPrefix + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(*Server), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(*Server), ctx, req.(*Req))
			})
		},
	}
}

type vaultServer interface {
	Deposit(context.Context, *DepositRequest) (*ReceiptResponse, error)
	DepositAsset(context.Context, *DepositAssetRequest) (*ReceiptResponse, error)
	Withdraw(context.Context, *WithdrawRequest) (*ReceiptResponse, error)
	BalanceOf(context.Context, *BalanceOfRequest) (*BalanceOfResponse, error)
	Stats(context.Context, *StatsRequest) (*StatsResponse, error)
	SetCapacityLimit(context.Context, *SetCapacityLimitRequest) (*Empty, error)
	TransferOwnership(context.Context, *TransferOwnershipRequest) (*Empty, error)
	SetAsset(context.Context, *SetAssetRequest) (*Empty, error)
	SweepUnallocated(context.Context, *SweepUnallocatedRequest) (*SweepUnallocatedResponse, error)
}

var _ vaultServer = (*Server)(nil)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*vaultServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Deposit", (*Server).Deposit),
		unary("DepositAsset", (*Server).DepositAsset),
		unary("Withdraw", (*Server).Withdraw),
		unary("BalanceOf", (*Server).BalanceOf),
		unary("Stats", (*Server).Stats),
		unary("SetCapacityLimit", (*Server).SetCapacityLimit),
		unary("TransferOwnership", (*Server).TransferOwnership),
		unary("SetAsset", (*Server).SetAsset),
		unary("SweepUnallocated", (*Server).SweepUnallocated),
	},
	Metadata: "custody/v1",
}
