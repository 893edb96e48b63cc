package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"custody/api/codec"
)

// Client calls a remote vault.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial opens a plaintext connection that speaks the JSON codec.
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(codec.CallOption()),
	)
}

func (c *Client) Deposit(ctx context.Context, req *DepositRequest) (*ReceiptResponse, error) {
	out := new(ReceiptResponse)
	return out, c.invoke(ctx, DepositMethod, req, out)
}

func (c *Client) DepositAsset(ctx context.Context, req *DepositAssetRequest) (*ReceiptResponse, error) {
	out := new(ReceiptResponse)
	return out, c.invoke(ctx, DepositAssetMethod, req, out)
}

func (c *Client) Withdraw(ctx context.Context, req *WithdrawRequest) (*ReceiptResponse, error) {
	out := new(ReceiptResponse)
	return out, c.invoke(ctx, WithdrawMethod, req, out)
}

func (c *Client) BalanceOf(ctx context.Context, req *BalanceOfRequest) (*BalanceOfResponse, error) {
	out := new(BalanceOfResponse)
	return out, c.invoke(ctx, BalanceOfMethod, req, out)
}

func (c *Client) Stats(ctx context.Context) (*StatsResponse, error) {
	out := new(StatsResponse)
	return out, c.invoke(ctx, StatsMethod, &StatsRequest{}, out)
}

func (c *Client) SetCapacityLimit(ctx context.Context, req *SetCapacityLimitRequest) error {
	return c.invoke(ctx, SetCapacityLimitMethod, req, new(Empty))
}

func (c *Client) TransferOwnership(ctx context.Context, req *TransferOwnershipRequest) error {
	return c.invoke(ctx, TransferOwnershipMethod, req, new(Empty))
}

func (c *Client) SetAsset(ctx context.Context, req *SetAssetRequest) error {
	return c.invoke(ctx, SetAssetMethod, req, new(Empty))
}

func (c *Client) SweepUnallocated(ctx context.Context, req *SweepUnallocatedRequest) (*SweepUnallocatedResponse, error) {
	out := new(SweepUnallocatedResponse)
	return out, c.invoke(ctx, SweepUnallocatedMethod, req, out)
}

func (c *Client) invoke(ctx context.Context, method string, req, out any) error {
	return c.conn.Invoke(ctx, method, req, out, codec.CallOption())
}
