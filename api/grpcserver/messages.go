package grpcserver

import "custody/domain/asset"

const (
	ServiceName = "custody.v1.Vault"

	methodPrefix            = "/" + ServiceName + "/"
	DepositMethod           = methodPrefix + "Deposit"
	DepositAssetMethod      = methodPrefix + "DepositAsset"
	WithdrawMethod          = methodPrefix + "Withdraw"
	BalanceOfMethod         = methodPrefix + "BalanceOf"
	StatsMethod             = methodPrefix + "Stats"
	SetCapacityLimitMethod  = methodPrefix + "SetCapacityLimit"
	TransferOwnershipMethod = methodPrefix + "TransferOwnership"
	SetAssetMethod          = methodPrefix + "SetAsset"
	SweepUnallocatedMethod  = methodPrefix + "SweepUnallocated"
)

// -------------------- Commands --------------------

type DepositRequest struct {
	Account asset.Address `json:"account"`
	Amount  string        `json:"amount"`
}

type DepositAssetRequest struct {
	Account asset.Address `json:"account"`
	Asset   string        `json:"asset"`
	Amount  string        `json:"amount"`
}

type WithdrawRequest struct {
	Account asset.Address `json:"account"`
	Amount  string        `json:"amount"`
}

type ReceiptResponse struct {
	Seq      uint64        `json:"seq"`
	Account  asset.Address `json:"account"`
	Asset    string        `json:"asset"`
	AmountIn string        `json:"amount_in"`
	Credited string        `json:"credited"`
	Balance  string        `json:"balance"`
	Total    string        `json:"total"`
}

type SetCapacityLimitRequest struct {
	Caller asset.Address `json:"caller"`
	Limit  string        `json:"limit"`
}

type TransferOwnershipRequest struct {
	Caller   asset.Address `json:"caller"`
	NewOwner asset.Address `json:"new_owner"`
}

// SetAssetRequest leaves precision unknown when Decimals is absent.
type SetAssetRequest struct {
	Caller   asset.Address `json:"caller"`
	Asset    string        `json:"asset"`
	Decimals *uint8        `json:"decimals,omitempty"`
	Route    string        `json:"route"`
}

type SweepUnallocatedRequest struct {
	Caller asset.Address `json:"caller"`
	Asset  string        `json:"asset"`
	To     asset.Address `json:"to"`
}

type SweepUnallocatedResponse struct {
	Amount string `json:"amount"`
}

type Empty struct{}

// -------------------- Queries --------------------

type BalanceOfRequest struct {
	Account asset.Address `json:"account"`
}

type BalanceOfResponse struct {
	Account asset.Address `json:"account"`
	Balance string        `json:"balance"`
}

type StatsRequest struct{}

type StatsResponse struct {
	Seq             uint64            `json:"seq"`
	Owner           asset.Address     `json:"owner"`
	Accounts        int               `json:"accounts"`
	Total           string            `json:"total"`
	NormalizedTotal string            `json:"normalized_total"`
	Limit           string            `json:"limit"`
	Headroom        string            `json:"headroom"`
	Unallocated     map[string]string `json:"unallocated,omitempty"`
}
