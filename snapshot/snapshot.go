package snapshot

import (
	"time"

	"custody/domain/asset"
)

const FileName = "snapshot.bin"

// State is everything the vault needs to resume. Amounts are decimal
// strings; gob drops zero-valued fields and *uint256.Int would decode as nil.
type State struct {
	Seq         uint64
	Created     time.Time
	Owner       asset.Address
	Limit       string
	Balances    []Balance
	Unallocated []Holding
	Assets      []asset.Descriptor
}

type Balance struct {
	Account asset.Address
	Amount  string
}

type Holding struct {
	Asset  asset.ID
	Amount string
}
