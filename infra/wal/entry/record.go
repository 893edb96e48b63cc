package entry

import "time"

// RecordType is the ledger mutation a record describes.
type RecordType uint8

const (
	RecordCredit RecordType = iota + 1
	RecordDebit
	// RecordRevert re-credits a debit whose outbound transfer failed.
	RecordRevert
	// RecordUnallocated parks an amount in custody without crediting anyone.
	RecordUnallocated
	RecordSweep
	RecordCapacity
	RecordOwner
	RecordAsset
)

func (t RecordType) String() string {
	switch t {
	case RecordCredit:
		return "credit"
	case RecordDebit:
		return "debit"
	case RecordRevert:
		return "revert"
	case RecordUnallocated:
		return "unallocated"
	case RecordSweep:
		return "sweep"
	case RecordCapacity:
		return "capacity"
	case RecordOwner:
		return "owner"
	case RecordAsset:
		return "asset"
	default:
		return "unknown"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
