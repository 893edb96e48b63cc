package service

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"custody/domain/asset"
	entrywal "custody/infra/wal/entry"
)

const eventVersion = 1

// EventType names a ledger event on the outbound topic.
type EventType string

const (
	EventDepositCredited    EventType = "deposit.credited"
	EventWithdrawalSent     EventType = "withdrawal.sent"
	EventWithdrawalReverted EventType = "withdrawal.reverted"
	EventUnallocated        EventType = "custody.unallocated"
	EventSwept              EventType = "custody.swept"
	EventCapacityChanged    EventType = "capacity.changed"
	EventOwnership          EventType = "ownership.transferred"
	EventAssetUpdated       EventType = "asset.updated"
)

// eventNamespace seeds deterministic event IDs: a re-published outbox entry
// keeps its ID, so consumers can deduplicate.
var eventNamespace = uuid.MustParse("6f1c7a2e-3d4b-5e8f-9a0b-1c2d3e4f5a6b")

// Event is the JSON document published for every committed mutation.
type Event struct {
	Version  int       `json:"v"`
	ID       string    `json:"id"`
	Type     EventType `json:"type"`
	Seq      uint64    `json:"seq"`
	Account  string    `json:"account,omitempty"`
	Asset    string    `json:"asset,omitempty"`
	Amount   string    `json:"amount,omitempty"`
	Credited string    `json:"credited,omitempty"`
	Balance  string    `json:"balance,omitempty"`
	Total    string    `json:"total,omitempty"`
	Time     time.Time `json:"time"`
}

func newEvent(t EventType, seq uint64, at time.Time) *Event {
	return &Event{
		Version: eventVersion,
		ID:      uuid.NewSHA1(eventNamespace, []byte(string(t)+"/"+strconv.FormatUint(seq, 10))).String(),
		Type:    t,
		Seq:     seq,
		Time:    at.UTC(),
	}
}

// Key partitions the topic by account so one account's events stay ordered.
func (e *Event) Key() []byte {
	if e.Account != "" {
		return []byte(e.Account)
	}
	return []byte(e.Type)
}

func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func amountString(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}

func accountString(a asset.Address) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

// eventTypeFor maps a journal record to the event it announces. A debit's
// event is only published once the outbound transfer settled.
func eventTypeFor(t entrywal.RecordType) EventType {
	switch t {
	case entrywal.RecordCredit:
		return EventDepositCredited
	case entrywal.RecordDebit:
		return EventWithdrawalSent
	case entrywal.RecordRevert:
		return EventWithdrawalReverted
	case entrywal.RecordUnallocated:
		return EventUnallocated
	case entrywal.RecordSweep:
		return EventSwept
	case entrywal.RecordCapacity:
		return EventCapacityChanged
	case entrywal.RecordOwner:
		return EventOwnership
	case entrywal.RecordAsset:
		return EventAssetUpdated
	}
	return EventType("unknown." + t.String())
}
