package service

import (
	"fmt"

	"github.com/holiman/uint256"
	"google.golang.org/protobuf/encoding/protowire"

	"custody/domain/asset"
)

// mutation is the payload of one journal record. Which fields are set
// depends on the record type; see commit.
type mutation struct {
	Account  asset.Address
	Asset    asset.ID
	Amount   *uint256.Int
	Credited *uint256.Int

	// asset updates
	Decimals      uint8
	DecimalsKnown bool
	Route         asset.RouteHint
}

// protobuf field numbers of the journal payload
const (
	fieldAccount protowire.Number = iota + 1
	fieldAsset
	fieldAmount
	fieldCredited
	fieldDecimals
	fieldDecimalsKnown
	fieldRoute
)

func (m *mutation) descriptor() asset.Descriptor {
	return asset.Descriptor{
		ID:            m.Asset,
		Decimals:      m.Decimals,
		DecimalsKnown: m.DecimalsKnown,
		Route:         m.Route,
	}
}

func encodeMutation(m *mutation) []byte {
	var b []byte
	if !m.Account.IsZero() {
		b = protowire.AppendTag(b, fieldAccount, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Account[:])
	}
	if m.Asset != "" {
		b = protowire.AppendTag(b, fieldAsset, protowire.BytesType)
		b = protowire.AppendString(b, string(m.Asset))
	}
	if m.Amount != nil {
		b = protowire.AppendTag(b, fieldAmount, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Amount.Bytes())
	}
	if m.Credited != nil {
		b = protowire.AppendTag(b, fieldCredited, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Credited.Bytes())
	}
	if m.Decimals != 0 {
		b = protowire.AppendTag(b, fieldDecimals, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Decimals))
	}
	if m.DecimalsKnown {
		b = protowire.AppendTag(b, fieldDecimalsKnown, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if m.Route != asset.RouteAuto {
		b = protowire.AppendTag(b, fieldRoute, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Route))
	}
	return b
}

func decodeMutation(b []byte) (*mutation, error) {
	m := &mutation{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("journal payload: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num <= fieldCredited:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("journal payload field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := m.setBytes(num, v); err != nil {
				return nil, err
			}

		case typ == protowire.VarintType && num >= fieldDecimals && num <= fieldRoute:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("journal payload field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldDecimals:
				m.Decimals = uint8(v)
			case fieldDecimalsKnown:
				m.DecimalsKnown = protowire.DecodeBool(v)
			case fieldRoute:
				m.Route = asset.RouteHint(v)
			}

		default:
			// unknown field from a newer writer
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("journal payload field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return m, nil
}

func (m *mutation) setBytes(num protowire.Number, v []byte) error {
	switch num {
	case fieldAccount:
		a, err := asset.AddressFromBytes(v)
		if err != nil {
			return err
		}
		m.Account = a
	case fieldAsset:
		m.Asset = asset.ID(v)
	case fieldAmount, fieldCredited:
		if len(v) > 32 {
			return fmt.Errorf("journal payload field %d: %d-byte amount", num, len(v))
		}
		amt := new(uint256.Int).SetBytes(v)
		if num == fieldAmount {
			m.Amount = amt
		} else {
			m.Credited = amt
		}
	}
	return nil
}
