package types

import (
	"github.com/thunder-project/thunder/internal/canon"
	"github.com/thunder-project/thunder/internal/hash"
)

// ContentKind discriminates the two ways an output's value can be spent on
// the mainchain.
type ContentKind byte

const (
	// ContentValue is a plain sidechain-only value output.
	ContentValue ContentKind = iota
	// ContentWithdrawal is an output destined for a mainchain address via
	// a withdrawal bundle.
	ContentWithdrawal
)

// Content is the tagged payload of an Output.
type Content struct {
	Kind ContentKind

	// Value (Kind == ContentValue)
	Value uint64

	// Withdrawal (Kind == ContentWithdrawal)
	WithdrawalValue uint64
	MainFee         uint64
	MainAddress     string
}

// GetValue returns the sidechain-side value carried by this content,
// regardless of which variant it is.
func (c Content) GetValue() uint64 {
	if c.Kind == ContentWithdrawal {
		return c.WithdrawalValue
	}
	return c.Value
}

// Output is a single transaction or coinbase output.
type Output struct {
	Address hash.Address
	Content Content
}

// GetValue returns the output's sidechain-side value.
func (o Output) GetValue() uint64 {
	return o.Content.GetValue()
}

// PointedOutput binds an OutPoint to the Output it names. Its canonical
// encoding, hashed with Blake3, is the utxo_hash that transaction inputs
// carry as their own membership witness.
type PointedOutput struct {
	OutPoint OutPoint
	Output   Output
}

// Hash computes the utxo_hash / NodeHash for this pointed output.
func (p PointedOutput) Hash() hash.NodeHash {
	e := canon.NewEncoder()
	p.Encode(e)
	return hash.Sum(e.Bytes())
}

// Encode appends the canonical encoding of o to e.
func (o Output) Encode(e *canon.Encoder) {
	e.Fixed(o.Address[:])
	e.Byte(byte(o.Content.Kind))
	switch o.Content.Kind {
	case ContentValue:
		e.Uint64(o.Content.Value)
	case ContentWithdrawal:
		e.Uint64(o.Content.WithdrawalValue)
		e.Uint64(o.Content.MainFee)
		e.VarBytes([]byte(o.Content.MainAddress))
	}
}

// DecodeOutput reads a canonically-encoded Output.
func DecodeOutput(d *canon.Decoder) (Output, error) {
	var o Output
	addr, err := d.Fixed(hash.AddressSize)
	if err != nil {
		return o, err
	}
	copy(o.Address[:], addr)

	kb, err := d.Byte()
	if err != nil {
		return o, err
	}
	o.Content.Kind = ContentKind(kb)

	switch o.Content.Kind {
	case ContentValue:
		v, err := d.Uint64()
		if err != nil {
			return o, err
		}
		o.Content.Value = v
	case ContentWithdrawal:
		v, err := d.Uint64()
		if err != nil {
			return o, err
		}
		o.Content.WithdrawalValue = v
		fee, err := d.Uint64()
		if err != nil {
			return o, err
		}
		o.Content.MainFee = fee
		addr, err := d.VarBytes()
		if err != nil {
			return o, err
		}
		o.Content.MainAddress = string(addr)
	}
	return o, nil
}

// Encode appends the canonical encoding of p to e.
func (p PointedOutput) Encode(e *canon.Encoder) {
	p.OutPoint.Encode(e)
	p.Output.Encode(e)
}
