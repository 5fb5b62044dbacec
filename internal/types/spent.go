package types

import (
	"github.com/thunder-project/thunder/internal/canon"
	"github.com/thunder-project/thunder/internal/hash"
)

// Encode appends the canonical encoding of p to e.
func (p InPoint) Encode(e *canon.Encoder) {
	e.Byte(byte(p.Kind))
	e.Fixed(p.Txid[:])
	e.Uint32(p.Vin)
}

// DecodeInPoint reads a canonically-encoded InPoint.
func DecodeInPoint(d *canon.Decoder) (InPoint, error) {
	var p InPoint
	kb, err := d.Byte()
	if err != nil {
		return p, err
	}
	p.Kind = InPointKind(kb)
	txid, err := d.Fixed(hash.Size)
	if err != nil {
		return p, err
	}
	copy(p.Txid[:], txid)
	vin, err := d.Uint32()
	if err != nil {
		return p, err
	}
	p.Vin = vin
	return p, nil
}

// Encode appends the canonical encoding of s to e.
func (s SpentOutput) Encode(e *canon.Encoder) {
	s.Output.Encode(e)
	s.InPoint.Encode(e)
}

// DecodeSpentOutput reads a canonically-encoded SpentOutput.
func DecodeSpentOutput(d *canon.Decoder) (SpentOutput, error) {
	var s SpentOutput
	o, err := DecodeOutput(d)
	if err != nil {
		return s, err
	}
	s.Output = o
	ip, err := DecodeInPoint(d)
	if err != nil {
		return s, err
	}
	s.InPoint = ip
	return s, nil
}

// MarshalBinary renders the canonical encoding of o suitable for
// storage as a single KV value.
func (o Output) MarshalBinary() ([]byte, error) {
	e := canon.NewEncoder()
	o.Encode(e)
	return e.Bytes(), nil
}

// UnmarshalOutput is the inverse of Output.MarshalBinary.
func UnmarshalOutput(b []byte) (Output, error) {
	return DecodeOutput(canon.NewDecoder(b))
}

// MarshalBinary renders the canonical encoding of s suitable for
// storage as a single KV value.
func (s SpentOutput) MarshalBinary() ([]byte, error) {
	e := canon.NewEncoder()
	s.Encode(e)
	return e.Bytes(), nil
}

// UnmarshalSpentOutput is the inverse of SpentOutput.MarshalBinary.
func UnmarshalSpentOutput(b []byte) (SpentOutput, error) {
	return DecodeSpentOutput(canon.NewDecoder(b))
}
