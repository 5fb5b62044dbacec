package types

import (
	"github.com/thunder-project/thunder/internal/canon"
	"github.com/thunder-project/thunder/internal/hash"
)

// Body is the non-header half of a block: the coinbase outputs, the
// transaction list, and the flattened per-input authorizations.
type Body struct {
	Coinbase       []Output
	Transactions   []Transaction
	Authorizations []Authorization
}

// ComputeMerkleRoot is Blake3 over the canonical bytes of
// (&coinbase, &transactions). This is a placeholder commitment, not a true
// Merkle tree — spec.md open question (a) chooses to preserve this exact
// behavior bit-for-bit for chain compatibility rather than replace it with
// a real tree, which would fork the chain.
func (b Body) ComputeMerkleRoot() hash.MerkleRoot {
	e := canon.NewEncoder()
	e.Len(len(b.Coinbase))
	for _, o := range b.Coinbase {
		o.Encode(e)
	}
	e.Len(len(b.Transactions))
	for _, t := range b.Transactions {
		e.Fixed(t.Canonical())
	}
	return hash.Sum(e.Bytes())
}

// SerializedSize returns the canonical encoding length of b, used against
// the dynamic body-size limit (spec.md §4.4.1).
func (b Body) SerializedSize() int {
	e := canon.NewEncoder()
	e.Len(len(b.Coinbase))
	for _, o := range b.Coinbase {
		o.Encode(e)
	}
	e.Len(len(b.Transactions))
	for _, t := range b.Transactions {
		bytes := t.Canonical()
		e.VarBytes(bytes)
	}
	e.Len(len(b.Authorizations))
	for _, a := range b.Authorizations {
		e.VarBytes(a.VerifyingKey)
		e.VarBytes(a.Signature)
	}
	return len(e.Bytes())
}

// Encode appends the field-complete canonical encoding of b to e,
// including authorizations — unlike ComputeMerkleRoot's placeholder
// commitment, this is the representation the archive persists.
func (b Body) Encode(e *canon.Encoder) {
	e.Len(len(b.Coinbase))
	for _, o := range b.Coinbase {
		o.Encode(e)
	}
	e.Len(len(b.Transactions))
	for _, t := range b.Transactions {
		e.VarBytes(t.Canonical())
	}
	e.Len(len(b.Authorizations))
	for _, a := range b.Authorizations {
		e.VarBytes(a.VerifyingKey)
		e.VarBytes(a.Signature)
	}
}

// DecodeBody reads a canonically-encoded Body.
func DecodeBody(d *canon.Decoder) (Body, error) {
	var b Body
	n, err := d.Len()
	if err != nil {
		return b, err
	}
	b.Coinbase = make([]Output, n)
	for i := range b.Coinbase {
		o, err := DecodeOutput(d)
		if err != nil {
			return b, err
		}
		b.Coinbase[i] = o
	}

	n, err = d.Len()
	if err != nil {
		return b, err
	}
	b.Transactions = make([]Transaction, n)
	for i := range b.Transactions {
		raw, err := d.VarBytes()
		if err != nil {
			return b, err
		}
		t, err := DecodeTransaction(canon.NewDecoder(raw))
		if err != nil {
			return b, err
		}
		b.Transactions[i] = t
	}

	n, err = d.Len()
	if err != nil {
		return b, err
	}
	b.Authorizations = make([]Authorization, n)
	for i := range b.Authorizations {
		vk, err := d.VarBytes()
		if err != nil {
			return b, err
		}
		sig, err := d.VarBytes()
		if err != nil {
			return b, err
		}
		b.Authorizations[i] = Authorization{VerifyingKey: append([]byte(nil), vk...), Signature: append([]byte(nil), sig...)}
	}
	return b, nil
}

// MarshalBinary renders the canonical encoding of b.
func (b Body) MarshalBinary() ([]byte, error) {
	e := canon.NewEncoder()
	b.Encode(e)
	return e.Bytes(), nil
}

// UnmarshalBody is the inverse of Body.MarshalBinary.
func UnmarshalBody(raw []byte) (Body, error) {
	return DecodeBody(canon.NewDecoder(raw))
}

// FromAuthorized builds a Body from its constituent authorized
// transactions, flattening each transaction's per-input authorizations in
// transaction order.
func FromAuthorized(coinbase []Output, authTxs []AuthorizedTransaction) Body {
	body := Body{Coinbase: coinbase}
	for _, at := range authTxs {
		body.Transactions = append(body.Transactions, at.Transaction)
		body.Authorizations = append(body.Authorizations, at.Authorizations...)
	}
	return body
}
