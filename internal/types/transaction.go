package types

import (
	"github.com/thunder-project/thunder/internal/canon"
	"github.com/thunder-project/thunder/internal/hash"
)

// Input pairs a spent outpoint with the content-addressed hash of the
// output it names, so a transaction carries its own utreexo membership
// witness without the validator looking the UTXO up first.
type Input struct {
	OutPoint OutPoint
	UtxoHash hash.NodeHash
}

// UtreexoProof is an opaque inclusion proof over the utxo_hash multiset,
// produced and verified by an internal/accumulator.Accumulator.
type UtreexoProof struct {
	Targets []uint64
	Proof   [][]byte
}

// Transaction is the signable, proof-bearing unit of value transfer.
type Transaction struct {
	Inputs        []Input
	Proof         UtreexoProof
	Outputs       []Output
	OrchardBundle *OrchardBundle
}

// Txid is Blake3 over the canonical bytes of (inputs, outputs,
// orchard_bundle_without_auth). The utreexo proof and any orchard
// signatures are excluded so the id is stable under (re-)authorization.
func (t Transaction) Txid() hash.Txid {
	e := canon.NewEncoder()
	e.Len(len(t.Inputs))
	for _, in := range t.Inputs {
		in.OutPoint.Encode(e)
		e.Fixed(in.UtxoHash[:])
	}
	e.Len(len(t.Outputs))
	for _, o := range t.Outputs {
		o.Encode(e)
	}
	t.OrchardBundle.WithoutAuth().Encode(e)
	return hash.Sum(e.Bytes())
}

// Canonical returns the field-complete encoding of t, including the
// utreexo proof, used as the message that per-input Ed25519 signatures
// commit to: a signature binds to the specific proof bytes in use.
func (t Transaction) Canonical() []byte {
	e := canon.NewEncoder()
	e.Len(len(t.Inputs))
	for _, in := range t.Inputs {
		in.OutPoint.Encode(e)
		e.Fixed(in.UtxoHash[:])
	}
	e.Len(len(t.Proof.Targets))
	for _, target := range t.Proof.Targets {
		e.Uint64(target)
	}
	e.Len(len(t.Proof.Proof))
	for _, p := range t.Proof.Proof {
		e.VarBytes(p)
	}
	e.Len(len(t.Outputs))
	for _, o := range t.Outputs {
		o.Encode(e)
	}
	t.OrchardBundle.Encode(e)
	return e.Bytes()
}

// DecodeTransaction reads a transaction in the same field order Canonical
// writes: inputs, proof, outputs, orchard bundle.
func DecodeTransaction(d *canon.Decoder) (Transaction, error) {
	var t Transaction

	n, err := d.Len()
	if err != nil {
		return t, err
	}
	t.Inputs = make([]Input, n)
	for i := range t.Inputs {
		op, err := DecodeOutPoint(d)
		if err != nil {
			return t, err
		}
		utxoHash, err := d.Fixed(hash.Size)
		if err != nil {
			return t, err
		}
		t.Inputs[i].OutPoint = op
		copy(t.Inputs[i].UtxoHash[:], utxoHash)
	}

	numTargets, err := d.Len()
	if err != nil {
		return t, err
	}
	t.Proof.Targets = make([]uint64, numTargets)
	for i := range t.Proof.Targets {
		v, err := d.Uint64()
		if err != nil {
			return t, err
		}
		t.Proof.Targets[i] = v
	}
	numProofs, err := d.Len()
	if err != nil {
		return t, err
	}
	t.Proof.Proof = make([][]byte, numProofs)
	for i := range t.Proof.Proof {
		p, err := d.VarBytes()
		if err != nil {
			return t, err
		}
		t.Proof.Proof[i] = append([]byte(nil), p...)
	}

	numOutputs, err := d.Len()
	if err != nil {
		return t, err
	}
	t.Outputs = make([]Output, numOutputs)
	for i := range t.Outputs {
		o, err := DecodeOutput(d)
		if err != nil {
			return t, err
		}
		t.Outputs[i] = o
	}

	bundle, err := DecodeOrchardBundle(d)
	if err != nil {
		return t, err
	}
	t.OrchardBundle = bundle

	return t, nil
}

// Encode appends the canonical (field-complete) encoding of a to e:
// the transaction, followed by its flattened authorizations.
func (a AuthorizedTransaction) Encode(e *canon.Encoder) {
	e.Fixed(a.Transaction.Canonical())
	e.Len(len(a.Authorizations))
	for _, auth := range a.Authorizations {
		e.VarBytes(auth.VerifyingKey)
		e.VarBytes(auth.Signature)
	}
}

// DecodeAuthorizedTransaction is the inverse of AuthorizedTransaction.Encode.
// Since the transaction's own encoding is not length-prefixed, this must be
// called against a decoder positioned at the exact start of the encoding
// (i.e. via a wrapping VarBytes field) rather than concatenated inline.
func DecodeAuthorizedTransaction(d *canon.Decoder) (AuthorizedTransaction, error) {
	var a AuthorizedTransaction
	tx, err := DecodeTransaction(d)
	if err != nil {
		return a, err
	}
	a.Transaction = tx

	n, err := d.Len()
	if err != nil {
		return a, err
	}
	a.Authorizations = make([]Authorization, n)
	for i := range a.Authorizations {
		vk, err := d.VarBytes()
		if err != nil {
			return a, err
		}
		sig, err := d.VarBytes()
		if err != nil {
			return a, err
		}
		a.Authorizations[i] = Authorization{VerifyingKey: append([]byte(nil), vk...), Signature: append([]byte(nil), sig...)}
	}
	return a, nil
}

// MarshalBinary renders a length-prefixed, self-delimited encoding suitable
// for storage as a single KV value (e.g. in the mempool's transactions
// bucket).
func (a AuthorizedTransaction) MarshalBinary() ([]byte, error) {
	inner := canon.NewEncoder()
	a.Encode(inner)
	outer := canon.NewEncoder()
	outer.VarBytes(inner.Bytes())
	return outer.Bytes(), nil
}

// UnmarshalAuthorizedTransaction is the inverse of MarshalBinary.
func UnmarshalAuthorizedTransaction(b []byte) (AuthorizedTransaction, error) {
	d := canon.NewDecoder(b)
	inner, err := d.VarBytes()
	if err != nil {
		return AuthorizedTransaction{}, err
	}
	return DecodeAuthorizedTransaction(canon.NewDecoder(inner))
}

// BatchSigops is the number of Ed25519 authorizations this transaction will
// carry once authorized: one per input.
func (t Transaction) BatchSigops() int {
	return len(t.Inputs)
}

// Authorization is a single input's signature, together with the verifying
// key the signer claims.
type Authorization struct {
	VerifyingKey []byte
	Signature    []byte
}

// AuthorizedTransaction is a Transaction plus one Authorization per input,
// in input order.
type AuthorizedTransaction struct {
	Transaction    Transaction
	Authorizations []Authorization
}

// Txid delegates to the wrapped transaction.
func (a AuthorizedTransaction) Txid() hash.Txid {
	return a.Transaction.Txid()
}

// InPointKind mirrors OutPointKind but for the consuming side of a UTXO's
// lifecycle.
type InPointKind byte

const (
	// InPointRegular records that a UTXO was spent as the vin-th input
	// of a regular transaction.
	InPointRegular InPointKind = iota
	// InPointWithdrawal records that a withdrawal-content UTXO was
	// consumed by inclusion in a withdrawal bundle, rather than by a
	// regular transaction input.
	InPointWithdrawal
)

// InPoint records which transaction input consumed a UTXO, for rollback.
type InPoint struct {
	Kind InPointKind
	Txid hash.Txid
	Vin  uint32
}

// SpentOutput is the stxos value: the original output plus the InPoint that
// consumed it.
type SpentOutput struct {
	Output  Output
	InPoint InPoint
}

// FilledTransaction is a Transaction with its spent UTXOs resolved, produced
// during block validation (spec.md §4.4 step 7).
type FilledTransaction struct {
	Transaction Transaction
	SpentUtxos  []Output
}

// Txid delegates to the wrapped transaction.
func (f FilledTransaction) Txid() hash.Txid {
	return f.Transaction.Txid()
}

// ValueIn is Σ spent_utxo.value + max(0, orchard.value_balance).
func (f FilledTransaction) ValueIn() uint64 {
	var total uint64
	for _, u := range f.SpentUtxos {
		total += u.GetValue()
	}
	if f.Transaction.OrchardBundle != nil && f.Transaction.OrchardBundle.ValueBalance > 0 {
		total += uint64(f.Transaction.OrchardBundle.ValueBalance)
	}
	return total
}

// ValueOut is Σ output.value + max(0, -orchard.value_balance).
func (f FilledTransaction) ValueOut() uint64 {
	var total uint64
	for _, o := range f.Transaction.Outputs {
		total += o.GetValue()
	}
	if f.Transaction.OrchardBundle != nil && f.Transaction.OrchardBundle.ValueBalance < 0 {
		total += uint64(-f.Transaction.OrchardBundle.ValueBalance)
	}
	return total
}

// Fee returns value_in - value_out, or an error if value_in < value_out
// (spec.md §4.4 per-transaction value rule).
func (f FilledTransaction) Fee() (uint64, error) {
	in, out := f.ValueIn(), f.ValueOut()
	if in < out {
		return 0, ErrNotEnoughValueIn
	}
	return in - out, nil
}
