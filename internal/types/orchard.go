package types

import (
	"github.com/thunder-project/thunder/internal/canon"
	"github.com/thunder-project/thunder/internal/hash"
)

// OrchardFlags records which half of a shielded bundle is active. A bundle
// with SpendsEnabled false may still carry outputs (shielding value in) and
// vice versa.
type OrchardFlags struct {
	SpendsEnabled  bool
	OutputsEnabled bool
}

// OrchardBundle is an opaque shielded-transfer component. Its proof system
// is out of scope for this module (spec Non-goal): we carry exactly the
// fields a caller-supplied OrchardVerifier needs to check membership,
// balance, and non-reuse, and nothing about how the zk proof itself works.
type OrchardBundle struct {
	Proof                    []byte
	BindingValidatingKey     []byte
	BindingSignature         []byte
	Nullifiers               []hash.Nullifier
	ExtractedNoteCommitments []hash.Hash
	ValueBalance             int64
	Anchor                   hash.Anchor
	Flags                    OrchardFlags
}

// EmptyAnchor is the anchor of an empty note-commitment tree, the only
// anchor a spends-disabled bundle may cite.
func EmptyAnchor() hash.Anchor {
	return hash.Hash{}
}

// WithoutAuth strips the fields that authorization (the binding signature
// and the proof itself) covers, leaving only what a Txid computation must
// commit to. This keeps a transaction's id stable when its orchard
// authorization changes; the utreexo proof, which the mempool regenerates
// on every tip change, is left out of the id by Transaction.Txid itself.
func (b *OrchardBundle) WithoutAuth() *OrchardBundle {
	if b == nil {
		return nil
	}
	stripped := *b
	stripped.Proof = nil
	stripped.BindingSignature = nil
	return &stripped
}

// Encode appends the canonical encoding of b to e. A nil bundle encodes as
// a single absent marker.
func (b *OrchardBundle) Encode(e *canon.Encoder) {
	e.Optional(b != nil, func(e *canon.Encoder) {
		e.VarBytes(b.Proof)
		e.VarBytes(b.BindingValidatingKey)
		e.VarBytes(b.BindingSignature)
		e.Len(len(b.Nullifiers))
		for _, n := range b.Nullifiers {
			e.Fixed(n[:])
		}
		e.Len(len(b.ExtractedNoteCommitments))
		for _, c := range b.ExtractedNoteCommitments {
			e.Fixed(c[:])
		}
		e.Int64(b.ValueBalance)
		e.Fixed(b.Anchor[:])
		e.Bool(b.Flags.SpendsEnabled)
		e.Bool(b.Flags.OutputsEnabled)
	})
}

// DecodeOrchardBundle reads a canonically-encoded optional OrchardBundle.
func DecodeOrchardBundle(d *canon.Decoder) (*OrchardBundle, error) {
	present, err := d.Bool()
	if err != nil || !present {
		return nil, err
	}
	b := &OrchardBundle{}
	if b.Proof, err = d.VarBytes(); err != nil {
		return nil, err
	}
	if b.BindingValidatingKey, err = d.VarBytes(); err != nil {
		return nil, err
	}
	if b.BindingSignature, err = d.VarBytes(); err != nil {
		return nil, err
	}
	n, err := d.Len()
	if err != nil {
		return nil, err
	}
	b.Nullifiers = make([]hash.Nullifier, n)
	for i := range b.Nullifiers {
		raw, err := d.Fixed(hash.Size)
		if err != nil {
			return nil, err
		}
		copy(b.Nullifiers[i][:], raw)
	}
	n, err = d.Len()
	if err != nil {
		return nil, err
	}
	b.ExtractedNoteCommitments = make([]hash.Hash, n)
	for i := range b.ExtractedNoteCommitments {
		raw, err := d.Fixed(hash.Size)
		if err != nil {
			return nil, err
		}
		copy(b.ExtractedNoteCommitments[i][:], raw)
	}
	if b.ValueBalance, err = d.Int64(); err != nil {
		return nil, err
	}
	anchor, err := d.Fixed(hash.Size)
	if err != nil {
		return nil, err
	}
	copy(b.Anchor[:], anchor)
	if b.Flags.SpendsEnabled, err = d.Bool(); err != nil {
		return nil, err
	}
	if b.Flags.OutputsEnabled, err = d.Bool(); err != nil {
		return nil, err
	}
	return b, nil
}
