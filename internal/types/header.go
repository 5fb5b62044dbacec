package types

import (
	"github.com/thunder-project/thunder/internal/canon"
	"github.com/thunder-project/thunder/internal/hash"
)

// Header is a sidechain block header: the parent links (sidechain and
// mainchain), the body commitment, and the post-block utreexo roots.
type Header struct {
	// PrevSideHash is nil for genesis.
	PrevSideHash *hash.BlockHash
	PrevMainHash hash.Hash
	MerkleRoot   hash.MerkleRoot
	Roots        []hash.NodeHash
}

// Hash computes this header's BlockHash.
func (h Header) Hash() hash.BlockHash {
	e := canon.NewEncoder()
	h.Encode(e)
	return hash.Sum(e.Bytes())
}

// Encode appends the canonical encoding of h to e.
func (h Header) Encode(e *canon.Encoder) {
	e.Optional(h.PrevSideHash != nil, func(e *canon.Encoder) {
		e.Fixed(h.PrevSideHash[:])
	})
	e.Fixed(h.PrevMainHash[:])
	e.Fixed(h.MerkleRoot[:])
	e.Len(len(h.Roots))
	for _, r := range h.Roots {
		e.Fixed(r[:])
	}
}

// DecodeHeader reads a canonically-encoded Header.
func DecodeHeader(d *canon.Decoder) (Header, error) {
	var h Header
	present, err := d.Bool()
	if err != nil {
		return h, err
	}
	if present {
		raw, err := d.Fixed(hash.Size)
		if err != nil {
			return h, err
		}
		var prev hash.BlockHash
		copy(prev[:], raw)
		h.PrevSideHash = &prev
	}
	prevMain, err := d.Fixed(hash.Size)
	if err != nil {
		return h, err
	}
	copy(h.PrevMainHash[:], prevMain)
	merkleRoot, err := d.Fixed(hash.Size)
	if err != nil {
		return h, err
	}
	copy(h.MerkleRoot[:], merkleRoot)
	n, err := d.Len()
	if err != nil {
		return h, err
	}
	h.Roots = make([]hash.NodeHash, n)
	for i := range h.Roots {
		r, err := d.Fixed(hash.Size)
		if err != nil {
			return h, err
		}
		copy(h.Roots[i][:], r)
	}
	return h, nil
}

// MarshalBinary renders the canonical encoding of h.
func (h Header) MarshalBinary() ([]byte, error) {
	e := canon.NewEncoder()
	h.Encode(e)
	return e.Bytes(), nil
}

// UnmarshalHeader is the inverse of Header.MarshalBinary.
func UnmarshalHeader(b []byte) (Header, error) {
	return DecodeHeader(canon.NewDecoder(b))
}
