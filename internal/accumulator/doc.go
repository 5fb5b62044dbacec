// Package accumulator implements the stateless UTXO commitment the sidechain
// uses in place of a full UTXO database scan: a content-addressed
// accumulator supporting proof generation, proof verification, batched
// insertion/deletion, and a deterministic root set.
//
// spec.md §4.2 deliberately keeps this surface narrow ("the core does not
// depend on the exact dynamic accumulator variant; only the four operations
// and determinism of roots() as a function of the applied-diff history are
// required"), so Accumulator is defined as an interface with one concrete
// implementation, Forest.
//
// TODO: the production analogue of this interface is
// github.com/mit-dci/utreexo's Pollard/Forest accumulator (see
// DESIGN.md for why this module vendors its own minimal implementation
// instead of importing that module directly). A production build should be
// able to swap Forest for an adapter over github.com/mit-dci/utreexo without
// any caller of this package noticing.
package accumulator

import "github.com/thunder-project/thunder/internal/hash"

// Accumulator is the stateless UTXO commitment interface every consumer in
// this module programs against.
type Accumulator interface {
	// Prove returns an inclusion proof for the given target leaves.
	Prove(targets []hash.NodeHash) (Proof, error)
	// Verify checks that proof attests to the membership of targets in
	// the accumulator's current state.
	Verify(proof Proof, targets []hash.NodeHash) bool
	// ApplyDiff inserts and removes leaves and returns the resulting
	// accumulator. It does not mutate the receiver.
	ApplyDiff(diff Diff) (Accumulator, error)
	// Roots returns the current set of root node hashes.
	Roots() []hash.NodeHash
}

// Proof is an opaque inclusion proof over the utxo_hash multiset.
type Proof struct {
	Targets []uint64
	Hashes  [][]byte
}

// Diff is a batch of leaf insertions and deletions to apply atomically.
type Diff struct {
	Insertions []hash.NodeHash
	Deletions  []hash.NodeHash
}

// IsEmpty reports whether the diff has no effect.
func (d Diff) IsEmpty() bool {
	return len(d.Insertions) == 0 && len(d.Deletions) == 0
}
