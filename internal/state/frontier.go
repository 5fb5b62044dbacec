package state

import (
	"github.com/go-errors/errors"

	"github.com/thunder-project/thunder/internal/hash"
)

// FrontierMaxDepth bounds the Orchard note-commitment tree: Frontier.Append
// fails once 2^FrontierMaxDepth leaves have been appended.
const FrontierMaxDepth = 32

// ErrAppendCommitment is returned by Frontier.Append when the tree's
// maximum depth has been exceeded.
var ErrAppendCommitment = errors.New("state: orchard commitment tree is full")

// Frontier is the incremental Merkle frontier over Orchard note
// commitments: just enough state to append new leaves and compute the
// current root. It is append-only on connect and restored wholesale from
// an archived checkpoint on disconnect, since subtracting leaves does not
// make sense for an incremental tree the way it does for a set-like
// accumulator.
type Frontier struct {
	depth  int
	leaves []hash.Hash
}

// NewFrontier returns an empty frontier of the given depth.
func NewFrontier(depth int) *Frontier {
	return &Frontier{depth: depth}
}

// Append adds a note commitment as the next leaf.
func (f *Frontier) Append(commitment hash.Hash) error {
	if len(f.leaves) >= 1<<uint(f.depth) {
		return ErrAppendCommitment
	}
	f.leaves = append(f.leaves, commitment)
	return nil
}

var emptyHashCache = map[int][]hash.Hash{}

func emptyHashes(depth int) []hash.Hash {
	if cached, ok := emptyHashCache[depth]; ok {
		return cached
	}
	empties := make([]hash.Hash, depth+1)
	empties[0] = hash.Hash{}
	for d := 1; d <= depth; d++ {
		empties[d] = combineHash(empties[d-1], empties[d-1])
	}
	emptyHashCache[depth] = empties
	return empties
}

func combineHash(left, right hash.Hash) hash.Hash {
	var buf [2 * hash.Size]byte
	copy(buf[:hash.Size], left[:])
	copy(buf[hash.Size:], right[:])
	return hash.Sum(buf[:])
}

// Root computes the current root: a fixed-depth binary tree padded with the
// canonical empty-subtree hash wherever a leaf is absent.
func (f *Frontier) Root() hash.Hash {
	empties := emptyHashes(f.depth)
	level := append([]hash.Hash(nil), f.leaves...)
	for d := 0; d < f.depth; d++ {
		var next []hash.Hash
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := empties[d]
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, combineHash(left, right))
		}
		if len(level) == 0 {
			next = []hash.Hash{empties[d+1]}
		}
		level = next
	}
	return level[0]
}

// Size returns the number of appended leaves.
func (f *Frontier) Size() int {
	return len(f.leaves)
}

// Leaves exposes the appended commitments in order, used to persist and
// restore checkpoints.
func (f *Frontier) Leaves() []hash.Hash {
	return append([]hash.Hash(nil), f.leaves...)
}

// FrontierFromLeaves rebuilds a Frontier from a previously-captured
// checkpoint.
func FrontierFromLeaves(depth int, leaves []hash.Hash) *Frontier {
	return &Frontier{depth: depth, leaves: append([]hash.Hash(nil), leaves...)}
}
