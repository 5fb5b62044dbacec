package accumulator

import (
	"github.com/go-errors/errors"

	"github.com/thunder-project/thunder/internal/hash"
)

// ErrLeafNotFound is returned by Prove and ApplyDiff when a requested leaf
// is not present in the accumulator.
var ErrLeafNotFound = errors.New("accumulator: leaf not found")

// Forest is a deterministic Merkle-mountain-range-style accumulator: leaves
// are kept in insertion order and bagged into a forest of perfect binary
// trees whose sizes are the set bits of the leaf count. Its roots() is a
// pure function of the leaf multiset and the order diffs were applied in,
// matching spec.md §4.2's only real requirement.
type Forest struct {
	leaves []hash.NodeHash
}

// NewForest returns an empty accumulator.
func NewForest() *Forest {
	return &Forest{}
}

var _ Accumulator = (*Forest)(nil)

// peakSizes returns the sizes of the perfect binary trees bagging n leaves,
// largest first — the set bits of n from most to least significant.
func peakSizes(n int) []int {
	var sizes []int
	for bit := 63; bit >= 0; bit-- {
		size := 1 << uint(bit)
		if n&size != 0 {
			sizes = append(sizes, size)
		}
	}
	return sizes
}

// peakOffsets returns, for each peak in peakSizes(n), the index of its
// first leaf.
func peakOffsets(sizes []int) []int {
	offsets := make([]int, len(sizes))
	offset := 0
	for i, s := range sizes {
		offsets[i] = offset
		offset += s
	}
	return offsets
}

func hashNode(left, right hash.NodeHash) hash.NodeHash {
	var buf [2 * hash.Size]byte
	copy(buf[:hash.Size], left[:])
	copy(buf[hash.Size:], right[:])
	return hash.Sum(buf[:])
}

// perfectRoot computes the Merkle root of a power-of-two-sized leaf slice.
func perfectRoot(leaves []hash.NodeHash) hash.NodeHash {
	if len(leaves) == 1 {
		return leaves[0]
	}
	mid := len(leaves) / 2
	return hashNode(perfectRoot(leaves[:mid]), perfectRoot(leaves[mid:]))
}

// perfectProof returns the bottom-up sibling path for the leaf at localIndex
// within a power-of-two-sized leaf slice.
func perfectProof(leaves []hash.NodeHash, localIndex int) []hash.NodeHash {
	if len(leaves) == 1 {
		return nil
	}
	mid := len(leaves) / 2
	if localIndex < mid {
		sibling := perfectRoot(leaves[mid:])
		return append(perfectProof(leaves[:mid], localIndex), sibling)
	}
	sibling := perfectRoot(leaves[:mid])
	return append(perfectProof(leaves[mid:], localIndex-mid), sibling)
}

// Roots returns the current peak roots, largest tree first.
func (f *Forest) Roots() []hash.NodeHash {
	sizes := peakSizes(len(f.leaves))
	offsets := peakOffsets(sizes)
	roots := make([]hash.NodeHash, len(sizes))
	for i, size := range sizes {
		roots[i] = perfectRoot(f.leaves[offsets[i] : offsets[i]+size])
	}
	return roots
}

// locate finds the leaf matching h and returns its global position.
func (f *Forest) locate(h hash.NodeHash) (int, bool) {
	for i, l := range f.leaves {
		if l == h {
			return i, true
		}
	}
	return 0, false
}

// peakFor returns the index into peakSizes(n) containing global position
// pos, together with pos's index local to that peak.
func peakFor(sizes, offsets []int, pos int) (peakIndex, localIndex int) {
	for i, size := range sizes {
		if pos >= offsets[i] && pos < offsets[i]+size {
			return i, pos - offsets[i]
		}
	}
	return -1, -1
}

// Prove returns an inclusion proof for targets against the forest's current
// state. It fails if any target is not currently a leaf.
func (f *Forest) Prove(targets []hash.NodeHash) (Proof, error) {
	sizes := peakSizes(len(f.leaves))
	offsets := peakOffsets(sizes)

	proof := Proof{
		Targets: make([]uint64, len(targets)),
		Hashes:  make([][]byte, len(targets)),
	}
	for i, target := range targets {
		pos, ok := f.locate(target)
		if !ok {
			return Proof{}, ErrLeafNotFound
		}
		peakIdx, localIdx := peakFor(sizes, offsets, pos)
		siblings := perfectProof(f.leaves[offsets[peakIdx]:offsets[peakIdx]+sizes[peakIdx]], localIdx)

		proof.Targets[i] = uint64(pos)
		buf := make([]byte, 0, len(siblings)*hash.Size)
		for _, s := range siblings {
			buf = append(buf, s[:]...)
		}
		proof.Hashes[i] = buf
	}
	return proof, nil
}

// Verify checks that proof attests to the membership of targets in the
// forest's current state: for each target, it folds the target's sibling
// path up to its peak and compares the result against the matching current
// root. Any tampering with the proof bytes, or a proof produced against a
// since-changed accumulator state, causes verification to fail.
func (f *Forest) Verify(proof Proof, targets []hash.NodeHash) bool {
	if len(proof.Targets) != len(targets) || len(proof.Hashes) != len(targets) {
		return false
	}

	sizes := peakSizes(len(f.leaves))
	offsets := peakOffsets(sizes)
	roots := f.Roots()

	for i, target := range targets {
		pos := int(proof.Targets[i])
		peakIdx, localIdx := peakFor(sizes, offsets, pos)
		if peakIdx < 0 {
			return false
		}

		siblingBytes := proof.Hashes[i]
		if len(siblingBytes)%hash.Size != 0 {
			return false
		}
		numSiblings := len(siblingBytes) / hash.Size

		// The number of levels from a leaf to its peak root is
		// log2(peak size); a mismatched level count means a tampered
		// or stale proof.
		if expected := log2(sizes[peakIdx]); expected != numSiblings {
			return false
		}

		current := target
		for level := 0; level < numSiblings; level++ {
			var sibling hash.NodeHash
			copy(sibling[:], siblingBytes[level*hash.Size:(level+1)*hash.Size])
			if (localIdx>>uint(level))&1 == 0 {
				current = hashNode(current, sibling)
			} else {
				current = hashNode(sibling, current)
			}
		}

		if current != roots[peakIdx] {
			return false
		}
	}
	return true
}

func log2(n int) int {
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// ApplyDiff removes diff.Deletions then appends diff.Insertions, returning a
// new Forest (the receiver is left unmodified). Deletions are located and
// removed before insertions so a newly-inserted leaf cannot shadow a
// deletion target.
func (f *Forest) ApplyDiff(diff Diff) (Accumulator, error) {
	next := append([]hash.NodeHash(nil), f.leaves...)

	for _, del := range diff.Deletions {
		idx := -1
		for i, l := range next {
			if l == del {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, ErrLeafNotFound
		}
		next = append(next[:idx], next[idx+1:]...)
	}

	next = append(next, diff.Insertions...)
	return &Forest{leaves: next}, nil
}

// Leaves exposes the current leaf multiset in insertion order, used by
// tests and by callers building a fresh accumulator from a snapshot.
func (f *Forest) Leaves() []hash.NodeHash {
	return append([]hash.NodeHash(nil), f.leaves...)
}

// FromLeaves rebuilds a Forest from a previously-captured leaf list, used
// when restoring an archived accumulator snapshot on disconnect.
func FromLeaves(leaves []hash.NodeHash) *Forest {
	return &Forest{leaves: append([]hash.NodeHash(nil), leaves...)}
}
