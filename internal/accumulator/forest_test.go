package accumulator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunder-project/thunder/internal/hash"
)

func leafHash(s string) hash.NodeHash {
	return hash.Sum([]byte(s))
}

func TestForestProveVerifyRoundTrip(t *testing.T) {
	f := NewForest()
	leaves := []hash.NodeHash{leafHash("a"), leafHash("b"), leafHash("c"), leafHash("d"), leafHash("e")}

	acc, err := f.ApplyDiff(Diff{Insertions: leaves})
	require.NoError(t, err)
	next := acc.(*Forest)

	proof, err := next.Prove([]hash.NodeHash{leaves[2]})
	require.NoError(t, err)
	require.True(t, next.Verify(proof, []hash.NodeHash{leaves[2]}))
}

func TestForestVerifyRejectsTamperedProof(t *testing.T) {
	f := NewForest()
	leaves := []hash.NodeHash{leafHash("a"), leafHash("b"), leafHash("c"), leafHash("d")}

	acc, err := f.ApplyDiff(Diff{Insertions: leaves})
	require.NoError(t, err)
	next := acc.(*Forest)

	proof, err := next.Prove([]hash.NodeHash{leaves[1]})
	require.NoError(t, err)

	tampered := proof
	tampered.Hashes = append([][]byte(nil), proof.Hashes...)
	tampered.Hashes[0] = append([]byte(nil), proof.Hashes[0]...)
	tampered.Hashes[0][0] ^= 0xFF

	require.False(t, next.Verify(tampered, []hash.NodeHash{leaves[1]}))
}

func TestForestVerifyRejectsStaleProofAfterMutation(t *testing.T) {
	f := NewForest()
	leaves := []hash.NodeHash{leafHash("a"), leafHash("b"), leafHash("c")}

	acc, err := f.ApplyDiff(Diff{Insertions: leaves})
	require.NoError(t, err)
	before := acc.(*Forest)

	proof, err := before.Prove([]hash.NodeHash{leaves[0]})
	require.NoError(t, err)

	acc2, err := before.ApplyDiff(Diff{Insertions: []hash.NodeHash{leafHash("d")}})
	require.NoError(t, err)
	after := acc2.(*Forest)

	require.False(t, after.Verify(proof, []hash.NodeHash{leaves[0]}))
}

func TestForestApplyDiffDeleteThenInsert(t *testing.T) {
	f := NewForest()
	leaves := []hash.NodeHash{leafHash("a"), leafHash("b"), leafHash("c")}
	acc, err := f.ApplyDiff(Diff{Insertions: leaves})
	require.NoError(t, err)
	step1 := acc.(*Forest)

	acc2, err := step1.ApplyDiff(Diff{Deletions: []hash.NodeHash{leaves[1]}, Insertions: []hash.NodeHash{leafHash("d")}})
	require.NoError(t, err)
	step2 := acc2.(*Forest)

	require.Equal(t, []hash.NodeHash{leaves[0], leaves[2], leafHash("d")}, step2.Leaves())
}

func TestForestApplyDiffMissingDeletionFails(t *testing.T) {
	f := NewForest()
	_, err := f.ApplyDiff(Diff{Deletions: []hash.NodeHash{leafHash("nonexistent")}})
	require.ErrorIs(t, err, ErrLeafNotFound)
}

func TestForestRootsDeterministic(t *testing.T) {
	leaves := []hash.NodeHash{leafHash("a"), leafHash("b"), leafHash("c"), leafHash("d"), leafHash("e")}
	f1 := FromLeaves(leaves)
	f2 := FromLeaves(leaves)
	require.Equal(t, f1.Roots(), f2.Roots())
}
