package mainchain

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunder-project/thunder/internal/archive"
	"github.com/thunder-project/thunder/internal/hash"
)

type fakeValidator struct {
	headerInfos map[hash.Hash][]HeaderInfoEntry
	commitments map[hash.Hash][]Commitment
}

func (f *fakeValidator) GetChainTip(ctx context.Context) (hash.Hash, error) {
	return hash.Hash{}, nil
}

func (f *fakeValidator) GetChainInfo(ctx context.Context) (ChainInfo, error) {
	return ChainInfo{Network: "regtest"}, nil
}

func (f *fakeValidator) GetBlockHeaderInfos(ctx context.Context, tip hash.Hash, count uint32) ([]HeaderInfoEntry, error) {
	return f.headerInfos[tip], nil
}

func (f *fakeValidator) GetBMMHStarCommitments(ctx context.Context, tip hash.Hash, count uint32) ([]Commitment, error) {
	return f.commitments[tip], nil
}

func newTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAncestorHeadersBackfillsUntilZero(t *testing.T) {
	ar := newTestArchive(t)

	genesis := hash.Hash{1}
	mid := hash.Hash{2}
	tip := hash.Hash{3}

	fv := &fakeValidator{
		headerInfos: map[hash.Hash][]HeaderInfoEntry{
			tip: {
				{BlockHash: tip, PrevBlockHash: mid, Height: 2},
				{BlockHash: mid, PrevBlockHash: genesis, Height: 1},
			},
			genesis: {
				{BlockHash: genesis, PrevBlockHash: hash.Hash{}, Height: 0},
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task := NewTask(ctx, fv, ar)

	require.NoError(t, task.AncestorHeaders(ctx, tip))

	for _, h := range []hash.Hash{tip, mid, genesis} {
		require.True(t, ar.HasMainchainHeaderInfo(h))
	}

	info, found, err := ar.GetMainchainHeaderInfo(tip)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, mid, info.PrevBlockHash)
	require.Equal(t, uint32(2), info.Height)
}

func TestAncestorHeadersNoopWhenAlreadyKnown(t *testing.T) {
	ar := newTestArchive(t)
	bh := hash.Hash{9}
	require.NoError(t, ar.PutMainchainHeaderInfo(bh, archive.HeaderInfo{Height: 5}))

	fv := &fakeValidator{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task := NewTask(ctx, fv, ar)

	require.NoError(t, task.AncestorHeaders(ctx, bh))
}

func TestVerifyBmmFillsMissingCommitments(t *testing.T) {
	ar := newTestArchive(t)

	genesis := hash.Hash{1}
	mid := hash.Hash{2}
	tip := hash.Hash{3}

	require.NoError(t, ar.PutMainchainHeaderInfo(tip, archive.HeaderInfo{PrevBlockHash: mid, Height: 2}))
	require.NoError(t, ar.PutMainchainHeaderInfo(mid, archive.HeaderInfo{PrevBlockHash: genesis, Height: 1}))
	require.NoError(t, ar.PutBmmCommitment(genesis, []byte("genesis-commitment")))

	fv := &fakeValidator{
		commitments: map[hash.Hash][]Commitment{
			tip: {
				{BlockHash: mid, HStar: []byte("mid-commitment")},
				{BlockHash: tip, HStar: []byte("tip-commitment")},
			},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task := NewTask(ctx, fv, ar)

	require.NoError(t, task.VerifyBmm(ctx, tip))

	commitment, found, err := ar.GetBmmCommitment(tip)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("tip-commitment"), commitment)

	commitment, found, err = ar.GetBmmCommitment(mid)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("mid-commitment"), commitment)
}

func TestVerifyBmmReturnsBlockNotFoundOnShortTail(t *testing.T) {
	ar := newTestArchive(t)

	genesis := hash.Hash{1}
	tip := hash.Hash{2}
	require.NoError(t, ar.PutMainchainHeaderInfo(tip, archive.HeaderInfo{PrevBlockHash: genesis, Height: 1}))
	require.NoError(t, ar.PutBmmCommitment(genesis, []byte("genesis-commitment")))

	fv := &fakeValidator{
		commitments: map[hash.Hash][]Commitment{
			tip: {}, // validator returns nothing: short tail
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	task := NewTask(ctx, fv, ar)

	err := task.VerifyBmm(ctx, tip)
	require.Error(t, err)
	var notFound *ErrBlockNotFound
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, tip, notFound.Ancestor)
}

func TestHandleCloneReleaseCancelsOnLast(t *testing.T) {
	ar := newTestArchive(t)
	fv := &fakeValidator{}
	h1 := NewHandle(fv, ar)
	h2 := h1.Clone()

	h1.Release()
	require.NoError(t, h2.AncestorHeaders(context.Background(), hash.Hash{}))

	h2.Release()
}
