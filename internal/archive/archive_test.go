package archive

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/types"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestPutGetBlockRoundTrip(t *testing.T) {
	a := newTestArchive(t)

	addr := hash.SumAddress([]byte("archive-test"))
	coinbase := types.Output{Address: addr, Content: types.Content{Kind: types.ContentValue, Value: 50}}
	body := types.Body{Coinbase: []types.Output{coinbase}}
	header := types.Header{MerkleRoot: body.ComputeMerkleRoot(), Roots: []hash.NodeHash{{1, 2, 3}}}
	blockHash := header.Hash()

	require.False(t, a.HasBlock(blockHash))
	require.NoError(t, a.PutBlock(header, body))
	require.True(t, a.HasBlock(blockHash))

	gotHeader, found, err := a.GetHeader(blockHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, header, gotHeader)

	gotBody, found, err := a.GetBody(blockHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, body, gotBody)
}

func TestAncestorHeadersWalksParentChain(t *testing.T) {
	a := newTestArchive(t)

	genesis := types.Header{MerkleRoot: hash.MerkleRoot{1}}
	genesisHash := genesis.Hash()
	require.NoError(t, a.PutBlock(genesis, types.Body{}))

	child := types.Header{PrevSideHash: &genesisHash, MerkleRoot: hash.MerkleRoot{2}}
	childHash := child.Hash()
	require.NoError(t, a.PutBlock(child, types.Body{}))

	grandchild := types.Header{PrevSideHash: &childHash, MerkleRoot: hash.MerkleRoot{3}}
	require.NoError(t, a.PutBlock(grandchild, types.Body{}))

	headers, err := a.AncestorHeaders(grandchild.Hash(), 10)
	require.NoError(t, err)
	require.Len(t, headers, 3)
	require.Equal(t, grandchild, headers[0])
	require.Equal(t, child, headers[1])
	require.Equal(t, genesis, headers[2])

	limited, err := a.AncestorHeaders(grandchild.Hash(), 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestAccumulatorAndFrontierCheckpointRoundTrip(t *testing.T) {
	a := newTestArchive(t)
	blockHash := hash.BlockHash{9}
	leaves := []hash.NodeHash{{1}, {2}, {3}}

	_, found, err := a.GetAccumulatorCheckpoint(blockHash)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, a.PutAccumulatorCheckpoint(blockHash, leaves))
	got, found, err := a.GetAccumulatorCheckpoint(blockHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, leaves, got)

	require.NoError(t, a.PutFrontierCheckpoint(blockHash, leaves))
	got, found, err = a.GetFrontierCheckpoint(blockHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, leaves, got)
}

func TestMainchainCaches(t *testing.T) {
	a := newTestArchive(t)
	mainHash := hash.Hash{7}

	require.False(t, a.HasMainchainHeaderInfo(mainHash))
	info := HeaderInfo{PrevBlockHash: hash.Hash{6}, Height: 100}
	require.NoError(t, a.PutMainchainHeaderInfo(mainHash, info))
	gotInfo, found, err := a.GetMainchainHeaderInfo(mainHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, info, gotInfo)

	require.False(t, a.HasBmmCommitment(mainHash))
	require.NoError(t, a.PutBmmCommitment(mainHash, []byte("hstar-commitment")))
	gotCommitment, found, err := a.GetBmmCommitment(mainHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("hstar-commitment"), gotCommitment)
}
