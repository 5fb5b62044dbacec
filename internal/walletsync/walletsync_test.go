package walletsync

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunder-project/thunder/internal/archive"
	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/state"
	"github.com/thunder-project/thunder/internal/types"
)

type noopOrchardVerifier struct{}

func (noopOrchardVerifier) VerifyProof(*types.OrchardBundle) bool              { return true }
func (noopOrchardVerifier) BindingVerify(*types.OrchardBundle, hash.Hash) bool { return true }

type fakeWallet struct {
	tip         *hash.BlockHash
	connects    []hash.BlockHash
	disconnects []hash.BlockHash
	addresses   map[hash.Address]struct{}
	utxos       map[types.OutPoint]types.Output
	spent       map[types.OutPoint]types.InPoint
}

func (w *fakeWallet) Tip() (*hash.BlockHash, error) { return w.tip, nil }

func (w *fakeWallet) ConnectOrchardBlock(header types.Header, body types.Body) error {
	h := header.Hash()
	w.connects = append(w.connects, h)
	w.tip = &h
	return nil
}

func (w *fakeWallet) DisconnectOrchardBlock(header types.Header, body types.Body) error {
	w.disconnects = append(w.disconnects, header.Hash())
	w.tip = header.PrevSideHash
	return nil
}

func (w *fakeWallet) Addresses() (map[hash.Address]struct{}, error) { return w.addresses, nil }

func (w *fakeWallet) Utxos() (map[types.OutPoint]types.Output, error) { return w.utxos, nil }

func (w *fakeWallet) PutUtxos(utxos map[types.OutPoint]types.Output) error {
	w.utxos = utxos
	return nil
}

func (w *fakeWallet) SpendUtxos(inpoints map[types.OutPoint]types.InPoint) error {
	w.spent = inpoints
	return nil
}

func newTestState(t *testing.T) *state.State {
	t.Helper()
	s, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestArchive(t *testing.T) *archive.Archive {
	t.Helper()
	a, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func connectGenesis(t *testing.T, s *state.State, ar *archive.Archive, value uint64, addr hash.Address) types.Header {
	t.Helper()
	coinbase := types.Output{Address: addr, Content: types.Content{Kind: types.ContentValue, Value: value}}
	body := types.Body{Coinbase: []types.Output{coinbase}}
	merkleRoot := body.ComputeMerkleRoot()
	leaf := types.PointedOutput{OutPoint: types.Coinbase(merkleRoot, 0), Output: coinbase}.Hash()
	header := types.Header{MerkleRoot: merkleRoot, Roots: []hash.NodeHash{leaf}}

	require.NoError(t, s.Update(func(tx *state.Tx) error {
		pb, err := s.Prevalidate(tx, header, body, noopOrchardVerifier{})
		require.NoError(t, err)
		_, err = s.ConnectPrevalidated(tx, pb)
		return err
	}))
	require.NoError(t, ar.PutBlock(header, body))
	return header
}

func TestSyncRollsForwardFromEmptyWallet(t *testing.T) {
	s := newTestState(t)
	ar := newTestArchive(t)
	addr := hash.SumAddress([]byte("wallet-address"))

	header := connectGenesis(t, s, ar, 100, addr)

	wallet := &fakeWallet{addresses: map[hash.Address]struct{}{addr: {}}}
	syncer := New(s, ar, wallet)

	require.NoError(t, syncer.Sync())

	require.Len(t, wallet.connects, 1)
	require.Equal(t, header.Hash(), wallet.connects[0])
	require.Len(t, wallet.disconnects, 0)

	snap := syncer.Snapshot()
	require.Len(t, snap, 1)
}

func TestSyncIsIdempotentWhenAlreadyCaughtUp(t *testing.T) {
	s := newTestState(t)
	ar := newTestArchive(t)
	addr := hash.SumAddress([]byte("wallet-address"))

	connectGenesis(t, s, ar, 100, addr)

	wallet := &fakeWallet{addresses: map[hash.Address]struct{}{addr: {}}}
	syncer := New(s, ar, wallet)

	require.NoError(t, syncer.Sync())
	require.NoError(t, syncer.Sync())

	require.Len(t, wallet.connects, 1)
	require.Len(t, wallet.disconnects, 0)
}
