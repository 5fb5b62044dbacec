package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunder-project/thunder/internal/hash"
)

func TestComputeMerkleRootDeterministic(t *testing.T) {
	body := Body{
		Coinbase: []Output{{Address: hash.SumAddress([]byte("miner")), Content: Content{Kind: ContentValue, Value: 50}}},
	}
	root1 := body.ComputeMerkleRoot()
	root2 := body.ComputeMerkleRoot()
	require.Equal(t, root1, root2)

	body.Coinbase[0].Content.Value = 51
	require.NotEqual(t, root1, body.ComputeMerkleRoot())
}

func TestFromAuthorizedFlattensAuthorizations(t *testing.T) {
	tx1 := sampleTransaction()
	tx2 := sampleTransaction()
	tx2.Inputs[0].OutPoint = Regular(hash.Sum([]byte("different parent")), 0)

	authTxs := []AuthorizedTransaction{
		{Transaction: tx1, Authorizations: []Authorization{{VerifyingKey: []byte("k1"), Signature: []byte("s1")}}},
		{Transaction: tx2, Authorizations: []Authorization{{VerifyingKey: []byte("k2"), Signature: []byte("s2")}}},
	}

	body := FromAuthorized(nil, authTxs)
	require.Len(t, body.Transactions, 2)
	require.Len(t, body.Authorizations, 2)
	require.Equal(t, []byte("k1"), body.Authorizations[0].VerifyingKey)
	require.Equal(t, []byte("k2"), body.Authorizations[1].VerifyingKey)
}
