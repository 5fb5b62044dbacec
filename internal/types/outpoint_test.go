package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunder-project/thunder/internal/hash"
)

// TestOutPointKeyBijection exercises spec.md §8's quantified invariant that
// OutPoint <-> OutPointKey is a bijection, including at the u32::MAX vout
// boundary, for all three variants.
func TestOutPointKeyBijection(t *testing.T) {
	txid := hash.Sum([]byte("some txid"))
	merkleRoot := hash.Sum([]byte("some merkle root"))
	depositTxid := hash.Sum([]byte("some bitcoin txid"))

	cases := []OutPoint{
		Regular(txid, 0),
		Regular(txid, math.MaxUint32),
		Coinbase(merkleRoot, 0),
		Coinbase(merkleRoot, math.MaxUint32),
		DepositOutPoint(BitcoinOutPoint{Txid: depositTxid, Vout: 0}),
		DepositOutPoint(BitcoinOutPoint{Txid: depositTxid, Vout: math.MaxUint32}),
	}

	for _, op := range cases {
		key := op.Key()
		require.Len(t, key, OutPointKeySize)
		roundTripped := FromOutPointKey(key)
		require.Equal(t, op, roundTripped)
		require.Equal(t, key, roundTripped.Key())
	}
}

func TestOutPointKeyDistinctAcrossKinds(t *testing.T) {
	h := hash.Sum([]byte("shared hash value"))
	keys := map[OutPointKey]bool{
		Regular(h, 0).Key():  true,
		Coinbase(h, 0).Key(): true,
		DepositOutPoint(BitcoinOutPoint{Txid: h, Vout: 0}).Key(): true,
	}
	require.Len(t, keys, 3)
}
