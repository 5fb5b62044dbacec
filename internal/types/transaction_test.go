package types

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunder-project/thunder/internal/hash"
)

func sampleTransaction() Transaction {
	return Transaction{
		Inputs: []Input{
			{OutPoint: Regular(hash.Sum([]byte("parent txid")), 0), UtxoHash: hash.Sum([]byte("utxo"))},
		},
		Proof: UtreexoProof{Targets: []uint64{1}, Proof: [][]byte{[]byte("sibling")}},
		Outputs: []Output{
			{Address: hash.SumAddress([]byte("verifying key")), Content: Content{Kind: ContentValue, Value: 100}},
		},
	}
}

func TestTxidExcludesProofAndOrchardAuth(t *testing.T) {
	tx := sampleTransaction()
	before := tx.Txid()

	// Regenerating the utreexo proof must not change the id.
	tx.Proof = UtreexoProof{Targets: []uint64{99}, Proof: [][]byte{[]byte("different sibling")}}
	require.Equal(t, before, tx.Txid())

	// Attaching an orchard bundle whose auth-only fields change must not
	// change the id either, as long as the non-auth fields are equal.
	tx.OrchardBundle = &OrchardBundle{
		Proof:            []byte("zk proof bytes"),
		BindingSignature: []byte("binding sig bytes"),
		Anchor:           EmptyAnchor(),
	}
	withBundle := tx.Txid()

	tx.OrchardBundle.Proof = []byte("a completely different proof")
	tx.OrchardBundle.BindingSignature = []byte("a completely different sig")
	require.Equal(t, withBundle, tx.Txid())

	// But changing a non-auth field (the anchor) must change the id.
	tx.OrchardBundle.Anchor = hash.Sum([]byte("some other anchor"))
	require.NotEqual(t, withBundle, tx.Txid())
}

func TestCanonicalCommitsToProof(t *testing.T) {
	tx := sampleTransaction()
	before := tx.Canonical()

	tx.Proof = UtreexoProof{Targets: []uint64{2}, Proof: [][]byte{[]byte("other")}}
	require.NotEqual(t, before, tx.Canonical())
}

func TestFilledTransactionFee(t *testing.T) {
	ft := FilledTransaction{
		Transaction: Transaction{
			Outputs: []Output{{Content: Content{Kind: ContentValue, Value: 60}}},
		},
		SpentUtxos: []Output{{Content: Content{Kind: ContentValue, Value: 100}}},
	}
	fee, err := ft.Fee()
	require.NoError(t, err)
	require.EqualValues(t, 40, fee)

	ft.Transaction.Outputs[0].Content.Value = 1000
	_, err = ft.Fee()
	require.ErrorIs(t, err, ErrNotEnoughValueIn)
}

func TestAuthorizedTransactionMarshalRoundTrip(t *testing.T) {
	tx := sampleTransaction()
	at := AuthorizedTransaction{
		Transaction:    tx,
		Authorizations: []Authorization{{VerifyingKey: []byte("vk"), Signature: []byte("sig")}},
	}

	raw, err := at.MarshalBinary()
	require.NoError(t, err)

	roundTripped, err := UnmarshalAuthorizedTransaction(raw)
	require.NoError(t, err)
	require.Equal(t, at.Transaction.Txid(), roundTripped.Transaction.Txid())
	require.Equal(t, at.Authorizations, roundTripped.Authorizations)
}

func TestFilledTransactionValueWithOrchardBalance(t *testing.T) {
	ft := FilledTransaction{
		Transaction: Transaction{
			OrchardBundle: &OrchardBundle{ValueBalance: 50},
		},
	}
	require.EqualValues(t, 50, ft.ValueIn())
	require.EqualValues(t, 0, ft.ValueOut())

	ft.Transaction.OrchardBundle.ValueBalance = -50
	require.EqualValues(t, 0, ft.ValueIn())
	require.EqualValues(t, 50, ft.ValueOut())
}
