package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/types"
)

type alwaysValidOrchard struct{}

func (alwaysValidOrchard) VerifyProof(*types.OrchardBundle) bool              { return true }
func (alwaysValidOrchard) BindingVerify(*types.OrchardBundle, hash.Hash) bool { return true }

type alwaysInvalidOrchard struct{}

func (alwaysInvalidOrchard) VerifyProof(*types.OrchardBundle) bool              { return false }
func (alwaysInvalidOrchard) BindingVerify(*types.OrchardBundle, hash.Hash) bool { return false }

func genKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func TestAuthorizeWrongKeyForAddress(t *testing.T) {
	pub, priv := genKeyPair(t)
	tx := types.Transaction{Inputs: []types.Input{{}}}

	_, err := Authorize([]KeyPair{{Address: hash.SumAddress(pub), SigningKey: priv}},
		[]hash.Address{hash.SumAddress([]byte("not the same key"))}, tx)
	require.ErrorIs(t, err, ErrWrongKeyForAddress)
}

func TestAuthorizeAndVerifyRoundTrip(t *testing.T) {
	pub, priv := genKeyPair(t)
	addr := hash.SumAddress(pub)
	tx := types.Transaction{Inputs: []types.Input{{}}}

	at, err := Authorize([]KeyPair{{Address: addr, SigningKey: priv}}, []hash.Address{addr}, tx)
	require.NoError(t, err)
	require.NoError(t, VerifyAuthorizedTransaction(alwaysValidOrchard{}, at))
}

func TestVerifyAuthorizedTransactionRejectsBadSignature(t *testing.T) {
	pub, priv := genKeyPair(t)
	addr := hash.SumAddress(pub)
	tx := types.Transaction{Inputs: []types.Input{{}}}

	at, err := Authorize([]KeyPair{{Address: addr, SigningKey: priv}}, []hash.Address{addr}, tx)
	require.NoError(t, err)

	at.Authorizations[0].Signature[0] ^= 0xFF
	require.ErrorIs(t, VerifyAuthorizedTransaction(alwaysValidOrchard{}, at), ErrAuthorizationError)
}

func TestVerifyAuthorizedTransactionRejectsBadOrchard(t *testing.T) {
	pub, priv := genKeyPair(t)
	addr := hash.SumAddress(pub)
	tx := types.Transaction{
		Inputs:        []types.Input{{}},
		OrchardBundle: &types.OrchardBundle{Anchor: types.EmptyAnchor()},
	}

	at, err := Authorize([]KeyPair{{Address: addr, SigningKey: priv}}, []hash.Address{addr}, tx)
	require.NoError(t, err)
	require.ErrorIs(t, VerifyAuthorizedTransaction(alwaysInvalidOrchard{}, at), ErrAuthorizationError)
}

func TestVerifyAuthorizationsCountMismatch(t *testing.T) {
	tx := types.Transaction{Inputs: []types.Input{{}, {}}}
	err := VerifyAuthorizations(alwaysValidOrchard{}, []types.Transaction{tx}, nil)
	require.ErrorIs(t, err, ErrNotEnoughAuthorizations)

	err = VerifyAuthorizations(alwaysValidOrchard{}, []types.Transaction{tx},
		make([]types.Authorization, 3))
	require.ErrorIs(t, err, ErrTooManyAuthorizations)
}

func TestVerifyAuthorizationsAcrossMultipleTransactions(t *testing.T) {
	pub1, priv1 := genKeyPair(t)
	pub2, priv2 := genKeyPair(t)
	addr1, addr2 := hash.SumAddress(pub1), hash.SumAddress(pub2)

	tx1 := types.Transaction{Inputs: []types.Input{{}}}
	tx2 := types.Transaction{Inputs: []types.Input{{}}, Outputs: []types.Output{{Address: addr2}}}

	at1, err := Authorize([]KeyPair{{Address: addr1, SigningKey: priv1}}, []hash.Address{addr1}, tx1)
	require.NoError(t, err)
	at2, err := Authorize([]KeyPair{{Address: addr2, SigningKey: priv2}}, []hash.Address{addr2}, tx2)
	require.NoError(t, err)

	body := types.FromAuthorized(nil, []types.AuthorizedTransaction{at1, at2})
	err = VerifyAuthorizations(alwaysValidOrchard{}, body.Transactions, body.Authorizations)
	require.NoError(t, err)

	// Swapping which transaction an authorization is attributed to must
	// break verification, since the message each authorization commits
	// to is canonical(tx_k) for its *own* owning transaction.
	body.Authorizations[0], body.Authorizations[1] = body.Authorizations[1], body.Authorizations[0]
	err = VerifyAuthorizations(alwaysValidOrchard{}, body.Transactions, body.Authorizations)
	require.ErrorIs(t, err, ErrAuthorizationError)
}
