// Package auth implements transaction authorization: Ed25519 signing and
// (batch) verification over a transaction's canonical bytes, plus the
// orchard binding-signature/proof check delegated to a caller-supplied
// OrchardVerifier, and address derivation (the truncated Blake3 hash of a
// verifying key).
package auth

import (
	"crypto/ed25519"
	"runtime"

	"github.com/go-errors/errors"
	"github.com/hdevalence/ed25519consensus"
	"golang.org/x/sync/errgroup"

	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/types"
)

// batchChunkSize bounds the number of (signature, message, key) triples fed
// to a single ed25519consensus batch verifier, per spec.md §4.1. Chunking
// caps peak memory and lets the worker pool distribute work across cores.
const batchChunkSize = 1 << 14

// ErrWrongKeyForAddress is returned by Authorize when a signing key's
// derived address does not match the address it is asked to authorize
// against.
var ErrWrongKeyForAddress = errors.New("auth: verifying key does not match declared address")

// ErrAuthorizationError is returned when ed25519 or orchard verification
// fails.
var ErrAuthorizationError = errors.New("auth: authorization verification failed")

// ErrTooManyAuthorizations and ErrNotEnoughAuthorizations report a mismatch
// between a body's flattened authorization count and the sum of its
// transactions' input counts.
var (
	ErrTooManyAuthorizations   = errors.New("auth: too many authorizations")
	ErrNotEnoughAuthorizations = errors.New("auth: not enough authorizations")
)

// OrchardVerifier checks the shielded half of a transaction. Its concrete
// proof system is out of scope for this module; callers supply an
// implementation wrapping whatever Orchard bundle library they run.
type OrchardVerifier interface {
	// VerifyProof checks the zk proof attached to bundle.
	VerifyProof(bundle *types.OrchardBundle) bool
	// BindingVerify checks bundle's binding signature against sighash.
	BindingVerify(bundle *types.OrchardBundle, sighash hash.Hash) bool
}

// KeyPair is an address's signing material.
type KeyPair struct {
	Address    hash.Address
	SigningKey ed25519.PrivateKey
}

// Sign signs the canonical bytes of tx (the field-complete encoding,
// including the utreexo proof, so the signature commits to the specific
// proof bytes in use).
func Sign(signingKey ed25519.PrivateKey, tx types.Transaction) []byte {
	return ed25519.Sign(signingKey, tx.Canonical())
}

// Authorize signs every input of tx with the matching key pair (by
// position) and returns the resulting AuthorizedTransaction. It fails with
// ErrWrongKeyForAddress if a supplied key's derived address does not match
// the UTXO it is meant to authorize.
func Authorize(keys []KeyPair, spentAddresses []hash.Address, tx types.Transaction) (types.AuthorizedTransaction, error) {
	if len(keys) != len(tx.Inputs) || len(spentAddresses) != len(tx.Inputs) {
		return types.AuthorizedTransaction{}, errors.New("auth: key/address count does not match input count")
	}

	auths := make([]types.Authorization, len(keys))
	for i, kp := range keys {
		if hash.SumAddress(kp.SigningKey.Public().(ed25519.PublicKey)) != spentAddresses[i] {
			return types.AuthorizedTransaction{}, ErrWrongKeyForAddress
		}
		sig := Sign(kp.SigningKey, tx)
		auths[i] = types.Authorization{
			VerifyingKey: append([]byte(nil), kp.SigningKey.Public().(ed25519.PublicKey)...),
			Signature:    sig,
		}
	}

	return types.AuthorizedTransaction{Transaction: tx, Authorizations: auths}, nil
}

// VerifyAuthorizedTransaction verifies a single authorized transaction: the
// orchard bundle (if present) via orchardVerifier, and the flattened
// ed25519 authorizations against the single message canonical(tx),
// replicated once per authorization.
func VerifyAuthorizedTransaction(orchardVerifier OrchardVerifier, at types.AuthorizedTransaction) error {
	if bundle := at.Transaction.OrchardBundle; bundle != nil {
		sighash := hash.Sum(at.Transaction.Canonical())
		if !orchardVerifier.BindingVerify(bundle, sighash) {
			return ErrAuthorizationError
		}
		if !orchardVerifier.VerifyProof(bundle) {
			return ErrAuthorizationError
		}
	}

	if len(at.Authorizations) != len(at.Transaction.Inputs) {
		return errors.New("auth: authorization count does not match input count")
	}

	message := at.Transaction.Canonical()
	messages := make([][]byte, len(at.Authorizations))
	sigs := make([][]byte, len(at.Authorizations))
	keys := make([]ed25519.PublicKey, len(at.Authorizations))
	for i, a := range at.Authorizations {
		messages[i] = message
		sigs[i] = a.Signature
		keys[i] = ed25519.PublicKey(a.VerifyingKey)
	}

	if !batchVerify(keys, messages, sigs) {
		return ErrAuthorizationError
	}
	return nil
}

// txAuthSpan is the slice of a flattened authorization list that belongs to
// one transaction.
type txAuthSpan struct {
	tx    types.Transaction
	auths []types.Authorization
}

// VerifyAuthorizations verifies every transaction's orchard bundle in
// parallel, then batch-verifies all ed25519 authorizations in chunks of
// batchChunkSize pairs, also in parallel. The i-th authorization's message
// is canonical(tx_k), where k is the transaction that owns that input.
func VerifyAuthorizations(orchardVerifier OrchardVerifier, txs []types.Transaction, authorizations []types.Authorization) error {
	wantAuths := 0
	for _, tx := range txs {
		wantAuths += len(tx.Inputs)
	}
	switch {
	case len(authorizations) > wantAuths:
		return ErrTooManyAuthorizations
	case len(authorizations) < wantAuths:
		return ErrNotEnoughAuthorizations
	}

	if err := verifyOrchardBundlesParallel(orchardVerifier, txs); err != nil {
		return err
	}

	spans := make([]txAuthSpan, len(txs))
	offset := 0
	for i, tx := range txs {
		n := len(tx.Inputs)
		spans[i] = txAuthSpan{tx: tx, auths: authorizations[offset : offset+n]}
		offset += n
	}

	var messages [][]byte
	var sigs [][]byte
	var keys []ed25519.PublicKey
	for _, span := range spans {
		message := span.tx.Canonical()
		for _, a := range span.auths {
			messages = append(messages, message)
			sigs = append(sigs, a.Signature)
			keys = append(keys, ed25519.PublicKey(a.VerifyingKey))
		}
	}

	return batchVerifyChunked(keys, messages, sigs)
}

func verifyOrchardBundlesParallel(orchardVerifier OrchardVerifier, txs []types.Transaction) error {
	g := new(errgroup.Group)
	for _, tx := range txs {
		tx := tx
		if tx.OrchardBundle == nil {
			continue
		}
		g.Go(func() error {
			sighash := hash.Sum(tx.Canonical())
			if !orchardVerifier.BindingVerify(tx.OrchardBundle, sighash) {
				return ErrAuthorizationError
			}
			if !orchardVerifier.VerifyProof(tx.OrchardBundle) {
				return ErrAuthorizationError
			}
			return nil
		})
	}
	return g.Wait()
}

// batchVerify verifies a single chunk of (key, message, signature) triples
// with one ed25519consensus batch verifier.
func batchVerify(keys []ed25519.PublicKey, messages [][]byte, sigs [][]byte) bool {
	verifier := ed25519consensus.NewBatchVerifier()
	for i := range keys {
		verifier.Add(keys[i], messages[i], sigs[i])
	}
	ok, _ := verifier.Verify()
	return ok
}

// batchVerifyChunked fans chunks of at most batchChunkSize pairs out across
// a bounded worker pool, per spec.md §4.1 ("batch-verify ed25519 in chunks
// of 2^14 pairs in parallel").
func batchVerifyChunked(keys []ed25519.PublicKey, messages [][]byte, sigs [][]byte) error {
	n := len(keys)
	if n == 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	g := new(errgroup.Group)
	g.SetLimit(workers)

	for start := 0; start < n; start += batchChunkSize {
		end := start + batchChunkSize
		if end > n {
			end = n
		}
		start, end := start, end
		g.Go(func() error {
			if !batchVerify(keys[start:end], messages[start:end], sigs[start:end]) {
				return ErrAuthorizationError
			}
			return nil
		})
	}
	return g.Wait()
}
