// Package mempool implements pending-transaction admission with UTXO and
// shielded-nullifier double-spend prevention, recursive eviction on
// conflict, and utreexo proof regeneration after a tip change, per
// spec.md §4.3.
package mempool

import (
	"encoding/hex"

	"go.etcd.io/bbolt"

	"github.com/thunder-project/thunder/internal/accumulator"
	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/types"
)

var (
	bucketTransactions   = []byte("transactions")
	bucketSpentUtxos     = []byte("spent_utxos")
	bucketUsedNullifiers = []byte("used_nullifiers")
)

// Mempool is backed by three bbolt buckets in one environment:
// transactions (Txid -> AuthorizedTransaction), spent_utxos
// (OutPointKey -> Txid), used_nullifiers (Nullifier -> Txid). bbolt's
// single-writer/multi-reader transaction model gives Put atomicity for
// free.
type Mempool struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) a mempool database at path.
func Open(path string) (*Mempool, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketTransactions, bucketSpentUtxos, bucketUsedNullifiers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Mempool{db: db}, nil
}

// Close closes the underlying database.
func (m *Mempool) Close() error {
	return m.db.Close()
}

// Put admits at into the mempool. It is a no-op if at's txid is already
// present. Admission fails atomically: if any input is already spent or any
// nullifier already used, nothing is recorded.
func (m *Mempool) Put(at types.AuthorizedTransaction) error {
	txid := at.Txid()

	return m.db.Update(func(tx *bbolt.Tx) error {
		txns := tx.Bucket(bucketTransactions)
		if txns.Get(txid[:]) != nil {
			return nil
		}

		spentUtxos := tx.Bucket(bucketSpentUtxos)
		for _, in := range at.Transaction.Inputs {
			key := in.OutPoint.Key()
			if spentUtxos.Get(key[:]) != nil {
				return &ErrUtxoDoubleSpent{OutPoint: hex.EncodeToString(key[:])}
			}
		}

		usedNullifiers := tx.Bucket(bucketUsedNullifiers)
		if bundle := at.Transaction.OrchardBundle; bundle != nil {
			for _, n := range bundle.Nullifiers {
				if existing := usedNullifiers.Get(n[:]); existing != nil {
					var old hash.Txid
					copy(old[:], existing)
					return &ErrNullifierDoubleSpent{New: txid, Old: old}
				}
			}
		}

		for _, in := range at.Transaction.Inputs {
			key := in.OutPoint.Key()
			if err := spentUtxos.Put(key[:], txid[:]); err != nil {
				return err
			}
		}
		if bundle := at.Transaction.OrchardBundle; bundle != nil {
			for _, n := range bundle.Nullifiers {
				if err := usedNullifiers.Put(n[:], txid[:]); err != nil {
					return err
				}
			}
		}

		raw, err := at.MarshalBinary()
		if err != nil {
			return err
		}
		return txns.Put(txid[:], raw)
	})
}

// Contains reports whether txid is currently admitted.
func (m *Mempool) Contains(txid hash.Txid) (bool, error) {
	var found bool
	err := m.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketTransactions).Get(txid[:]) != nil
		return nil
	})
	return found, err
}

// Size returns the number of admitted transactions.
func (m *Mempool) Size() (int, error) {
	var n int
	err := m.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketTransactions).Stats().KeyN
		return nil
	})
	return n, err
}

// Delete recursively evicts txid and every mempool transaction that spends
// one of its outputs (a BFS over the spent_utxos relation), clearing each
// evicted transaction's own input and nullifier records. It is a no-op if
// txid is absent.
func (m *Mempool) Delete(txid hash.Txid) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		return deleteRecursive(tx, txid)
	})
}

func deleteRecursive(tx *bbolt.Tx, txid hash.Txid) error {
	txns := tx.Bucket(bucketTransactions)
	raw := txns.Get(txid[:])
	if raw == nil {
		return nil
	}
	at, err := types.UnmarshalAuthorizedTransaction(raw)
	if err != nil {
		return err
	}

	// Find descendants: mempool transactions spending one of this tx's
	// outputs, before we remove our own spent_utxos entries.
	spentUtxos := tx.Bucket(bucketSpentUtxos)
	var descendants []hash.Txid
	for vout := range at.Transaction.Outputs {
		outpoint := types.Regular(txid, uint32(vout))
		key := outpoint.Key()
		if spenderTxid := spentUtxos.Get(key[:]); spenderTxid != nil {
			var spender hash.Txid
			copy(spender[:], spenderTxid)
			descendants = append(descendants, spender)
		}
	}

	for _, in := range at.Transaction.Inputs {
		key := in.OutPoint.Key()
		if err := spentUtxos.Delete(key[:]); err != nil {
			return err
		}
	}
	usedNullifiers := tx.Bucket(bucketUsedNullifiers)
	if bundle := at.Transaction.OrchardBundle; bundle != nil {
		for _, n := range bundle.Nullifiers {
			if err := usedNullifiers.Delete(n[:]); err != nil {
				return err
			}
		}
	}
	if err := txns.Delete(txid[:]); err != nil {
		return err
	}

	for _, d := range descendants {
		if err := deleteRecursive(tx, d); err != nil {
			return err
		}
	}
	return nil
}

// deleteNullifierUsers recursively evicts any mempool transaction currently
// using nullifier n.
func deleteNullifierUsers(tx *bbolt.Tx, n hash.Nullifier) error {
	usedNullifiers := tx.Bucket(bucketUsedNullifiers)
	raw := usedNullifiers.Get(n[:])
	if raw == nil {
		return nil
	}
	var txid hash.Txid
	copy(txid[:], raw)
	return deleteRecursive(tx, txid)
}

// Take returns the first n admitted transactions in stored order, which is
// the byte order of their txid keys, not the order they were admitted in.
// The mempool makes no priority-ordering promise.
func (m *Mempool) Take(n int) ([]types.AuthorizedTransaction, error) {
	var out []types.AuthorizedTransaction
	err := m.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketTransactions).Cursor()
		for k, v := c.First(); k != nil && len(out) < n; k, v = c.Next() {
			at, err := types.UnmarshalAuthorizedTransaction(v)
			if err != nil {
				return err
			}
			out = append(out, at)
		}
		return nil
	})
	return out, err
}

// TakeAll returns every admitted transaction in stored order.
func (m *Mempool) TakeAll() ([]types.AuthorizedTransaction, error) {
	return m.Take(int(^uint(0) >> 1))
}

// RegenerateProofs recomputes every stored transaction's utreexo proof
// against acc and writes it back. Called after every tip change, since a
// proof generated against the old tip's accumulator state no longer
// verifies against the new one. A transaction whose proof cannot be
// regenerated against acc is evicted, together with its descendants.
func (m *Mempool) RegenerateProofs(acc accumulator.Accumulator) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		txns := tx.Bucket(bucketTransactions)
		c := txns.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			at, err := types.UnmarshalAuthorizedTransaction(v)
			if err != nil {
				return err
			}

			targets := make([]hash.NodeHash, len(at.Transaction.Inputs))
			for i, in := range at.Transaction.Inputs {
				targets[i] = in.UtxoHash
			}
			proof, err := acc.Prove(targets)
			if err != nil {
				log.Warnf("mempool: dropping %s: cannot regenerate proof: %v", hashFromKey(k), err)
				if err := deleteRecursive(tx, hashFromKey(k)); err != nil {
					return err
				}
				continue
			}

			at.Transaction.Proof = types.UtreexoProof{Targets: proof.Targets, Proof: proof.Hashes}
			raw, err := at.MarshalBinary()
			if err != nil {
				return err
			}
			if err := txns.Put(k, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// ConnectBlock removes every transaction in body (and its mempool
// descendants) from the mempool, also evicting any transaction that uses a
// nullifier the block's orchard bundles have now spent, then regenerates
// remaining proofs against the post-block accumulator.
func (m *Mempool) ConnectBlock(body types.Body, newAccumulator accumulator.Accumulator) error {
	err := m.db.Update(func(tx *bbolt.Tx) error {
		for _, t := range body.Transactions {
			txid := t.Txid()
			if err := deleteRecursive(tx, txid); err != nil {
				return err
			}
			if bundle := t.OrchardBundle; bundle != nil {
				for _, n := range bundle.Nullifiers {
					if err := deleteNullifierUsers(tx, n); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return m.RegenerateProofs(newAccumulator)
}

func hashFromKey(k []byte) hash.Txid {
	var h hash.Txid
	copy(h[:], k)
	return h
}
