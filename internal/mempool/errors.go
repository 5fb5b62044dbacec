package mempool

import (
	"fmt"

	"github.com/thunder-project/thunder/internal/hash"
)

// ErrUtxoDoubleSpent is returned by Put when a transaction's input is
// already spent by another mempool transaction.
type ErrUtxoDoubleSpent struct {
	OutPoint string
}

func (e *ErrUtxoDoubleSpent) Error() string {
	return fmt.Sprintf("mempool: utxo %s already spent", e.OutPoint)
}

// ErrNullifierDoubleSpent is returned by Put when a transaction reuses a
// nullifier already used by another mempool transaction. It carries both
// the rejected (new) and the incumbent (old) txid, per spec.md §7.
type ErrNullifierDoubleSpent struct {
	New, Old hash.Txid
}

func (e *ErrNullifierDoubleSpent) Error() string {
	return fmt.Sprintf("mempool: nullifier already used by %s (rejecting %s)", e.Old, e.New)
}
