package state

import (
	"sort"

	"github.com/thunder-project/thunder/internal/auth"
	"github.com/thunder-project/thunder/internal/types"
)

// utxoDelete, stxoPut and utxoPut are the three mutation vectors
// ConnectPrevalidated coalesces writes into, each sorted by key (with
// sort.Slice, on the calling goroutine) before replay purely for
// sequential B-tree locality (spec.md §4.5).
type utxoDelete struct {
	key types.OutPointKey
	op  types.OutPoint
}
type stxoPut struct {
	key   types.OutPointKey
	op    types.OutPoint
	spent types.SpentOutput
}
type utxoPut struct {
	key types.OutPointKey
	op  types.OutPoint
	out types.Output
}

// Connect is the non-prevalidated path: it runs the full validation
// procedure inline and then performs the same writes as
// ConnectPrevalidated.
func (s *State) Connect(rwtxn *Tx, header types.Header, body types.Body, orchardVerifier auth.OrchardVerifier) error {
	pb, err := s.Prevalidate(rwtxn, header, body, orchardVerifier)
	if err != nil {
		return err
	}
	_, err = s.ConnectPrevalidated(rwtxn, pb)
	return err
}

// ConnectPrevalidated performs only writes, using the result of an earlier
// Prevalidate call: no recomputation. It returns the new orchard frontier
// iff its root actually changed, for use as a disconnect checkpoint.
func (s *State) ConnectPrevalidated(rwtxn *Tx, pb *PrevalidatedBlock) (*Frontier, error) {
	var deletes []utxoDelete
	var stxoPuts []stxoPut
	var utxoPuts []utxoPut

	for vout, out := range pb.Body.Coinbase {
		op := types.Coinbase(pb.MerkleRoot, uint32(vout))
		utxoPuts = append(utxoPuts, utxoPut{key: op.Key(), op: op, out: out})
	}

	frontier := s.GetFrontier(rwtxn)
	frontierChanged := false

	for i, t := range pb.Body.Transactions {
		txid := t.Txid()
		for vin, in := range t.Inputs {
			deletes = append(deletes, utxoDelete{key: in.OutPoint.Key(), op: in.OutPoint})
			stxoPuts = append(stxoPuts, stxoPut{
				key: in.OutPoint.Key(),
				op:  in.OutPoint,
				spent: types.SpentOutput{
					Output:  pb.Filled[i].SpentUtxos[vin],
					InPoint: types.InPoint{Kind: types.InPointRegular, Txid: txid, Vin: uint32(vin)},
				},
			})
		}
		for vout, out := range t.Outputs {
			op := types.Regular(txid, uint32(vout))
			utxoPuts = append(utxoPuts, utxoPut{key: op.Key(), op: op, out: out})
		}

		if bundle := t.OrchardBundle; bundle != nil {
			for _, commitment := range bundle.ExtractedNoteCommitments {
				if err := frontier.Append(commitment); err != nil {
					return nil, err
				}
				frontierChanged = true
			}
			for _, n := range bundle.Nullifiers {
				if s.HasNullifier(rwtxn, n) {
					return nil, &ErrOrchardNullifierDoubleSpent{Nullifier: n}
				}
				if err := s.putNullifier(rwtxn, n); err != nil {
					return nil, err
				}
			}
		}
	}

	sort.Slice(deletes, func(i, j int) bool { return less(deletes[i].key, deletes[j].key) })
	sort.Slice(stxoPuts, func(i, j int) bool { return less(stxoPuts[i].key, stxoPuts[j].key) })
	sort.Slice(utxoPuts, func(i, j int) bool { return less(utxoPuts[i].key, utxoPuts[j].key) })

	for _, d := range deletes {
		if err := s.deleteUtxo(rwtxn, d.op); err != nil {
			return nil, err
		}
	}
	for _, p := range stxoPuts {
		if err := s.putStxo(rwtxn, p.op, p.spent); err != nil {
			return nil, err
		}
	}
	for _, p := range utxoPuts {
		if err := s.putUtxo(rwtxn, p.op, p.out); err != nil {
			return nil, err
		}
	}

	blockHash := pb.Header.Hash()
	if err := s.setTip(rwtxn, blockHash, pb.NextHeight); err != nil {
		return nil, err
	}
	if err := s.putAccumulator(rwtxn, pb.NewAccumulator); err != nil {
		return nil, err
	}
	if err := s.putFrontier(rwtxn, frontier); err != nil {
		return nil, err
	}
	if err := s.putHistoricalRoot(rwtxn, frontier.Root(), blockHash); err != nil {
		return nil, err
	}

	if !frontierChanged {
		return nil, nil
	}
	return frontier, nil
}

func less(a, b types.OutPointKey) bool {
	return string(a[:]) < string(b[:])
}
