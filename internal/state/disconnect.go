package state

import (
	"github.com/thunder-project/thunder/internal/accumulator"
	"github.com/thunder-project/thunder/internal/types"
)

// DisconnectTip reverts the current tip back to header.PrevSideHash. The
// accumulator and (optionally) the frontier are restored wholesale from
// archived pre-block snapshots rather than algebraically inverted: neither
// structure is a pure group under its apply_diff, so subtraction does not
// generally recover the prior state (spec.md §9).
func (s *State) DisconnectTip(rwtxn *Tx, header types.Header, body types.Body, prevAccumulator accumulator.Accumulator, prevFrontier *Frontier) error {
	blockHash := header.Hash()

	tip, err := s.Tip(rwtxn)
	if err != nil {
		return err
	}
	if tip != blockHash {
		return &ErrInvalidHeaderBlockHash{Tip: tip, Header: blockHash}
	}

	if body.ComputeMerkleRoot() != header.MerkleRoot {
		return ErrInvalidBody
	}

	// Capture the root the connecting block recorded into historical_roots
	// before it is overwritten below.
	committedRoot := s.GetFrontier(rwtxn).Root()

	for i := len(body.Transactions) - 1; i >= 0; i-- {
		t := body.Transactions[i]
		txid := t.Txid()

		if bundle := t.OrchardBundle; bundle != nil {
			for _, n := range bundle.Nullifiers {
				if !s.HasNullifier(rwtxn, n) {
					return ErrOrchardMissingNullifier
				}
				if err := s.deleteNullifier(rwtxn, n); err != nil {
					return err
				}
			}
		}

		for vout := len(t.Outputs) - 1; vout >= 0; vout-- {
			op := types.Regular(txid, uint32(vout))
			if err := s.deleteUtxo(rwtxn, op); err != nil {
				return err
			}
		}

		for vin := len(t.Inputs) - 1; vin >= 0; vin-- {
			in := t.Inputs[vin]
			spent, err := s.GetStxo(rwtxn, in.OutPoint)
			if err != nil {
				return err
			}
			if err := s.deleteStxo(rwtxn, in.OutPoint); err != nil {
				return err
			}
			if err := s.putUtxo(rwtxn, in.OutPoint, spent.Output); err != nil {
				return err
			}
		}
	}

	for vout := len(body.Coinbase) - 1; vout >= 0; vout-- {
		op := types.Coinbase(header.MerkleRoot, uint32(vout))
		if err := s.deleteUtxo(rwtxn, op); err != nil {
			return err
		}
	}

	height, err := s.Height(rwtxn)
	if err != nil {
		return err
	}
	if header.PrevSideHash == nil {
		if err := s.clearTip(rwtxn); err != nil {
			return err
		}
	} else if err := s.setTip(rwtxn, *header.PrevSideHash, height-1); err != nil {
		return err
	}

	if err := s.putAccumulator(rwtxn, prevAccumulator); err != nil {
		return err
	}

	if prevFrontier != nil {
		if err := s.putFrontier(rwtxn, prevFrontier); err != nil {
			return err
		}
	}

	return s.deleteHistoricalRoot(rwtxn, committedRoot)
}
