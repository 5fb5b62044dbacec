package state

import (
	"github.com/thunder-project/thunder/internal/types"
)

// SidechainWealth sums the sidechain-side value currently accounted for:
// every unspent output, plus every spent output whose InPoint records
// inclusion in a withdrawal bundle (value that has left the UTXO set but
// has not yet left the sidechain's accounting until the bundle confirms).
//
// The source this module is grounded on computes the withdrawal-stxo half
// of this sum from the wrong timeline (total_deposit_stxo_value instead of
// total_withdrawal_stxo_value); this computes it directly from stxos whose
// inpoint kind is Withdrawal, per spec.md open question (b).
func (s *State) SidechainWealth(rotxn *Tx) (uint64, error) {
	var total uint64

	err := rotxn.tx.Bucket(bucketUtxos).ForEach(func(_, v []byte) error {
		out, err := types.UnmarshalOutput(v)
		if err != nil {
			return err
		}
		sum, overflow := addOverflow(total, out.GetValue())
		if overflow {
			return ErrAmountOverflow
		}
		total = sum
		return nil
	})
	if err != nil {
		return 0, err
	}

	err = rotxn.tx.Bucket(bucketStxos).ForEach(func(_, v []byte) error {
		spent, err := types.UnmarshalSpentOutput(v)
		if err != nil {
			return err
		}
		if spent.InPoint.Kind != types.InPointWithdrawal {
			return nil
		}
		sum, overflow := addOverflow(total, spent.Output.GetValue())
		if overflow {
			return ErrAmountOverflow
		}
		total = sum
		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// UtxoValue looks up the value of a single unspent output, the lookup
// wallet and RPC callers need without pulling the whole output back.
func (s *State) UtxoValue(rotxn *Tx, op types.OutPoint) (uint64, error) {
	out, err := s.GetUtxo(rotxn, op)
	if err != nil {
		return 0, err
	}
	return out.GetValue(), nil
}
