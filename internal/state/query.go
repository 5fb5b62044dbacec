package state

import (
	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/types"
)

// UtxosByAddresses returns every unspent output whose address is in
// addresses, for wallet-sync's post-reorg UTXO view refresh. The utxos
// bucket is keyed by OutPointKey, not address, so this is a full scan.
func (s *State) UtxosByAddresses(rotxn *Tx, addresses map[hash.Address]struct{}) (map[types.OutPoint]types.Output, error) {
	result := make(map[types.OutPoint]types.Output)
	err := rotxn.tx.Bucket(bucketUtxos).ForEach(func(k, v []byte) error {
		out, err := types.UnmarshalOutput(v)
		if err != nil {
			return err
		}
		if _, ok := addresses[out.Address]; !ok {
			return nil
		}
		var key types.OutPointKey
		copy(key[:], k)
		result[types.FromOutPointKey(key)] = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SpentInPoints looks up, for each outpoint in outpoints that has moved to
// stxos, the InPoint recording how it was spent. Outpoints still unspent
// (or unknown) are simply omitted.
func (s *State) SpentInPoints(rotxn *Tx, outpoints []types.OutPoint) (map[types.OutPoint]types.InPoint, error) {
	result := make(map[types.OutPoint]types.InPoint)
	for _, op := range outpoints {
		spent, err := s.GetStxo(rotxn, op)
		if err != nil {
			if _, ok := err.(*ErrNoStxo); ok {
				continue
			}
			return nil, err
		}
		result[op] = spent.InPoint
	}
	return result, nil
}
