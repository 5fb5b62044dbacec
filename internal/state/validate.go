package state

import (
	"sort"

	"github.com/thunder-project/thunder/internal/accumulator"
	"github.com/thunder-project/thunder/internal/auth"
	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/types"
)

// PrevalidatedBlock is the result of Prevalidate: everything Connect needs
// to perform pure writes, with no recomputation, per spec.md §4.5.
type PrevalidatedBlock struct {
	Header          types.Header
	Body            types.Body
	Filled          []types.FilledTransaction
	MerkleRoot      hash.MerkleRoot
	TotalFees       uint64
	CoinbaseValue   uint64
	NextHeight      uint32
	AccumulatorDiff accumulator.Diff
	NewAccumulator  accumulator.Accumulator
}

// Validate runs the full block-validation procedure and returns only the
// total fees collected.
func (s *State) Validate(rotxn *Tx, header types.Header, body types.Body, orchardVerifier auth.OrchardVerifier) (uint64, error) {
	pb, err := s.validateCommon(rotxn, header, body, orchardVerifier)
	if err != nil {
		return 0, err
	}
	return pb.TotalFees, nil
}

// Prevalidate runs the same procedure as Validate but retains every
// intermediate result Connect needs, so ConnectPrevalidated performs only
// writes.
func (s *State) Prevalidate(rotxn *Tx, header types.Header, body types.Body, orchardVerifier auth.OrchardVerifier) (*PrevalidatedBlock, error) {
	return s.validateCommon(rotxn, header, body, orchardVerifier)
}

func (s *State) validateCommon(rotxn *Tx, header types.Header, body types.Body, orchardVerifier auth.OrchardVerifier) (*PrevalidatedBlock, error) {
	// Step 1-2: prev_side_hash must match tip; next_height = height+1 (or 0
	// for genesis).
	tip, tipErr := s.Tip(rotxn)
	var nextHeight uint32
	switch {
	case tipErr == ErrNoTip:
		if header.PrevSideHash != nil {
			return nil, &ErrInvalidHeaderPrevSideHash{Expected: nil, Got: header.PrevSideHash}
		}
		nextHeight = 0
	case tipErr != nil:
		return nil, tipErr
	default:
		if header.PrevSideHash == nil || *header.PrevSideHash != tip {
			return nil, &ErrInvalidHeaderPrevSideHash{Expected: &tip, Got: header.PrevSideHash}
		}
		height, err := s.Height(rotxn)
		if err != nil {
			return nil, err
		}
		nextHeight = height + 1
	}

	// Step 3: sigops limit.
	if limit := bodySigopsLimit(nextHeight); len(body.Authorizations) > limit {
		return nil, &ErrTooManySigops{Count: len(body.Authorizations), Limit: limit}
	}

	// Step 4: body size limit.
	if size, limit := body.SerializedSize(), bodySizeLimit(nextHeight); size > limit {
		return nil, &ErrBodyTooLarge{Size: size, Limit: limit}
	}

	// Step 5: merkle root.
	merkleRoot := body.ComputeMerkleRoot()
	if merkleRoot != header.MerkleRoot {
		return nil, ErrInvalidBody
	}

	// Step 6: coinbase outputs open the accumulator diff.
	var diff accumulator.Diff
	var coinbaseValue uint64
	for vout, out := range body.Coinbase {
		op := types.Coinbase(merkleRoot, uint32(vout))
		leaf := types.PointedOutput{OutPoint: op, Output: out}.Hash()
		diff.Insertions = append(diff.Insertions, leaf)

		sum, overflow := addOverflow(coinbaseValue, out.GetValue())
		if overflow {
			return nil, ErrAmountOverflow
		}
		coinbaseValue = sum
	}

	// Step 7: resolve spent utxos into FilledTransactions.
	filled := make([]types.FilledTransaction, len(body.Transactions))
	for i, t := range body.Transactions {
		ft := types.FilledTransaction{Transaction: t, SpentUtxos: make([]types.Output, len(t.Inputs))}
		for vin, in := range t.Inputs {
			utxo, err := s.GetUtxo(rotxn, in.OutPoint)
			if err != nil {
				return nil, err
			}
			ft.SpentUtxos[vin] = utxo
		}
		filled[i] = ft
	}

	// Step 8: in-block double-spend check via sort-and-scan over
	// OutPointKey.
	if err := checkNoDoubleSpend(body.Transactions); err != nil {
		return nil, err
	}

	// Step 9: extend the diff, accumulate fees, verify each tx's proof
	// against the pre-block accumulator.
	acc := s.GetAccumulator(rotxn)
	var totalFees uint64
	for i, t := range body.Transactions {
		ft := filled[i]

		targets := make([]hash.NodeHash, len(t.Inputs))
		for vin, in := range t.Inputs {
			targets[vin] = in.UtxoHash
			diff.Deletions = append(diff.Deletions, in.UtxoHash)
		}
		for vout, out := range t.Outputs {
			op := types.Regular(t.Txid(), uint32(vout))
			leaf := types.PointedOutput{OutPoint: op, Output: out}.Hash()
			diff.Insertions = append(diff.Insertions, leaf)
		}

		fee, err := validateFilledTransaction(ft)
		if err != nil {
			return nil, err
		}
		sum, overflow := addOverflow(totalFees, fee)
		if overflow {
			return nil, ErrAmountOverflow
		}
		totalFees = sum

		proof := accumulator.Proof{Targets: t.Proof.Targets, Hashes: t.Proof.Proof}
		if !acc.Verify(proof, targets) {
			return nil, &ErrUtreexoProofFailed{Txid: t.Txid()}
		}
	}

	// Step 10: coinbase ceiling.
	if coinbaseValue > totalFees {
		return nil, &ErrNotEnoughFees{CoinbaseValue: coinbaseValue, TotalFees: totalFees}
	}

	// Step 11: flattened authorization/address check.
	totalInputs := 0
	for _, t := range body.Transactions {
		totalInputs += len(t.Inputs)
	}
	if totalInputs == len(body.Authorizations) {
		offset := 0
		for i, t := range body.Transactions {
			for vin := range t.Inputs {
				auth := body.Authorizations[offset]
				spentAddr := filled[i].SpentUtxos[vin].Address
				if hash.SumAddress(auth.VerifyingKey) != spentAddr {
					return nil, &ErrWrongPubKeyForAddress{Txid: t.Txid(), Vin: vin}
				}
				offset++
			}
		}
	}

	// Step 12: orchard + batched ed25519 verification.
	if err := auth.VerifyAuthorizations(orchardVerifier, body.Transactions, body.Authorizations); err != nil {
		return nil, &ErrAuthorizationError{Err: err}
	}

	// Step 13: accumulator roots must match the header's declared roots.
	newAcc, err := acc.ApplyDiff(diff)
	if err != nil {
		return nil, err
	}
	if !rootsEqual(newAcc.Roots(), header.Roots) {
		return nil, ErrUtreexoRootsMismatch
	}

	return &PrevalidatedBlock{
		Header:          header,
		Body:            body,
		Filled:          filled,
		MerkleRoot:      merkleRoot,
		TotalFees:       totalFees,
		CoinbaseValue:   coinbaseValue,
		NextHeight:      nextHeight,
		AccumulatorDiff: diff,
		NewAccumulator:  newAcc,
	}, nil
}

// validateFilledTransaction enforces the per-transaction value rule:
// value_in = Σ spent_utxo.value + max(0, orchard.value_balance);
// value_out = Σ output.value + max(0, -orchard.value_balance);
// require value_in >= value_out.
func validateFilledTransaction(ft types.FilledTransaction) (uint64, error) {
	fee, err := ft.Fee()
	if err != nil {
		return 0, &ErrNotEnoughValueIn{Txid: ft.Txid()}
	}
	return fee, nil
}

// validateTransaction is the per-transaction anchor rule: if an orchard
// bundle is present, its anchor must be either the empty tree with spends
// disabled, or a key in orchard.historical_roots. Nothing in this module
// calls it: neither validateCommon nor mempool.Put applies the anchor rule.
func (s *State) validateTransaction(rotxn *Tx, t types.Transaction) error {
	bundle := t.OrchardBundle
	if bundle == nil {
		return nil
	}
	if bundle.Anchor == types.EmptyAnchor() {
		if !bundle.Flags.SpendsEnabled {
			return nil
		}
		return ErrOrchardEmptyAnchor
	}
	if !s.HasHistoricalRoot(rotxn, bundle.Anchor) {
		return ErrOrchardInvalidAnchor
	}
	return nil
}

func checkNoDoubleSpend(txs []types.Transaction) error {
	type keyed struct {
		key types.OutPointKey
		op  types.OutPoint
	}
	var keys []keyed
	for _, t := range txs {
		for _, in := range t.Inputs {
			keys = append(keys, keyed{key: in.OutPoint.Key(), op: in.OutPoint})
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		return string(keys[i].key[:]) < string(keys[j].key[:])
	})
	for i := 1; i < len(keys); i++ {
		if keys[i].key == keys[i-1].key {
			return &ErrUtxoDoubleSpent{OutPoint: keys[i].op}
		}
	}
	return nil
}

func rootsEqual(a, b []hash.NodeHash) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func addOverflow(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum < a
}
