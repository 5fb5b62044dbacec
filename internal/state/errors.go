package state

import (
	"fmt"

	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/types"
)

// ErrNoTip is returned when an operation requires a connected tip and none
// exists.
var ErrNoTip = fmt.Errorf("state: no tip")

// ErrInvalidHeaderPrevSideHash is returned when header.PrevSideHash does not
// match the current tip.
type ErrInvalidHeaderPrevSideHash struct {
	Expected *hash.BlockHash
	Got      *hash.BlockHash
}

func (e *ErrInvalidHeaderPrevSideHash) Error() string {
	return fmt.Sprintf("state: invalid header: prev_side_hash %v does not match tip %v", e.Got, e.Expected)
}

// ErrInvalidHeaderBlockHash is returned by DisconnectTip when the supplied
// header does not hash to the current tip.
type ErrInvalidHeaderBlockHash struct {
	Tip    hash.BlockHash
	Header hash.BlockHash
}

func (e *ErrInvalidHeaderBlockHash) Error() string {
	return fmt.Sprintf("state: invalid header: hash %v does not match tip %v", e.Header, e.Tip)
}

// ErrInvalidBody is returned when a body's computed merkle root does not
// match its header.
var ErrInvalidBody = fmt.Errorf("state: invalid body: merkle root mismatch")

// ErrBodyTooLarge is returned when a body exceeds the dynamic size limit.
type ErrBodyTooLarge struct {
	Size, Limit int
}

func (e *ErrBodyTooLarge) Error() string {
	return fmt.Sprintf("state: body too large: %d bytes exceeds limit %d", e.Size, e.Limit)
}

// ErrTooManySigops is returned when a body's authorization count exceeds
// the dynamic sigops limit.
type ErrTooManySigops struct {
	Count, Limit int
}

func (e *ErrTooManySigops) Error() string {
	return fmt.Sprintf("state: too many sigops: %d exceeds limit %d", e.Count, e.Limit)
}

// ErrNotEnoughFees is returned when coinbase value exceeds total fees.
type ErrNotEnoughFees struct {
	CoinbaseValue, TotalFees uint64
}

func (e *ErrNotEnoughFees) Error() string {
	return fmt.Sprintf("state: not enough fees: coinbase value %d exceeds total fees %d", e.CoinbaseValue, e.TotalFees)
}

// ErrNotEnoughValueIn mirrors types.ErrNotEnoughValueIn at the state layer,
// carrying the offending txid.
type ErrNotEnoughValueIn struct {
	Txid hash.Txid
}

func (e *ErrNotEnoughValueIn) Error() string {
	return fmt.Sprintf("state: transaction %v: value in less than value out", e.Txid)
}

// ErrNoUtxo is returned when a transaction spends an outpoint absent from
// the utxo set.
type ErrNoUtxo struct {
	OutPoint types.OutPoint
}

func (e *ErrNoUtxo) Error() string {
	return fmt.Sprintf("state: no utxo for outpoint %x", e.OutPoint.Key())
}

// ErrNoStxo is returned when disconnect cannot find the spent-output record
// it expects.
type ErrNoStxo struct {
	OutPoint types.OutPoint
}

func (e *ErrNoStxo) Error() string {
	return fmt.Sprintf("state: no stxo for outpoint %x", e.OutPoint.Key())
}

// ErrUtxoDoubleSpent is returned when two inputs within the same block
// consume the same outpoint.
type ErrUtxoDoubleSpent struct {
	OutPoint types.OutPoint
}

func (e *ErrUtxoDoubleSpent) Error() string {
	return fmt.Sprintf("state: utxo double spent within block: %x", e.OutPoint.Key())
}

// ErrUtreexoProofFailed is returned when a transaction's utreexo proof does
// not verify against the pre-block accumulator.
type ErrUtreexoProofFailed struct {
	Txid hash.Txid
}

func (e *ErrUtreexoProofFailed) Error() string {
	return fmt.Sprintf("state: utreexo proof failed for transaction %v", e.Txid)
}

// ErrUtreexoRootsMismatch is returned when the accumulator's roots after
// applying the block's diff do not match the header's declared roots.
var ErrUtreexoRootsMismatch = fmt.Errorf("state: utreexo roots mismatch")

// ErrWrongPubKeyForAddress is returned when a flattened authorization's
// declared address does not match the spent utxo's address.
type ErrWrongPubKeyForAddress struct {
	Txid hash.Txid
	Vin  int
}

func (e *ErrWrongPubKeyForAddress) Error() string {
	return fmt.Sprintf("state: wrong pubkey for address: tx %v input %d", e.Txid, e.Vin)
}

// ErrAuthorizationError wraps a failure from internal/auth.
type ErrAuthorizationError struct {
	Err error
}

func (e *ErrAuthorizationError) Error() string {
	return fmt.Sprintf("state: authorization error: %v", e.Err)
}

func (e *ErrAuthorizationError) Unwrap() error {
	return e.Err
}

// Orchard-specific errors.
var (
	ErrOrchardEmptyAnchor      = fmt.Errorf("state: orchard: empty anchor required when spends disabled")
	ErrOrchardInvalidAnchor    = fmt.Errorf("state: orchard: anchor not found in historical roots")
	ErrOrchardMissingNullifier = fmt.Errorf("state: orchard: nullifier not found for disconnect")
)

// ErrOrchardNullifierDoubleSpent is returned when a connected block reuses a
// nullifier already present in orchard.nullifiers.
type ErrOrchardNullifierDoubleSpent struct {
	Nullifier hash.Nullifier
}

func (e *ErrOrchardNullifierDoubleSpent) Error() string {
	return fmt.Sprintf("state: orchard: nullifier %v already spent", e.Nullifier)
}

// Amount errors.
var (
	ErrAmountOverflow  = fmt.Errorf("state: amount overflow")
	ErrAmountUnderflow = fmt.Errorf("state: amount underflow")
)

// Withdrawal-bundle errors.
var (
	ErrWithdrawalBundleUnknown       = fmt.Errorf("state: withdrawal bundle: unknown m6id")
	ErrWithdrawalBundleAlreadyFailed = fmt.Errorf("state: withdrawal bundle: within failure cooldown window")
)
