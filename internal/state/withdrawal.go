package state

import (
	"github.com/thunder-project/thunder/internal/canon"
	"github.com/thunder-project/thunder/internal/hash"
)

// M6id identifies a withdrawal bundle: the bitcoin txid of the mainchain
// transaction that would pay it out.
type M6id = hash.Hash

// BundleStatus is a withdrawal bundle's lifecycle state.
type BundleStatus byte

const (
	BundleStatusPending BundleStatus = iota
	BundleStatusConfirmed
	BundleStatusFailed
)

// failureGapBlocks is the cooldown, in blocks, a failed withdrawal bundle
// imposes before a new one may be proposed.
const failureGapBlocks = 201

// BundleInfo is the fixed, non-timeline part of a withdrawal bundle: the
// outputs it pays and the height it was first proposed at.
type BundleInfo struct {
	M6id    M6id
	Outputs []uint32 // indices into the proposing block's withdrawal outputs
	Height  uint32
}

// Encode appends the canonical encoding of b to e.
func (b BundleInfo) Encode(e *canon.Encoder) {
	e.Fixed(b.M6id[:])
	e.Len(len(b.Outputs))
	for _, o := range b.Outputs {
		e.Uint32(o)
	}
	e.Uint32(b.Height)
}

// DecodeBundleInfo reads a canonically-encoded BundleInfo.
func DecodeBundleInfo(d *canon.Decoder) (BundleInfo, error) {
	var b BundleInfo
	m6id, err := d.Fixed(hash.Size)
	if err != nil {
		return b, err
	}
	copy(b.M6id[:], m6id)
	n, err := d.Len()
	if err != nil {
		return b, err
	}
	b.Outputs = make([]uint32, n)
	for i := range b.Outputs {
		v, err := d.Uint32()
		if err != nil {
			return b, err
		}
		b.Outputs[i] = v
	}
	height, err := d.Uint32()
	if err != nil {
		return b, err
	}
	b.Height = height
	return b, nil
}

// WithdrawalBundleRecord pairs a bundle's fixed info with its status
// timeline, the on-disk value of the withdrawal_bundles database (spec.md
// §3).
type WithdrawalBundleRecord struct {
	Info   BundleInfo
	Status RollBack[BundleStatus]
}

// MarshalBinary renders r using the canonical scheme: info, then the
// status timeline as (height, status) pairs in ascending order.
func (r WithdrawalBundleRecord) MarshalBinary() ([]byte, error) {
	e := canon.NewEncoder()
	r.Info.Encode(e)
	e.Len(len(r.Status.entries))
	for _, entry := range r.Status.entries {
		e.Uint32(entry.height)
		e.Byte(byte(entry.value))
	}
	return e.Bytes(), nil
}

// UnmarshalWithdrawalBundleRecord is the inverse of MarshalBinary.
func UnmarshalWithdrawalBundleRecord(raw []byte) (WithdrawalBundleRecord, error) {
	var r WithdrawalBundleRecord
	d := canon.NewDecoder(raw)
	info, err := DecodeBundleInfo(d)
	if err != nil {
		return r, err
	}
	r.Info = info
	n, err := d.Len()
	if err != nil {
		return r, err
	}
	r.Status.entries = make([]rollbackEntry[BundleStatus], n)
	for i := range r.Status.entries {
		height, err := d.Uint32()
		if err != nil {
			return r, err
		}
		statusByte, err := d.Byte()
		if err != nil {
			return r, err
		}
		r.Status.entries[i] = rollbackEntry[BundleStatus]{height: height, value: BundleStatus(statusByte)}
	}
	return r, nil
}

// ProposeWithdrawalBundle records a newly-proposed bundle as the pending
// one, failing if an unexpired failure-gap cooldown is in effect (spec.md
// §9: the latest_failed_withdrawal_bundle timeline enforces a cooldown
// before a new bundle may be proposed).
func (s *State) ProposeWithdrawalBundle(rwtxn *Tx, info BundleInfo) error {
	if failedHeight, ok := s.latestFailedBundleHeight(rwtxn); ok {
		if info.Height < failedHeight+failureGapBlocks {
			return ErrWithdrawalBundleAlreadyFailed
		}
	}

	record := WithdrawalBundleRecord{Info: info}
	record.Status.Set(info.Height, BundleStatusPending)
	if err := s.putWithdrawalBundle(rwtxn, record); err != nil {
		return err
	}
	return s.setPendingWithdrawalBundle(rwtxn, info)
}

// ConfirmWithdrawalBundle transitions m6id's bundle to Confirmed at height
// and clears the pending slot.
func (s *State) ConfirmWithdrawalBundle(rwtxn *Tx, m6id M6id, height uint32) error {
	record, err := s.getWithdrawalBundle(rwtxn, m6id)
	if err != nil {
		return err
	}
	record.Status.Set(height, BundleStatusConfirmed)
	if err := s.putWithdrawalBundle(rwtxn, record); err != nil {
		return err
	}
	return s.clearPendingWithdrawalBundle(rwtxn)
}

// FailWithdrawalBundle transitions m6id's bundle to Failed at height,
// clears the pending slot, and starts the failure-gap cooldown.
func (s *State) FailWithdrawalBundle(rwtxn *Tx, m6id M6id, height uint32) error {
	record, err := s.getWithdrawalBundle(rwtxn, m6id)
	if err != nil {
		return err
	}
	record.Status.Set(height, BundleStatusFailed)
	if err := s.putWithdrawalBundle(rwtxn, record); err != nil {
		return err
	}
	if err := s.clearPendingWithdrawalBundle(rwtxn); err != nil {
		return err
	}
	return s.setLatestFailedBundle(rwtxn, height, m6id)
}
