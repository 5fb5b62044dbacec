// Package state implements the persistent sidechain ledger: the tip,
// height, UTXO/STXO sets, utreexo accumulator, orchard frontier and
// nullifier set, and withdrawal-bundle bookkeeping, plus block
// validate/connect/disconnect (spec.md §3-§5).
package state

import (
	"go.etcd.io/bbolt"

	"github.com/thunder-project/thunder/internal/accumulator"
	"github.com/thunder-project/thunder/internal/canon"
	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/types"
)

// Version is written under the meta bucket's "version" key on first open.
const Version uint32 = 1

var (
	bucketMeta                 = []byte("meta")
	bucketUtxos                = []byte("utxos")
	bucketStxos                = []byte("stxos")
	bucketAccumulator          = []byte("utreexo_accumulator")
	bucketOrchardFrontier      = []byte("orchard.frontier")
	bucketOrchardHistoricRoots = []byte("orchard.historical_roots")
	bucketOrchardNullifiers    = []byte("orchard.nullifiers")
	bucketPendingBundle        = []byte("pending_withdrawal_bundle")
	bucketWithdrawalBundles    = []byte("withdrawal_bundles")
	bucketLatestFailedBundle   = []byte("latest_failed_withdrawal_bundle")
	bucketDepositBlocks        = []byte("deposit_blocks")
	bucketBundleEventBlocks    = []byte("withdrawal_bundle_event_blocks")

	metaKeyVersion = []byte("version")
	metaKeyTip     = []byte("tip")
	metaKeyHeight  = []byte("height")

	singletonKey = []byte("_")
)

// State is a single bbolt environment holding every database in §3, with
// bbolt's single-writer/multi-reader transaction model giving the whole
// environment atomic commits for free.
type State struct {
	db   *bbolt.DB
	subs []chan struct{}
}

// Tx wraps a bbolt transaction, read-only or read-write, for use with
// State's accessor methods.
type Tx struct {
	tx *bbolt.Tx
}

var allBuckets = [][]byte{
	bucketMeta, bucketUtxos, bucketStxos, bucketAccumulator,
	bucketOrchardFrontier, bucketOrchardHistoricRoots, bucketOrchardNullifiers,
	bucketPendingBundle, bucketWithdrawalBundles, bucketLatestFailedBundle,
	bucketDepositBlocks, bucketBundleEventBlocks,
}

// Open opens (creating if necessary) a state database at path.
func Open(path string) (*State, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	s := &State{db: db}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(bucketMeta)
		if meta.Get(metaKeyVersion) == nil {
			var buf [4]byte
			putUint32(buf[:], Version)
			if err := meta.Put(metaKeyVersion, buf[:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *State) Close() error {
	return s.db.Close()
}

// View runs fn against a read-only transaction.
func (s *State) View(fn func(*Tx) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// Update runs fn against a read-write transaction. On success it notifies
// every Watch subscriber.
func (s *State) Update(fn func(*Tx) error) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// Watch returns a channel that receives a value after every successful
// Update, so callers (wallet-sync, mempool proof regeneration) can react to
// tip changes without polling.
func (s *State) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.subs = append(s.subs, ch)
	return ch
}

func (s *State) notify() {
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Tip returns the current tip hash, or ErrNoTip if no block is connected.
func (s *State) Tip(tx *Tx) (hash.BlockHash, error) {
	raw := tx.tx.Bucket(bucketMeta).Get(metaKeyTip)
	if raw == nil {
		return hash.BlockHash{}, ErrNoTip
	}
	var h hash.BlockHash
	copy(h[:], raw)
	return h, nil
}

// Height returns the current tip height, or ErrNoTip if no block is
// connected.
func (s *State) Height(tx *Tx) (uint32, error) {
	raw := tx.tx.Bucket(bucketMeta).Get(metaKeyHeight)
	if raw == nil {
		return 0, ErrNoTip
	}
	return getUint32(raw), nil
}

func (s *State) setTip(tx *Tx, h hash.BlockHash, height uint32) error {
	meta := tx.tx.Bucket(bucketMeta)
	if err := meta.Put(metaKeyTip, h[:]); err != nil {
		return err
	}
	var buf [4]byte
	putUint32(buf[:], height)
	return meta.Put(metaKeyHeight, buf[:])
}

func (s *State) clearTip(tx *Tx) error {
	meta := tx.tx.Bucket(bucketMeta)
	if err := meta.Delete(metaKeyTip); err != nil {
		return err
	}
	return meta.Delete(metaKeyHeight)
}

// GetUtxo looks up an unspent output by outpoint.
func (s *State) GetUtxo(tx *Tx, op types.OutPoint) (types.Output, error) {
	key := op.Key()
	raw := tx.tx.Bucket(bucketUtxos).Get(key[:])
	if raw == nil {
		return types.Output{}, &ErrNoUtxo{OutPoint: op}
	}
	return types.UnmarshalOutput(raw)
}

func (s *State) putUtxo(tx *Tx, op types.OutPoint, out types.Output) error {
	key := op.Key()
	raw, err := out.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.tx.Bucket(bucketUtxos).Put(key[:], raw)
}

func (s *State) deleteUtxo(tx *Tx, op types.OutPoint) error {
	key := op.Key()
	return tx.tx.Bucket(bucketUtxos).Delete(key[:])
}

// GetStxo looks up a spent output's record by its original outpoint.
func (s *State) GetStxo(tx *Tx, op types.OutPoint) (types.SpentOutput, error) {
	key := op.Key()
	raw := tx.tx.Bucket(bucketStxos).Get(key[:])
	if raw == nil {
		return types.SpentOutput{}, &ErrNoStxo{OutPoint: op}
	}
	return types.UnmarshalSpentOutput(raw)
}

func (s *State) putStxo(tx *Tx, op types.OutPoint, spent types.SpentOutput) error {
	key := op.Key()
	raw, err := spent.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.tx.Bucket(bucketStxos).Put(key[:], raw)
}

func (s *State) deleteStxo(tx *Tx, op types.OutPoint) error {
	key := op.Key()
	return tx.tx.Bucket(bucketStxos).Delete(key[:])
}

func encodeNodeHashes(leaves []hash.NodeHash) []byte {
	b := make([]byte, 0, 8+len(leaves)*hash.Size)
	var lenBuf [8]byte
	putUint64(lenBuf[:], uint64(len(leaves)))
	b = append(b, lenBuf[:]...)
	for _, l := range leaves {
		b = append(b, l[:]...)
	}
	return b
}

func decodeNodeHashes(b []byte) []hash.NodeHash {
	if len(b) < 8 {
		return nil
	}
	n := getUint64(b[:8])
	leaves := make([]hash.NodeHash, n)
	off := 8
	for i := range leaves {
		copy(leaves[i][:], b[off:off+hash.Size])
		off += hash.Size
	}
	return leaves
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// GetAccumulator returns the current utreexo accumulator, or an empty one
// if none has been persisted yet (genesis).
func (s *State) GetAccumulator(tx *Tx) accumulator.Accumulator {
	raw := tx.tx.Bucket(bucketAccumulator).Get(singletonKey)
	if raw == nil {
		return accumulator.NewForest()
	}
	return accumulator.FromLeaves(decodeNodeHashes(raw))
}

func (s *State) putAccumulator(tx *Tx, acc accumulator.Accumulator) error {
	forest, ok := acc.(*accumulator.Forest)
	if !ok {
		return nil
	}
	return tx.tx.Bucket(bucketAccumulator).Put(singletonKey, encodeNodeHashes(forest.Leaves()))
}

// GetFrontier returns the current orchard note-commitment frontier, or an
// empty one of FrontierMaxDepth if none has been persisted yet.
func (s *State) GetFrontier(tx *Tx) *Frontier {
	raw := tx.tx.Bucket(bucketOrchardFrontier).Get(singletonKey)
	if raw == nil {
		return NewFrontier(FrontierMaxDepth)
	}
	return FrontierFromLeaves(FrontierMaxDepth, decodeNodeHashes(raw))
}

func (s *State) putFrontier(tx *Tx, f *Frontier) error {
	return tx.tx.Bucket(bucketOrchardFrontier).Put(singletonKey, encodeNodeHashes(f.Leaves()))
}

// HasHistoricalRoot reports whether anchor is a root orchard.historical_roots
// has recorded.
func (s *State) HasHistoricalRoot(tx *Tx, anchor hash.Anchor) bool {
	return tx.tx.Bucket(bucketOrchardHistoricRoots).Get(anchor[:]) != nil
}

func (s *State) putHistoricalRoot(tx *Tx, anchor hash.Anchor, blockHash hash.BlockHash) error {
	return tx.tx.Bucket(bucketOrchardHistoricRoots).Put(anchor[:], blockHash[:])
}

func (s *State) deleteHistoricalRoot(tx *Tx, anchor hash.Anchor) error {
	return tx.tx.Bucket(bucketOrchardHistoricRoots).Delete(anchor[:])
}

// HasNullifier reports whether n has already been recorded as spent.
func (s *State) HasNullifier(tx *Tx, n hash.Nullifier) bool {
	return tx.tx.Bucket(bucketOrchardNullifiers).Get(n[:]) != nil
}

func (s *State) putNullifier(tx *Tx, n hash.Nullifier) error {
	return tx.tx.Bucket(bucketOrchardNullifiers).Put(n[:], []byte{1})
}

func (s *State) deleteNullifier(tx *Tx, n hash.Nullifier) error {
	return tx.tx.Bucket(bucketOrchardNullifiers).Delete(n[:])
}

func (s *State) setPendingWithdrawalBundle(tx *Tx, info BundleInfo) error {
	e := encodeBundleInfoWithHeight(info)
	return tx.tx.Bucket(bucketPendingBundle).Put(singletonKey, e)
}

func (s *State) clearPendingWithdrawalBundle(tx *Tx) error {
	return tx.tx.Bucket(bucketPendingBundle).Delete(singletonKey)
}

// PendingWithdrawalBundle returns the bundle currently awaiting mainchain
// confirmation, if any.
func (s *State) PendingWithdrawalBundle(tx *Tx) (BundleInfo, bool, error) {
	raw := tx.tx.Bucket(bucketPendingBundle).Get(singletonKey)
	if raw == nil {
		return BundleInfo{}, false, nil
	}
	info, err := DecodeBundleInfo(canon.NewDecoder(raw))
	return info, true, err
}

func encodeBundleInfoWithHeight(info BundleInfo) []byte {
	e := canon.NewEncoder()
	info.Encode(e)
	return e.Bytes()
}

func (s *State) getWithdrawalBundle(tx *Tx, m6id M6id) (WithdrawalBundleRecord, error) {
	raw := tx.tx.Bucket(bucketWithdrawalBundles).Get(m6id[:])
	if raw == nil {
		return WithdrawalBundleRecord{}, ErrWithdrawalBundleUnknown
	}
	return UnmarshalWithdrawalBundleRecord(raw)
}

func (s *State) putWithdrawalBundle(tx *Tx, record WithdrawalBundleRecord) error {
	raw, err := record.MarshalBinary()
	if err != nil {
		return err
	}
	return tx.tx.Bucket(bucketWithdrawalBundles).Put(record.Info.M6id[:], raw)
}

func (s *State) latestFailedBundleHeight(tx *Tx) (uint32, bool) {
	raw := tx.tx.Bucket(bucketLatestFailedBundle).Get(singletonKey)
	if raw == nil || len(raw) < 4 {
		return 0, false
	}
	return getUint32(raw[:4]), true
}

func (s *State) setLatestFailedBundle(tx *Tx, height uint32, m6id M6id) error {
	buf := make([]byte, 4+hash.Size)
	putUint32(buf[:4], height)
	copy(buf[4:], m6id[:])
	return tx.tx.Bucket(bucketLatestFailedBundle).Put(singletonKey, buf)
}
