// Package archive is a minimal read-only ancestor provider and checkpoint
// sink: header/body lookup by block hash, pre-block accumulator/frontier
// snapshots for disconnect, and mainchain header-info/BMM-commitment
// caches for the mainchain sync task. Its storage schema is otherwise out
// of scope (spec.md §1); this is just enough surface for §4.5-§4.7 to call
// against, backed by its own bbolt environment so a reader here is never
// blocked by a writer of the state environment.
package archive

import (
	"go.etcd.io/bbolt"

	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/types"
)

var (
	bucketHeaders                = []byte("headers")
	bucketBodies                 = []byte("bodies")
	bucketAccumulatorCheckpoints = []byte("accumulator_checkpoints")
	bucketFrontierCheckpoints    = []byte("frontier_checkpoints")
	bucketMainHeaderInfos        = []byte("mainchain_header_infos")
	bucketMainBmmCommitments     = []byte("mainchain_bmm_commitments")
)

// HeaderInfo is the mainchain header metadata get_block_header_infos
// returns: just enough to walk the mainchain's parent chain.
type HeaderInfo struct {
	PrevBlockHash hash.Hash
	Height        uint32
}

var allBuckets = [][]byte{
	bucketHeaders, bucketBodies, bucketAccumulatorCheckpoints,
	bucketFrontierCheckpoints, bucketMainHeaderInfos, bucketMainBmmCommitments,
}

// Archive is the sidechain's own append-mostly store of connected headers
// and bodies, plus rollback checkpoints and a mainchain metadata cache.
type Archive struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) an archive database at path.
func Open(path string) (*Archive, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
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
	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// PutBlock persists a connected block's header and body together, keyed by
// the header's own hash.
func (a *Archive) PutBlock(header types.Header, body types.Body) error {
	blockHash := header.Hash()
	return a.db.Update(func(tx *bbolt.Tx) error {
		headerRaw, err := header.MarshalBinary()
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketHeaders).Put(blockHash[:], headerRaw); err != nil {
			return err
		}
		bodyRaw, err := body.MarshalBinary()
		if err != nil {
			return err
		}
		return tx.Bucket(bucketBodies).Put(blockHash[:], bodyRaw)
	})
}

// HasBlock reports whether blockHash is already archived.
func (a *Archive) HasBlock(blockHash hash.BlockHash) bool {
	var found bool
	a.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketHeaders).Get(blockHash[:]) != nil
		return nil
	})
	return found
}

// GetHeader looks up a previously-archived header.
func (a *Archive) GetHeader(blockHash hash.BlockHash) (types.Header, bool, error) {
	var header types.Header
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketHeaders).Get(blockHash[:])
		if raw == nil {
			return nil
		}
		found = true
		var err error
		header, err = types.UnmarshalHeader(raw)
		return err
	})
	return header, found, err
}

// GetBody looks up a previously-archived body.
func (a *Archive) GetBody(blockHash hash.BlockHash) (types.Body, bool, error) {
	var body types.Body
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketBodies).Get(blockHash[:])
		if raw == nil {
			return nil
		}
		found = true
		var err error
		body, err = types.UnmarshalBody(raw)
		return err
	})
	return body, found, err
}

// AncestorHeaders walks parent links starting at (and including) tip,
// stopping at genesis or after at most limit headers, for callers that
// need a bounded ancestor list without materializing the whole chain.
func (a *Archive) AncestorHeaders(tip hash.BlockHash, limit int) ([]types.Header, error) {
	var headers []types.Header
	current := tip
	for len(headers) < limit {
		header, found, err := a.GetHeader(current)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		headers = append(headers, header)
		if header.PrevSideHash == nil {
			break
		}
		current = *header.PrevSideHash
	}
	return headers, nil
}

func putNodeHashes(tx *bbolt.Tx, bucket []byte, key hash.BlockHash, leaves []hash.NodeHash) error {
	buf := make([]byte, 0, 8+len(leaves)*hash.Size)
	var lenBuf [8]byte
	for i := 0; i < 8; i++ {
		lenBuf[i] = byte(uint64(len(leaves)) >> (8 * i))
	}
	buf = append(buf, lenBuf[:]...)
	for _, l := range leaves {
		buf = append(buf, l[:]...)
	}
	return tx.Bucket(bucket).Put(key[:], buf)
}

func getNodeHashes(tx *bbolt.Tx, bucket []byte, key hash.BlockHash) ([]hash.NodeHash, bool, error) {
	raw := tx.Bucket(bucket).Get(key[:])
	if raw == nil {
		return nil, false, nil
	}
	if len(raw) < 8 {
		return nil, true, nil
	}
	var n uint64
	for i := 0; i < 8; i++ {
		n |= uint64(raw[i]) << (8 * i)
	}
	leaves := make([]hash.NodeHash, n)
	off := 8
	for i := range leaves {
		copy(leaves[i][:], raw[off:off+hash.Size])
		off += hash.Size
	}
	return leaves, true, nil
}

// PutAccumulatorCheckpoint records the pre-block utreexo accumulator's leaf
// set for blockHash, used by State.DisconnectTip as the authoritative
// pre-block snapshot.
func (a *Archive) PutAccumulatorCheckpoint(blockHash hash.BlockHash, leaves []hash.NodeHash) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		return putNodeHashes(tx, bucketAccumulatorCheckpoints, blockHash, leaves)
	})
}

// GetAccumulatorCheckpoint retrieves a previously-stored pre-block
// accumulator leaf set.
func (a *Archive) GetAccumulatorCheckpoint(blockHash hash.BlockHash) ([]hash.NodeHash, bool, error) {
	var leaves []hash.NodeHash
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		var err error
		leaves, found, err = getNodeHashes(tx, bucketAccumulatorCheckpoints, blockHash)
		return err
	})
	return leaves, found, err
}

// PutFrontierCheckpoint records the pre-block orchard frontier's leaf set
// for blockHash.
func (a *Archive) PutFrontierCheckpoint(blockHash hash.BlockHash, leaves []hash.NodeHash) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		return putNodeHashes(tx, bucketFrontierCheckpoints, blockHash, leaves)
	})
}

// GetFrontierCheckpoint retrieves a previously-stored pre-block frontier
// leaf set.
func (a *Archive) GetFrontierCheckpoint(blockHash hash.BlockHash) ([]hash.NodeHash, bool, error) {
	var leaves []hash.NodeHash
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		var err error
		leaves, found, err = getNodeHashes(tx, bucketFrontierCheckpoints, blockHash)
		return err
	})
	return leaves, found, err
}

// PutMainchainHeaderInfo caches a mainchain header's metadata, keyed by its
// mainchain block hash.
func (a *Archive) PutMainchainHeaderInfo(mainHash hash.Hash, info HeaderInfo) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		buf := make([]byte, hash.Size+4)
		copy(buf[:hash.Size], info.PrevBlockHash[:])
		for i := 0; i < 4; i++ {
			buf[hash.Size+i] = byte(info.Height >> (8 * i))
		}
		return tx.Bucket(bucketMainHeaderInfos).Put(mainHash[:], buf)
	})
}

// PutMainchainHeaderInfoBatch persists a batch of mainchain header infos
// under a single write transaction, bounding archive-reader starvation
// during backfill.
func (a *Archive) PutMainchainHeaderInfoBatch(infos map[hash.Hash]HeaderInfo) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMainHeaderInfos)
		for mainHash, info := range infos {
			buf := make([]byte, hash.Size+4)
			copy(buf[:hash.Size], info.PrevBlockHash[:])
			for i := 0; i < 4; i++ {
				buf[hash.Size+i] = byte(info.Height >> (8 * i))
			}
			if err := bucket.Put(mainHash[:], buf); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetMainchainHeaderInfo looks up a cached mainchain header's metadata.
func (a *Archive) GetMainchainHeaderInfo(mainHash hash.Hash) (HeaderInfo, bool, error) {
	var info HeaderInfo
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketMainHeaderInfos).Get(mainHash[:])
		if raw == nil || len(raw) < hash.Size+4 {
			return nil
		}
		found = true
		copy(info.PrevBlockHash[:], raw[:hash.Size])
		var height uint32
		for i := 0; i < 4; i++ {
			height |= uint32(raw[hash.Size+i]) << (8 * i)
		}
		info.Height = height
		return nil
	})
	return info, found, err
}

// HasMainchainHeaderInfo reports whether mainHash's header info is cached.
func (a *Archive) HasMainchainHeaderInfo(mainHash hash.Hash) bool {
	var found bool
	a.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketMainHeaderInfos).Get(mainHash[:]) != nil
		return nil
	})
	return found
}

// PutBmmCommitment caches a mainchain block's BMM h* commitment.
func (a *Archive) PutBmmCommitment(mainHash hash.Hash, commitment []byte) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMainBmmCommitments).Put(mainHash[:], commitment)
	})
}

// GetBmmCommitment looks up a cached BMM commitment.
func (a *Archive) GetBmmCommitment(mainHash hash.Hash) ([]byte, bool, error) {
	var commitment []byte
	var found bool
	err := a.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketMainBmmCommitments).Get(mainHash[:])
		if raw == nil {
			return nil
		}
		found = true
		commitment = append([]byte(nil), raw...)
		return nil
	})
	return commitment, found, err
}

// HasBmmCommitment reports whether mainHash's BMM commitment is cached.
func (a *Archive) HasBmmCommitment(mainHash hash.Hash) bool {
	var found bool
	a.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketMainBmmCommitments).Get(mainHash[:]) != nil
		return nil
	})
	return found
}
