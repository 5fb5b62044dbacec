package mainchain

import (
	"context"
	"time"

	"github.com/thunder-project/thunder/internal/archive"
	"github.com/thunder-project/thunder/internal/hash"
)

// BatchRequestSize bounds how many header infos or commitments are
// requested from the validator in a single call.
const BatchRequestSize = 1000

// progressLogInterval is the cadence AncestorHeaders logs backfill
// progress at.
const progressLogInterval = 5 * time.Second

type requestKind int

const (
	kindAncestorHeaders requestKind = iota
	kindVerifyBmm
)

type taskRequest struct {
	kind      requestKind
	blockHash hash.Hash
	resp      chan error
}

// Task owns the request channel for mainchain backfill work and runs on
// its own goroutine, draining one request at a time against the
// validator client and the archive.
type Task struct {
	client  ValidatorClient
	archive *archive.Archive

	requests chan taskRequest
	done     chan struct{}
}

// NewTask starts a Task's goroutine and returns the handle used to submit
// requests to it.
func NewTask(ctx context.Context, client ValidatorClient, ar *archive.Archive) *Task {
	t := &Task{
		client:   client,
		archive:  ar,
		requests: make(chan taskRequest),
		done:     make(chan struct{}),
	}
	go t.run(ctx)
	return t
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-t.requests:
			var err error
			switch req.kind {
			case kindAncestorHeaders:
				err = t.handleAncestorHeaders(ctx, req.blockHash)
			case kindVerifyBmm:
				err = t.handleVerifyBmm(ctx, req.blockHash)
			}
			if req.resp != nil {
				req.resp <- err
			} else if err != nil {
				log.Errorf("mainchain task: %v", err)
			}
		}
	}
}

func (t *Task) submit(ctx context.Context, kind requestKind, bh hash.Hash) error {
	resp := make(chan error, 1)
	select {
	case t.requests <- taskRequest{kind: kind, blockHash: bh, resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AncestorHeaders backfills mainchain header infos from bh back to the
// first already-archived ancestor, or to the mainchain's genesis.
func (t *Task) AncestorHeaders(ctx context.Context, bh hash.Hash) error {
	return t.submit(ctx, kindAncestorHeaders, bh)
}

// VerifyBmm ensures every ancestor of bh down to the last known commitment
// has a cached BMM h* commitment in the archive.
func (t *Task) VerifyBmm(ctx context.Context, bh hash.Hash) error {
	return t.submit(ctx, kindVerifyBmm, bh)
}

func (t *Task) handleAncestorHeaders(ctx context.Context, bh hash.Hash) error {
	if bh.IsZero() || t.archive.HasMainchainHeaderInfo(bh) {
		return nil
	}

	current := bh
	lastLog := time.Now()
	total := 0
	for {
		infos, err := t.client.GetBlockHeaderInfos(ctx, current, BatchRequestSize)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			return nil
		}

		for i, j := 0, len(infos)-1; i < j; i, j = i+1, j-1 {
			infos[i], infos[j] = infos[j], infos[i]
		}

		batch := make(map[hash.Hash]archive.HeaderInfo, len(infos))
		for _, info := range infos {
			batch[info.BlockHash] = archive.HeaderInfo{PrevBlockHash: info.PrevBlockHash, Height: info.Height}
		}
		if err := t.archive.PutMainchainHeaderInfoBatch(batch); err != nil {
			return err
		}

		total += len(infos)
		if time.Since(lastLog) >= progressLogInterval {
			log.Infof("mainchain backfill: %d header infos persisted, walking toward %s", total, current)
			lastLog = time.Now()
		}

		oldest := infos[0]
		if oldest.PrevBlockHash.IsZero() || t.archive.HasMainchainHeaderInfo(oldest.PrevBlockHash) {
			return nil
		}
		current = oldest.PrevBlockHash
	}
}

// collectMissingCommitmentChain walks header infos backward from bh,
// collecting mainchain hashes that have no cached BMM commitment, tip
// first, stopping at the first known commitment or at a header info gap.
func (t *Task) collectMissingCommitmentChain(bh hash.Hash) ([]hash.Hash, error) {
	var missing []hash.Hash
	current := bh
	for !current.IsZero() {
		if t.archive.HasBmmCommitment(current) {
			break
		}
		missing = append(missing, current)
		info, found, err := t.archive.GetMainchainHeaderInfo(current)
		if err != nil {
			return nil, err
		}
		if !found {
			break
		}
		current = info.PrevBlockHash
	}
	return missing, nil
}

func (t *Task) handleVerifyBmm(ctx context.Context, bh hash.Hash) error {
	missing, err := t.collectMissingCommitmentChain(bh)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	for i, j := 0, len(missing)-1; i < j; i, j = i+1, j-1 {
		missing[i], missing[j] = missing[j], missing[i]
	}

	for start := 0; start < len(missing); start += BatchRequestSize {
		end := start + BatchRequestSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		tip := batch[len(batch)-1]

		commitments, err := t.client.GetBMMHStarCommitments(ctx, tip, uint32(len(batch)))
		if err != nil {
			return err
		}
		if len(commitments) < len(batch) {
			return &ErrBlockNotFound{Ancestor: batch[0]}
		}
		for i, c := range commitments {
			if err := t.archive.PutBmmCommitment(batch[i], c.HStar); err != nil {
				return err
			}
		}
	}
	return nil
}
