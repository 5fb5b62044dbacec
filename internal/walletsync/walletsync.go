// Package walletsync drives a wallet's view of the chain in response to
// node tip changes: it replays disconnects and connects across
// reorganizations and keeps an address-filtered UTXO snapshot current
// (spec.md §4.7, §5 "shared mutable resources").
package walletsync

import (
	"context"
	"errors"
	"sync"

	"github.com/thunder-project/thunder/internal/archive"
	"github.com/thunder-project/thunder/internal/hash"
	"github.com/thunder-project/thunder/internal/state"
	"github.com/thunder-project/thunder/internal/types"
)

// Wallet is the replay target: everything the syncer needs to rewind and
// roll a wallet's orchard view forward, and to refresh its transparent
// UTXO set. The wallet's own storage and key material are out of scope;
// this package only drives the loop.
type Wallet interface {
	// Tip returns the wallet's current side-chain tip, or nil if the
	// wallet has not observed any block yet.
	Tip() (*hash.BlockHash, error)

	ConnectOrchardBlock(header types.Header, body types.Body) error
	DisconnectOrchardBlock(header types.Header, body types.Body) error

	// Addresses returns the set of transparent addresses the wallet
	// tracks, for the post-replay UTXO refresh.
	Addresses() (map[hash.Address]struct{}, error)

	// Utxos returns the wallet's own outpoint set, used to detect which
	// of them the node now reports as spent.
	Utxos() (map[types.OutPoint]types.Output, error)

	PutUtxos(utxos map[types.OutPoint]types.Output) error
	SpendUtxos(inpoints map[types.OutPoint]types.InPoint) error
}

// Syncer owns the replay loop: on every State.Watch() tick it reconciles
// the wallet's view with the node's current tip.
type Syncer struct {
	state   *state.State
	archive *archive.Archive
	wallet  Wallet

	mu       sync.RWMutex
	snapshot map[types.OutPoint]types.Output
}

// New returns a Syncer wired to st, ar and w.
func New(st *state.State, ar *archive.Archive, w Wallet) *Syncer {
	return &Syncer{state: st, archive: ar, wallet: w}
}

// Run drives the replay loop until ctx is cancelled, reconciling on every
// tick received from watch (normally State.Watch()'s channel) plus once
// immediately on entry, so a wallet started against an already-advanced
// node catches up without waiting for the next block.
func (s *Syncer) Run(ctx context.Context, watch <-chan struct{}) error {
	if err := s.Sync(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-watch:
			if err := s.Sync(); err != nil {
				log.Errorf("wallet sync: %v", err)
			}
		}
	}
}

// Sync performs one reconciliation: rewind the wallet to the common
// ancestor with the node's tip, roll forward to the node's tip, then
// refresh the UTXO snapshot.
func (s *Syncer) Sync() error {
	nodeTip, err := s.nodeTip()
	if err != nil {
		return err
	}
	walletTip, err := s.wallet.Tip()
	if err != nil {
		return err
	}

	commonAncestor, err := s.lastCommonAncestor(nodeTip, walletTip)
	if err != nil {
		return err
	}

	if err := s.rewind(walletTip, commonAncestor); err != nil {
		return err
	}
	if err := s.rollForward(nodeTip, commonAncestor); err != nil {
		return err
	}
	return s.refreshUtxos()
}

func (s *Syncer) nodeTip() (*hash.BlockHash, error) {
	var tip *hash.BlockHash
	err := s.state.View(func(tx *state.Tx) error {
		h, err := s.state.Tip(tx)
		if errors.Is(err, state.ErrNoTip) {
			return nil
		}
		if err != nil {
			return err
		}
		tip = &h
		return nil
	})
	return tip, err
}

// lastCommonAncestor walks both chains back to genesis, recording every
// ancestor of a, then walks b's ancestors until one is found in that set.
func (s *Syncer) lastCommonAncestor(a, b *hash.BlockHash) (*hash.BlockHash, error) {
	if a == nil || b == nil {
		return nil, nil
	}

	seen := make(map[hash.BlockHash]struct{})
	current := *a
	for {
		seen[current] = struct{}{}
		header, found, err := s.archive.GetHeader(current)
		if err != nil {
			return nil, err
		}
		if !found || header.PrevSideHash == nil {
			break
		}
		current = *header.PrevSideHash
	}

	current = *b
	for {
		if _, ok := seen[current]; ok {
			found := current
			return &found, nil
		}
		header, found, err := s.archive.GetHeader(current)
		if err != nil {
			return nil, err
		}
		if !found || header.PrevSideHash == nil {
			return nil, nil
		}
		current = *header.PrevSideHash
	}
}

func blockHashEqual(a, b *hash.BlockHash) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Syncer) rewind(walletTip, commonAncestor *hash.BlockHash) error {
	for !blockHashEqual(walletTip, commonAncestor) {
		blockHash := *walletTip
		header, found, err := s.archive.GetHeader(blockHash)
		if err != nil {
			return err
		}
		if !found {
			return &archive.ErrBlockUnknown{BlockHash: blockHash}
		}
		body, found, err := s.archive.GetBody(blockHash)
		if err != nil {
			return err
		}
		if !found {
			return &archive.ErrBlockUnknown{BlockHash: blockHash}
		}
		if err := s.wallet.DisconnectOrchardBlock(header, body); err != nil {
			return err
		}
		walletTip = header.PrevSideHash
	}
	return nil
}

func (s *Syncer) rollForward(nodeTip, commonAncestor *hash.BlockHash) error {
	if nodeTip == nil {
		return nil
	}

	var toConnect []hash.BlockHash
	current := *nodeTip
	for !blockHashEqual(&current, commonAncestor) {
		toConnect = append(toConnect, current)
		header, found, err := s.archive.GetHeader(current)
		if err != nil {
			return err
		}
		if !found || header.PrevSideHash == nil {
			break
		}
		current = *header.PrevSideHash
	}

	for i := len(toConnect) - 1; i >= 0; i-- {
		blockHash := toConnect[i]
		header, _, err := s.archive.GetHeader(blockHash)
		if err != nil {
			return err
		}
		body, _, err := s.archive.GetBody(blockHash)
		if err != nil {
			return err
		}
		if err := s.wallet.ConnectOrchardBlock(header, body); err != nil {
			return err
		}
	}
	return nil
}

func (s *Syncer) refreshUtxos() error {
	addresses, err := s.wallet.Addresses()
	if err != nil {
		return err
	}

	var utxos map[types.OutPoint]types.Output
	err = s.state.View(func(tx *state.Tx) error {
		var err error
		utxos, err = s.state.UtxosByAddresses(tx, addresses)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.wallet.PutUtxos(utxos); err != nil {
		return err
	}

	walletUtxos, err := s.wallet.Utxos()
	if err != nil {
		return err
	}
	outpoints := make([]types.OutPoint, 0, len(walletUtxos))
	for op := range walletUtxos {
		outpoints = append(outpoints, op)
	}
	var spent map[types.OutPoint]types.InPoint
	err = s.state.View(func(tx *state.Tx) error {
		var err error
		spent, err = s.state.SpentInPoints(tx, outpoints)
		return err
	})
	if err != nil {
		return err
	}
	if len(spent) > 0 {
		if err := s.wallet.SpendUtxos(spent); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.snapshot = utxos
	s.mu.Unlock()
	return nil
}

// Snapshot returns the most recently refreshed address-filtered UTXO view.
func (s *Syncer) Snapshot() map[types.OutPoint]types.Output {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.OutPoint]types.Output, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}
