package chain

import (
	"bytes"
	"errors"
	"fmt"

	"auctionhouse.ai/internal/kv"
	"auctionhouse.ai/internal/persistence/snapshot"
)

var errStopIteration = errors.New("stop iteration")

func (c *Chain) ExportSnapshot() (snapshot.SnapshotV1, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h := c.height.Load()
	return c.exportLocked(h, c.stateDigest(h))
}

func (c *Chain) exportLocked(height uint64, digest string) (snapshot.SnapshotV1, error) {
	snap := snapshot.SnapshotV1{
		Header:              snapshot.Header{Version: snapshot.Version, ChainID: c.cfg.ChainID, Height: height},
		ContractAddress:     c.cfg.ContractAddress,
		AuctionWindow:       c.cfg.AuctionWindow,
		ApprovalWindow:      c.cfg.ApprovalWindow,
		SnapshotEveryBlocks: c.cfg.SnapshotEveryBlocks,
		Digest:              digest,
	}
	err := c.store.Iterate(nil, func(k, v []byte) error {
		snap.Entries = append(snap.Entries, snapshot.EntryV1{Key: bytes.Clone(k), Value: bytes.Clone(v)})
		return nil
	})
	return snap, err
}

// ImportSnapshot loads snap into an empty store and verifies the resulting
// digest. It must run before Run or StepOnce.
func (c *Chain) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.ChainID != c.cfg.ChainID {
		return fmt.Errorf("snapshot chain %q, want %q", snap.Header.ChainID, c.cfg.ChainID)
	}
	if snap.ContractAddress != c.cfg.ContractAddress ||
		snap.AuctionWindow != c.cfg.AuctionWindow ||
		snap.ApprovalWindow != c.cfg.ApprovalWindow {
		return fmt.Errorf("snapshot parameters differ from chain config")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	empty := true
	_ = c.store.Iterate(nil, func(_, _ []byte) error {
		empty = false
		return errStopIteration
	})
	if !empty {
		return fmt.Errorf("import into non-empty store")
	}

	cache := kv.NewCache(c.store)
	for _, e := range snap.Entries {
		v := e.Value
		if v == nil {
			v = []byte{}
		}
		if err := cache.Set(e.Key, v); err != nil {
			return err
		}
	}
	if err := cache.Write(); err != nil {
		return err
	}
	h, err := c.loadHeight()
	if err != nil {
		return err
	}
	if h != snap.Header.Height {
		return fmt.Errorf("snapshot height %d, stored height %d", snap.Header.Height, h)
	}
	c.height.Store(h)
	if snap.Digest != "" {
		if got := c.stateDigest(h); got != snap.Digest {
			return fmt.Errorf("snapshot digest mismatch: got %s want %s", got, snap.Digest)
		}
	}
	return nil
}
