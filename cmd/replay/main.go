package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"auctionhouse.ai/internal/chain"
	"auctionhouse.ai/internal/kv"
	persistlog "auctionhouse.ai/internal/persistence/log"
	"auctionhouse.ai/internal/persistence/snapshot"
	"auctionhouse.ai/internal/tuning"
)

var errDone = errors.New("done")

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (optional; replays from genesis when empty)")
		blocksDir  = flag.String("blocks", "", "dir containing blocks-*.jsonl.zst (optional)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning used for genesis and chain parameters")
		fromHeight = flag.Uint64("from_height", 0, "start verifying from height (inclusive, optional)")
		toHeight   = flag.Uint64("to_height", 0, "stop at height (inclusive, optional)")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	cfg := tune.ChainConfig()

	var snap *snapshot.SnapshotV1
	if *snapPath != "" {
		s, err := snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		snap = &s
		fmt.Printf("snapshot v%d chain=%s height=%d entries=%d digest=%s\n",
			s.Header.Version, s.Header.ChainID, s.Header.Height, len(s.Entries), s.Digest)

		// The snapshot is authoritative for the parameters it records.
		cfg.ChainID = s.Header.ChainID
		cfg.ContractAddress = s.ContractAddress
		cfg.AuctionWindow = s.AuctionWindow
		cfg.ApprovalWindow = s.ApprovalWindow
	}

	if *blocksDir == "" {
		return
	}

	c, err := chain.New(cfg, kv.NewMemStore())
	if err != nil {
		fmt.Fprintln(os.Stderr, "chain:", err)
		os.Exit(1)
	}
	if snap != nil {
		if err := c.ImportSnapshot(*snap); err != nil {
			fmt.Fprintln(os.Stderr, "import snapshot:", err)
			os.Exit(1)
		}
	} else {
		g, err := tune.ChainGenesis()
		if err == nil {
			_, err = c.InitGenesis(g)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "genesis:", err)
			os.Exit(1)
		}
	}

	startHeight := c.CurrentHeight()
	verifyFrom := *fromHeight
	if verifyFrom == 0 {
		verifyFrom = startHeight + 1
	}

	files, err := persistlog.ListBlockFiles(*blocksDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list blocks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no block files found in", *blocksDir)
		os.Exit(1)
	}

	var checked uint64
	for _, path := range files {
		err := persistlog.ReadBlocks(path, func(entry chain.BlockLogEntry) error {
			return replayBlock(c, entry, verifyFrom, *toHeight, &checked)
		})
		if errors.Is(err, errDone) {
			break
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", path, err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: checked=%d blocks (from height=%d) head=%d digest=%s\n",
		checked, startHeight, c.CurrentHeight(), c.StateDigest())
}

func replayBlock(c *chain.Chain, entry chain.BlockLogEntry, verifyFrom, toHeight uint64, checked *uint64) error {
	if entry.Height <= c.CurrentHeight() {
		return nil
	}
	if toHeight != 0 && entry.Height > toHeight {
		return errDone
	}
	if want := c.CurrentHeight() + 1; entry.Height != want {
		return fmt.Errorf("height gap: want=%d got=%d", want, entry.Height)
	}

	txs := make([]chain.Tx, 0, len(entry.Txs))
	for _, rt := range entry.Txs {
		txs = append(txs, rt.Tx)
	}
	height, digest, results := c.StepOnce(txs)
	if height != entry.Height {
		return fmt.Errorf("internal height mismatch: stepped=%d entry=%d", height, entry.Height)
	}
	if height < verifyFrom {
		return nil
	}
	*checked++
	for i, rt := range entry.Txs {
		if results[i].OK != rt.OK || results[i].Code != rt.Code {
			return fmt.Errorf("tx %s at height %d: got ok=%v code=%s want ok=%v code=%s",
				rt.Tx.ID, height, results[i].OK, results[i].Code, rt.OK, rt.Code)
		}
	}
	if digest != entry.Digest {
		return fmt.Errorf("digest mismatch at height %d: got=%s want=%s", height, digest, entry.Digest)
	}
	return nil
}
