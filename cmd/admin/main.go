package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"auctionhouse.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "inspect":
			inspectCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	chainID := fs.String("chain", "", "chain id (optional; lists its snapshots)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "chains")
	if *chainID != "" {
		base = filepath.Join(base, *chainID, "snapshots")
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// inspectCmd prints a snapshot header and its key namespaces.
func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	chainID := fs.String("chain", "", "chain id (used to find the latest snapshot)")
	snapPath := fs.String("snapshot", "", "snapshot path (optional; defaults to latest)")
	_ = fs.Parse(args)

	path := strings.TrimSpace(*snapPath)
	if path == "" {
		if strings.TrimSpace(*chainID) == "" {
			fmt.Fprintln(os.Stderr, "missing -chain or -snapshot")
			os.Exit(2)
		}
		p, err := snapshot.Latest(filepath.Join(*dataDir, "chains", *chainID, "snapshots"))
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest snapshot:", err)
			os.Exit(1)
		}
		path = p
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	printJSON(struct {
		Path            string         `json:"path"`
		Version         int            `json:"version"`
		ChainID         string         `json:"chain_id"`
		Height          uint64         `json:"height"`
		ContractAddress string         `json:"contract_address"`
		AuctionWindow   uint64         `json:"auction_window"`
		ApprovalWindow  uint64         `json:"approval_window"`
		Entries         int            `json:"entries"`
		Namespaces      map[string]int `json:"namespaces"`
		Digest          string         `json:"digest"`
	}{
		Path:            path,
		Version:         snap.Header.Version,
		ChainID:         snap.Header.ChainID,
		Height:          snap.Header.Height,
		ContractAddress: snap.ContractAddress,
		AuctionWindow:   snap.AuctionWindow,
		ApprovalWindow:  snap.ApprovalWindow,
		Entries:         len(snap.Entries),
		Namespaces:      namespaceCounts(snap.Entries),
		Digest:          snap.Digest,
	})
}

func namespaceCounts(entries []snapshot.EntryV1) map[string]int {
	out := map[string]int{}
	for _, e := range entries {
		ns := "(unprefixed)"
		if len(e.Key) >= 2 {
			if n := int(binary.BigEndian.Uint16(e.Key)); 2+n <= len(e.Key) {
				ns = string(e.Key[2 : 2+n])
			}
		}
		out[ns]++
	}
	return out
}
