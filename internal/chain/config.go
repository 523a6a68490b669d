package chain

import "time"

type Config struct {
	ChainID         string
	ContractAddress string

	BlockInterval time.Duration

	// Auction parameters. These are included in snapshots for deterministic replay/resume.
	AuctionWindow  uint64
	ApprovalWindow uint64

	// Operational parameters.
	SnapshotEveryBlocks uint64
	MaxPendingTxs       int
}

func (c *Config) applyDefaults() {
	if c.ChainID == "" {
		c.ChainID = "auctionhouse-1"
	}
	if c.ContractAddress == "" {
		c.ContractAddress = "auction"
	}
	if c.BlockInterval <= 0 {
		c.BlockInterval = time.Second
	}
	if c.AuctionWindow == 0 {
		c.AuctionWindow = 50000
	}
	if c.ApprovalWindow == 0 {
		c.ApprovalWindow = 20000
	}
	if c.MaxPendingTxs <= 0 {
		c.MaxPendingTxs = 1024
	}
}
