package chain

import "sync/atomic"

type metrics struct {
	blocks           atomic.Uint64
	blockFailures    atomic.Uint64
	txCommitted      atomic.Uint64
	txFailed         atomic.Uint64
	txDropped        atomic.Uint64
	snapshotsDropped atomic.Uint64
}

type Metrics struct {
	Height           uint64
	PendingTxs       int
	PendingCapacity  int
	Blocks           uint64
	BlockFailures    uint64
	TxCommitted      uint64
	TxFailed         uint64
	TxDropped        uint64
	SnapshotsDropped uint64
}

func (c *Chain) Metrics() Metrics {
	return Metrics{
		Height:           c.height.Load(),
		PendingTxs:       len(c.inbox),
		PendingCapacity:  cap(c.inbox),
		Blocks:           c.metrics.blocks.Load(),
		BlockFailures:    c.metrics.blockFailures.Load(),
		TxCommitted:      c.metrics.txCommitted.Load(),
		TxFailed:         c.metrics.txFailed.Load(),
		TxDropped:        c.metrics.txDropped.Load(),
		SnapshotsDropped: c.metrics.snapshotsDropped.Load(),
	}
}
