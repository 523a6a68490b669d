package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"auctionhouse.ai/internal/auction/contract"
	"auctionhouse.ai/internal/auction/funds"
	"auctionhouse.ai/internal/kv"
	"auctionhouse.ai/internal/persistence/snapshot"
)

var (
	ErrBusy    = errors.New("chain busy")
	ErrStopped = errors.New("chain stopped")
)

const (
	chainNamespace = "chain"
	heightKey      = "height"
)

// Tx is one signed-by-session execute request.
type Tx struct {
	ID     string              `json:"id"`
	Sender string              `json:"sender"`
	Funds  funds.Coins         `json:"funds,omitempty"`
	Msg    contract.ExecuteMsg `json:"msg"`
}

type TxResult struct {
	TxID       string               `json:"tx_id"`
	Height     uint64               `json:"height"`
	OK         bool                 `json:"ok"`
	Code       string               `json:"code,omitempty"`
	Message    string               `json:"message,omitempty"`
	Attributes []contract.Attribute `json:"attributes,omitempty"`
	Actions    []contract.Action    `json:"actions,omitempty"`
}

type TxRequest struct {
	Tx   Tx
	Resp chan TxResult
}

// BlockLogger receives one entry per committed block. Implemented in
// internal/persistence/*.
type BlockLogger interface {
	WriteBlock(entry BlockLogEntry) error
}

type BlockLogEntry struct {
	Height uint64       `json:"height"`
	Txs    []RecordedTx `json:"txs,omitempty"`
	Digest string       `json:"digest"`
}

type RecordedTx struct {
	Tx      Tx     `json:"tx"`
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Actions int    `json:"actions,omitempty"`
}

// Chain is a single-writer block producer over a kv.Store. Transactions are
// queued in arrival order and applied at block boundaries; reads take the
// shared lock and see only committed blocks.
type Chain struct {
	cfg      Config
	store    kv.Store
	contract *contract.Contract

	mu     sync.RWMutex
	height atomic.Uint64

	inbox chan TxRequest
	stop  chan struct{}
	once  sync.Once

	blockLogger  BlockLogger
	snapshotSink chan<- snapshot.SnapshotV1

	metrics metrics
}

func New(cfg Config, store kv.Store) (*Chain, error) {
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	cfg.applyDefaults()
	if _, err := ValidateAddress(cfg.ContractAddress); err != nil {
		return nil, fmt.Errorf("contract address: %w", err)
	}
	c := &Chain{
		cfg:   cfg,
		store: store,
		inbox: make(chan TxRequest, cfg.MaxPendingTxs),
		stop:  make(chan struct{}),
	}
	c.contract = contract.New(c, contract.Params{
		AuctionWindow:  cfg.AuctionWindow,
		ApprovalWindow: cfg.ApprovalWindow,
	})
	h, err := c.loadHeight()
	if err != nil {
		return nil, err
	}
	c.height.Store(h)
	return c, nil
}

func (c *Chain) SetBlockLogger(l BlockLogger)                  { c.blockLogger = l }
func (c *Chain) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { c.snapshotSink = ch }

func (c *Chain) Config() Config        { return c.cfg }
func (c *Chain) CurrentHeight() uint64 { return c.height.Load() }

func (c *Chain) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.BlockInterval)
	defer ticker.Stop()

	var pending []TxRequest
	fail := func(err error) {
		for _, req := range pending {
			reply(req, TxResult{TxID: req.Tx.ID, Code: CodeFor(err), Message: err.Error()})
		}
		for {
			select {
			case req := <-c.inbox:
				reply(req, TxResult{TxID: req.Tx.ID, Code: CodeFor(err), Message: err.Error()})
			default:
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			fail(ErrStopped)
			return ctx.Err()
		case <-c.stop:
			fail(ErrStopped)
			return nil
		case req := <-c.inbox:
			pending = append(pending, req)
		case <-ticker.C:
			c.step(pending)
			pending = pending[:0]
		}
	}
}

func (c *Chain) Stop() { c.once.Do(func() { close(c.stop) }) }

// Submit queues tx for the next block and waits for its result.
func (c *Chain) Submit(ctx context.Context, tx Tx) (TxResult, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	req := TxRequest{Tx: tx, Resp: make(chan TxResult, 1)}
	select {
	case c.inbox <- req:
	case <-ctx.Done():
		return TxResult{}, ctx.Err()
	default:
		c.metrics.txDropped.Add(1)
		return TxResult{}, ErrBusy
	}
	select {
	case res := <-req.Resp:
		return res, nil
	case <-ctx.Done():
		return TxResult{}, ctx.Err()
	}
}

func (c *Chain) step(reqs []TxRequest) {
	c.mu.Lock()
	height := c.height.Load() + 1

	// One cache per block so the height and every tx commit together.
	block := kv.NewCache(c.store)
	recorded := make([]RecordedTx, 0, len(reqs))
	results := make([]TxResult, 0, len(reqs))
	for _, req := range reqs {
		res := c.deliver(block, req.Tx, height)
		recorded = append(recorded, RecordedTx{Tx: req.Tx, OK: res.OK, Code: res.Code, Actions: len(res.Actions)})
		results = append(results, res)
	}
	err := c.saveHeight(block, height)
	if err == nil {
		err = block.Write()
	}
	if err != nil {
		block.Discard()
		c.mu.Unlock()
		c.metrics.blockFailures.Add(1)
		for _, req := range reqs {
			reply(req, TxResult{TxID: req.Tx.ID, Height: height, Code: CodeFor(err), Message: err.Error()})
		}
		return
	}
	c.height.Store(height)
	digest := c.stateDigest(height)

	var snap *snapshot.SnapshotV1
	if c.snapshotSink != nil && c.cfg.SnapshotEveryBlocks > 0 && height%c.cfg.SnapshotEveryBlocks == 0 {
		if s, err := c.exportLocked(height, digest); err == nil {
			snap = &s
		}
	}
	c.mu.Unlock()

	for i, req := range reqs {
		if results[i].OK {
			c.metrics.txCommitted.Add(1)
		} else {
			c.metrics.txFailed.Add(1)
		}
		reply(req, results[i])
	}
	c.metrics.blocks.Add(1)

	if c.blockLogger != nil {
		_ = c.blockLogger.WriteBlock(BlockLogEntry{Height: height, Txs: recorded, Digest: digest})
	}
	if snap != nil {
		select {
		case c.snapshotSink <- *snap:
		default:
			// Drop snapshot if sink is backed up.
			c.metrics.snapshotsDropped.Add(1)
		}
	}
}

// StepOnce produces a single block from txs using the same ordering
// semantics as Run. It is intended for deterministic replays and tests.
func (c *Chain) StepOnce(txs []Tx) (height uint64, digest string, results []TxResult) {
	reqs := make([]TxRequest, len(txs))
	for i, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.NewString()
		}
		reqs[i] = TxRequest{Tx: tx, Resp: make(chan TxResult, 1)}
	}
	c.step(reqs)
	results = make([]TxResult, len(reqs))
	for i, req := range reqs {
		results[i] = <-req.Resp
	}
	height = c.height.Load()
	c.mu.RLock()
	digest = c.stateDigest(height)
	c.mu.RUnlock()
	return height, digest, results
}

func reply(req TxRequest, res TxResult) {
	if req.Resp == nil {
		return
	}
	select {
	case req.Resp <- res:
	default:
	}
}

func (c *Chain) chainStore(s kv.Store) kv.Store    { return kv.NewPrefixed(s, chainNamespace) }
func (c *Chain) contractStore(s kv.Store) kv.Store { return kv.NewPrefixed(s, "contract/"+c.cfg.ContractAddress) }

func (c *Chain) loadHeight() (uint64, error) {
	raw, err := c.chainStore(c.store).Get([]byte(heightKey))
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt height record (%d bytes)", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (c *Chain) saveHeight(s kv.Store, h uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], h)
	return c.chainStore(s).Set([]byte(heightKey), b[:])
}
