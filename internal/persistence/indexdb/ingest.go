package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"auctionhouse.ai/internal/chain"
	"auctionhouse.ai/internal/persistence/snapshot"
)

// HTTPConfig configures the remote ingest index: batches of block and
// snapshot events POSTed as JSON to Endpoint.
type HTTPConfig struct {
	Endpoint      string
	Token         string
	ChainID       string
	BatchSize     int
	MaxRetained   int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Logger        *log.Logger
}

type HTTPIndex struct {
	cfg        HTTPConfig
	httpClient *http.Client

	ch   chan ingestEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropBlock    atomic.Uint64
	dropSnapshot atomic.Uint64
}

type ingestEvent struct {
	Kind    string `json:"kind"`
	ChainID string `json:"chain_id"`
	Payload any    `json:"payload"`
}

type ingestBlockPayload struct {
	Height uint64             `json:"height"`
	Digest string             `json:"digest"`
	Txs    []chain.RecordedTx `json:"txs,omitempty"`
}

type ingestSnapshotPayload struct {
	Height  uint64 `json:"height"`
	Path    string `json:"path"`
	Entries int    `json:"entries"`
	Digest  string `json:"digest"`
}

func OpenHTTP(cfg HTTPConfig) (*HTTPIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.ChainID = strings.TrimSpace(cfg.ChainID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.ChainID == "" {
		return nil, fmt.Errorf("empty chain id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}

	d := &HTTPIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan ingestEvent, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *HTTPIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *HTTPIndex) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		DropBlockTotal:    d.dropBlock.Load(),
		DropSnapshotTotal: d.dropSnapshot.Load(),
	}
}

func (d *HTTPIndex) WriteBlock(entry chain.BlockLogEntry) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	p := ingestBlockPayload{Height: entry.Height, Digest: entry.Digest, Txs: entry.Txs}
	if !d.enqueue(ingestEvent{Kind: "block", ChainID: d.cfg.ChainID, Payload: p}) {
		d.dropBlock.Add(1)
	}
	return nil
}

func (d *HTTPIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if d == nil || d.closed.Load() {
		return
	}
	p := ingestSnapshotPayload{
		Height:  snap.Header.Height,
		Path:    path,
		Entries: len(snap.Entries),
		Digest:  snap.Digest,
	}
	if !d.enqueue(ingestEvent{Kind: "snapshot", ChainID: d.cfg.ChainID, Payload: p}) {
		d.dropSnapshot.Add(1)
	}
}

func (d *HTTPIndex) enqueue(ev ingestEvent) bool {
	select {
	case d.ch <- ev:
		return true
	default:
		d.printf("ingest queue full; drop kind=%s chain=%s", ev.Kind, ev.ChainID)
		return false
	}
}

func (d *HTTPIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]ingestEvent, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.printf("ingest flush failed batch=%d err=%v", len(batch), err)
			// Keep the batch for the next flush, shedding the oldest events past the cap.
			if over := len(batch) - d.cfg.MaxRetained; over > 0 {
				batch = append(batch[:0], batch[over:]...)
			}
			return
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *HTTPIndex) sendBatch(events []ingestEvent) error {
	body := struct {
		Events []ingestEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("authorization", "Bearer "+d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *HTTPIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
